package merkle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Digest is a hash output in lowercase hexadecimal. Two digests are equal iff
// their strings are equal.
type Digest string

func (d Digest) String() string {
	return string(d)
}

// IsValidDigest reports whether d is a lowercase hex digest of the length
// produced by h.
func IsValidDigest(h Hasher, d Digest) bool {
	if len(d) != 2*h.DigestSize() {
		return false
	}
	for i := 0; i < len(d); i++ {
		c := d[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// NormalizeDigest trims whitespace, drops an optional 0x prefix and lowercases
// s. It does not validate the result.
func NormalizeDigest(s string) Digest {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return Digest(strings.ToLower(s))
}

// ParseDigest normalizes s and checks that it is a well-formed digest for h.
func ParseDigest(h Hasher, s string) (Digest, error) {
	d := NormalizeDigest(s)
	if !IsValidDigest(h, d) {
		return "", fmt.Errorf("%w: %q is not a %d-byte hex digest", ErrInvalidDigest, s, h.DigestSize())
	}
	return d, nil
}

// Node is a binary tree node. A leaf has no children; an internal node has
// exactly two and its Hash is DigestPair(Left.Hash, Right.Hash). Children are
// owned by their parent and never shared.
type Node struct {
	Hash  Digest
	Left  *Node
	Right *Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// clone returns a deep copy of the subtree rooted at n.
func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}
	return &Node{
		Hash:  n.Hash,
		Left:  n.Left.clone(),
		Right: n.Right.clone(),
	}
}

// Side is the position a sibling occupies relative to the hash accumulated
// while folding a proof upward.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
)

// SiblingStep is one level of an inclusion proof.
//
// Its wire form is the two-element array ["<sibling hex>", "L"|"R"].
type SiblingStep struct {
	Hash Digest
	Side Side
}

func (s SiblingStep) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{string(s.Hash), string(s.Side)})
}

func (s *SiblingStep) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("sibling step must be a [hash, side] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("sibling step must have exactly 2 elements, got %d", len(pair))
	}
	// Content is deliberately not validated here; VerifyProof rejects bad
	// digests and unknown sides by returning false.
	s.Hash = Digest(pair[0])
	s.Side = Side(pair[1])
	return nil
}

// Proof is an ordered sibling path from a leaf to the root. proof[0] is the
// leaf's immediate sibling, proof[len-1] is the sibling of the root's child.
type Proof []SiblingStep
