package merkle

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrEmptyInput is returned when building a tree from zero leaves.
	ErrEmptyInput = errors.New("cannot build merkle tree from empty leaf list")
	// ErrTargetNotFound is returned when no leaf in the tree matches the requested hash.
	ErrTargetNotFound = errors.New("target leaf not found in merkle tree")
	// ErrInvalidDigest is returned when a value is not a well-formed digest for the hasher.
	ErrInvalidDigest = errors.New("invalid digest")
	// ErrUnsupportedAlgorithm is returned by NewHasher for unknown algorithm names.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
)

// Build creates a binary merkle tree over already-hashed leaves and returns
// its root.
//
// The tree is built level by level. If a level has an odd number of nodes the
// last node is paired with a deep copy of itself, so its parent hashes
// DigestPair(last, last).
func Build(h Hasher, leafHashes []Digest) (*Node, error) {
	if h == nil {
		return nil, fmt.Errorf("hasher cannot be nil")
	}
	if len(leafHashes) == 0 {
		return nil, ErrEmptyInput
	}

	level := make([]*Node, len(leafHashes))
	for i, leaf := range leafHashes {
		if !IsValidDigest(h, leaf) {
			return nil, fmt.Errorf("%w: leaf %d is %q, expected %d lowercase hex chars", ErrInvalidDigest, i, leaf, 2*h.DigestSize())
		}
		level[i] = &Node{Hash: leaf}
	}

	for len(level) > 1 {
		next := make([]*Node, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			var right *Node
			if i+1 < len(level) {
				right = level[i+1]
			} else {
				right = left.clone()
			}
			next = append(next, &Node{
				Hash:  h.DigestPair(left.Hash, right.Hash),
				Left:  left,
				Right: right,
			})
		}
		level = next
	}

	return level[0], nil
}

// BuildFromContent hashes each raw leaf value with h.DigestLeaf and builds the
// tree from the resulting digests. Trees rebuilt later for proofs must be
// built with Build from those same digests, not from the content again.
func BuildFromContent(h Hasher, leafValues [][]byte) (*Node, error) {
	if h == nil {
		return nil, fmt.Errorf("hasher cannot be nil")
	}
	return Build(h, HashLeaves(h, leafValues))
}

// HashLeaves returns h.DigestLeaf of every value, in order.
func HashLeaves(h Hasher, leafValues [][]byte) []Digest {
	digests := make([]Digest, len(leafValues))
	for i, v := range leafValues {
		digests[i] = h.DigestLeaf(v)
	}
	return digests
}

// GenerateProof returns the bottom-up sibling path from the leaf whose hash is
// target to root. When several leaves share the target hash, the leftmost one
// is proven. A single-leaf tree yields an empty proof.
func GenerateProof(root *Node, target Digest) (Proof, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: tree is empty", ErrTargetNotFound)
	}
	proof, ok := findPath(root, target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}
	return proof, nil
}

// findPath searches n depth-first, left subtree first. Steps are appended on
// the way back up, which yields leaf-to-root order.
func findPath(n *Node, target Digest) (Proof, bool) {
	if n.IsLeaf() {
		if n.Hash == target {
			return Proof{}, true
		}
		return nil, false
	}

	if path, ok := findPath(n.Left, target); ok {
		return append(path, SiblingStep{Hash: n.Right.Hash, Side: SideRight}), true
	}
	// Equal subtree hashes cover the same leaf sequence, so the left search
	// above already ruled out the target on this side too.
	if n.Left.Hash == n.Right.Hash {
		return nil, false
	}
	if path, ok := findPath(n.Right, target); ok {
		return append(path, SiblingStep{Hash: n.Left.Hash, Side: SideLeft}), true
	}
	return nil, false
}

// VerifyProof recomputes the root from leafHash and proof and reports whether
// it equals claimedRoot. It never fails: malformed digests, unknown sides or a
// nil hasher simply yield false.
func VerifyProof(h Hasher, claimedRoot, leafHash Digest, proof Proof) bool {
	if h == nil {
		return false
	}
	if !IsValidDigest(h, claimedRoot) || !IsValidDigest(h, leafHash) {
		return false
	}

	current := leafHash
	for _, step := range proof {
		if !IsValidDigest(h, step.Hash) {
			return false
		}
		switch step.Side {
		case SideLeft:
			current = h.DigestPair(step.Hash, current)
		case SideRight:
			current = h.DigestPair(current, step.Hash)
		default:
			return false
		}
	}

	return current == claimedRoot
}

// Verify is VerifyProof with the default SHA-256 hasher.
func Verify(claimedRoot, leafHash Digest, proof Proof) bool {
	return VerifyProof(DefaultHasher(), claimedRoot, leafHash, proof)
}

// TreeHeight returns the number of levels above the leaves in a tree of
// leafCount leaves, which is also the length of every proof in that tree:
// ceil(log2(leafCount)).
func TreeHeight(leafCount int) int {
	if leafCount <= 1 {
		return 0
	}
	return bits.Len(uint(leafCount - 1))
}
