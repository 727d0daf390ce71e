package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/wealdtech/go-merkletree/v2/blake2b"
	"golang.org/x/crypto/sha3"
)

// HashAlgorithm names the digest function backing a Hasher.
type HashAlgorithm string

func (a HashAlgorithm) String() string {
	return string(a)
}

const (
	HashAlgorithmSHA256     HashAlgorithm = "sha256"
	HashAlgorithmKeccak256  HashAlgorithm = "keccak256"
	HashAlgorithmSHA3_256   HashAlgorithm = "sha3-256"
	HashAlgorithmBlake2b256 HashAlgorithm = "blake2b-256"

	// DefaultHashAlgorithm is used whenever a document does not record one.
	DefaultHashAlgorithm = HashAlgorithmSHA256
)

// digestSize is the output length in bytes shared by every supported algorithm.
const digestSize = 32

// Hasher computes leaf and internal-node digests.
//
// DigestLeaf hashes the raw bytes of one page. DigestPair hashes the
// concatenation of the two lowercase hex strings, left first; the order is
// significant and must be identical when building and verifying.
type Hasher interface {
	DigestLeaf(value []byte) Digest
	DigestPair(left, right Digest) Digest
	Algorithm() HashAlgorithm
	// DigestSize is the digest length in bytes (the hex form is twice as long).
	DigestSize() int
}

type sumFunc func(data ...[]byte) []byte

type hasher struct {
	algorithm HashAlgorithm
	sum       sumFunc
}

var _ Hasher = (*hasher)(nil)

func (h *hasher) DigestLeaf(value []byte) Digest {
	return Digest(hex.EncodeToString(h.sum(value)))
}

func (h *hasher) DigestPair(left, right Digest) Digest {
	return Digest(hex.EncodeToString(h.sum([]byte(left), []byte(right))))
}

func (h *hasher) Algorithm() HashAlgorithm {
	return h.algorithm
}

func (h *hasher) DigestSize() int {
	return digestSize
}

func sha256Sum(data ...[]byte) []byte {
	d := sha256.New()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

func sha3Sum(data ...[]byte) []byte {
	d := sha3.New256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

var sumFuncs = map[HashAlgorithm]sumFunc{
	HashAlgorithmSHA256:     sha256Sum,
	HashAlgorithmKeccak256:  crypto.Keccak256,
	HashAlgorithmSHA3_256:   sha3Sum,
	HashAlgorithmBlake2b256: blake2b.New().Hash,
}

// NewHasher returns the Hasher for the named algorithm. An empty name selects
// DefaultHashAlgorithm.
func NewHasher(algorithm HashAlgorithm) (Hasher, error) {
	if algorithm == "" {
		algorithm = DefaultHashAlgorithm
	}
	sum, ok := sumFuncs[HashAlgorithm(strings.ToLower(string(algorithm)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedAlgorithm, algorithm, SupportedHashAlgorithmsString())
	}
	return &hasher{algorithm: HashAlgorithm(strings.ToLower(string(algorithm))), sum: sum}, nil
}

// DefaultHasher returns the SHA-256 hasher.
func DefaultHasher() Hasher {
	return &hasher{algorithm: HashAlgorithmSHA256, sum: sha256Sum}
}

// SupportedHashAlgorithms lists every algorithm accepted by NewHasher.
func SupportedHashAlgorithms() []HashAlgorithm {
	return []HashAlgorithm{
		HashAlgorithmSHA256,
		HashAlgorithmKeccak256,
		HashAlgorithmSHA3_256,
		HashAlgorithmBlake2b256,
	}
}

// SupportedHashAlgorithmsString returns the supported algorithms for CLI help.
func SupportedHashAlgorithmsString() string {
	names := make([]string, 0, len(sumFuncs))
	for _, a := range SupportedHashAlgorithms() {
		names = append(names, a.String())
	}
	return strings.Join(names, ", ")
}
