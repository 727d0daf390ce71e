package merkle

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func TestFuzzProveVerify(t *testing.T) {
	if testing.Short() {
		t.Skip("TestFuzzProveVerify skipped in short mode.")
	}

	f := fuzz.New().NilChance(0).NumElements(1, 96)
	for _, algorithm := range SupportedHashAlgorithms() {
		h, err := NewHasher(algorithm)
		require.NoError(t, err)

		for round := 0; round < 25; round++ {
			var pages [][]byte
			f.Fuzz(&pages)
			if len(pages) == 0 {
				continue
			}

			leaves := HashLeaves(h, pages)
			root, err := Build(h, leaves)
			require.NoError(t, err)

			for i, leaf := range leaves {
				proof, err := GenerateProof(root, leaf)
				require.NoError(t, err, "algorithm=%s leaves=%d index=%d", algorithm, len(leaves), i)
				require.Len(t, proof, TreeHeight(len(leaves)))
				require.True(t, VerifyProof(h, root.Hash, leaf, proof),
					"algorithm=%s leaves=%d index=%d", algorithm, len(leaves), i)
			}
		}
	}
}

func FuzzVerifyProofNeverPanics(f *testing.F) {
	h := DefaultHasher()
	leaves := pageDigests(h, 3)
	root, err := Build(h, leaves)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(string(root.Hash), string(leaves[0]), string(leaves[1]), "R")
	f.Add("", "", "", "")

	f.Fuzz(func(t *testing.T, rootHash, leafHash, sibling, side string) {
		proof := Proof{{Hash: Digest(sibling), Side: Side(side)}}
		_ = VerifyProof(h, Digest(rootHash), Digest(leafHash), proof)
	})
}
