package merkle

import (
	"fmt"
	"testing"
)

func BenchmarkBuild(b *testing.B) {
	h := DefaultHasher()
	for _, n := range []int{10, 100, 1000, 10000} {
		leaves := pageDigests(h, n)
		b.Run(fmt.Sprintf("leaves=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Build(h, leaves); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkGenerateProof(b *testing.B) {
	h := DefaultHasher()
	for _, n := range []int{10, 100, 1000, 10000} {
		leaves := pageDigests(h, n)
		root, err := Build(h, leaves)
		if err != nil {
			b.Fatal(err)
		}
		target := leaves[n-1]
		b.Run(fmt.Sprintf("leaves=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := GenerateProof(root, target); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkVerifyProof(b *testing.B) {
	h := DefaultHasher()
	leaves := pageDigests(h, 1000)
	root, err := Build(h, leaves)
	if err != nil {
		b.Fatal(err)
	}
	proof, err := GenerateProof(root, leaves[500])
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !VerifyProof(h, root.Hash, leaves[500], proof) {
			b.Fatal("proof should verify")
		}
	}
}
