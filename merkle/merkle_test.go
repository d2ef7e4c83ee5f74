package merkle

import (
	"fmt"
	"testing"

	"github.com/storemarket/market-core/market"
	"github.com/stretchr/testify/require"
)

func TestVerifyAllLeaves(t *testing.T) {
	for _, count := range []int{1, 2, 3, 4, 5, 8, 13} {
		t.Run(fmt.Sprintf("leaves-%d", count), func(t *testing.T) {
			leaves := makeLeaves(count)
			tree := NewTree(leaves)
			require.Equal(t, count, tree.Len())

			for i, leaf := range leaves {
				proof := tree.Proof(i)
				require.True(t, Verify(tree.Root(), leaf, proof), "leaf %d", i)
			}
		})
	}
}

func TestVerifySingleLeaf(t *testing.T) {
	leaf := LeafHash([]byte("only piece"))
	tree := NewTree([]market.Hash{leaf})

	// A single-leaf tree has the leaf as root and an empty proof.
	require.Equal(t, leaf, tree.Root())
	require.Empty(t, tree.Proof(0))
	require.True(t, Verify(tree.Root(), leaf, nil))
}

func TestVerifyRejectsWrongLeaf(t *testing.T) {
	leaves := makeLeaves(6)
	tree := NewTree(leaves)

	proof := tree.Proof(2)
	require.True(t, Verify(tree.Root(), leaves[2], proof))
	require.False(t, Verify(tree.Root(), leaves[3], proof))
	require.False(t, Verify(tree.Root(), LeafHash([]byte("bogus")), proof))
}

func TestVerifyRejectsCorruptedProof(t *testing.T) {
	leaves := makeLeaves(8)
	tree := NewTree(leaves)

	proof := tree.Proof(5)
	proof[1][0] ^= 0xff
	require.False(t, Verify(tree.Root(), leaves[5], proof))

	// Truncated proof.
	require.False(t, Verify(tree.Root(), leaves[5], tree.Proof(5)[:1]))
}

func TestTwoLevelCommitment(t *testing.T) {
	// Chunk hashes form the piece tree; piece roots form the top tree.
	// This is the shape challenges are verified against.
	var pieceRoots []market.Hash
	var pieceTrees []*Tree
	for p := 0; p < 4; p++ {
		var chunks []market.Hash
		for c := 0; c < 7; c++ {
			chunks = append(chunks, LeafHash([]byte(fmt.Sprintf("piece-%d-chunk-%d", p, c))))
		}
		pt := NewTree(chunks)
		pieceTrees = append(pieceTrees, pt)
		pieceRoots = append(pieceRoots, pt.Root())
	}
	top := NewTree(pieceRoots)

	// Piece inclusion in the top tree.
	require.True(t, Verify(top.Root(), pieceRoots[2], top.Proof(2)))

	// Chunk inclusion in the piece tree.
	chunk := LeafHash([]byte("piece-2-chunk-3"))
	require.True(t, Verify(pieceRoots[2], chunk, pieceTrees[2].Proof(3)))
}

func TestEmptyTree(t *testing.T) {
	require.Nil(t, NewTree(nil))
}

func makeLeaves(n int) []market.Hash {
	leaves := make([]market.Hash, n)
	for i := range leaves {
		leaves[i] = LeafHash([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	return leaves
}
