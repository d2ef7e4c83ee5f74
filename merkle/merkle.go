package merkle

import (
	"bytes"

	sha256 "github.com/minio/sha256-simd"
	"github.com/storemarket/market-core/market"
)

// LeafHash hashes raw chunk data into a tree leaf.
func LeafHash(data []byte) market.Hash {
	return market.Hash(sha256.Sum256(data))
}

// hashPair combines two sibling nodes. The pair is sorted before hashing,
// so inclusion proofs carry no leaf-index parameter.
func hashPair(a, b market.Hash) market.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var out market.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Verify reports whether proof opens leaf under root.
func Verify(root, leaf market.Hash, proof []market.Hash) bool {
	acc := leaf
	for _, sibling := range proof {
		acc = hashPair(acc, sibling)
	}
	return acc == root
}

// Tree is an in-memory merkle tree over a fixed set of leaves, used by
// provers to produce roots and inclusion proofs. An unpaired node at the
// end of a level is carried up unchanged.
type Tree struct {
	levels [][]market.Hash
}

// NewTree builds a tree over leaves. It returns nil for an empty set.
func NewTree(leaves []market.Hash) *Tree {
	if len(leaves) == 0 {
		return nil
	}
	level := make([]market.Hash, len(leaves))
	copy(level, leaves)

	t := &Tree{levels: [][]market.Hash{level}}
	for len(level) > 1 {
		next := make([]market.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.levels[0])
}

// Root returns the tree root.
func (t *Tree) Root() market.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the inclusion proof for the leaf at index.
func (t *Tree) Proof(index int) []market.Hash {
	if index < 0 || index >= t.Len() {
		return nil
	}
	var proof []market.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		index /= 2
	}
	return proof
}
