package issuance

import (
	"bytes"

	"licbind/internal/chain"
	"licbind/pkg/contracts/domain"
)

// LeafHash computes the allowlist leaf for an asset: the keccak of its
// canonical encoding.
func LeafHash(asset domain.AssetRef) chain.Hash {
	return chain.Keccak256(asset.Encode())
}

// hashPair combines two nodes with sorted-pair hashing: the smaller node
// hashes first, so verification needs no left/right flags.
func hashPair(a, b chain.Hash) chain.Hash {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return chain.Keccak256(a[:], b[:])
	}
	return chain.Keccak256(b[:], a[:])
}

// VerifyProof folds an inclusion proof from leaf to root. An empty proof is
// valid only for a single-leaf tree where the leaf is the root.
func VerifyProof(leaf chain.Hash, proof []chain.Hash, root chain.Hash) bool {
	node := leaf
	for _, sibling := range proof {
		node = hashPair(node, sibling)
	}
	return node == root
}

// MerkleTree is a sorted-pair Merkle tree over a fixed leaf set, used by the
// admin tooling to publish roots and hand out proofs. An odd node at any
// level is promoted unchanged.
type MerkleTree struct {
	levels [][]chain.Hash
}

// NewMerkleTree builds a tree over the given leaves. A nil or empty leaf set
// yields a zero root, which the allowlist refuses to install.
func NewMerkleTree(leaves []chain.Hash) *MerkleTree {
	if len(leaves) == 0 {
		return &MerkleTree{}
	}

	levels := [][]chain.Hash{append([]chain.Hash{}, leaves...)}
	for len(levels[len(levels)-1]) > 1 {
		current := levels[len(levels)-1]
		next := make([]chain.Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				next = append(next, current[i])
			}
		}
		levels = append(levels, next)
	}
	return &MerkleTree{levels: levels}
}

// Root returns the tree root, or the zero hash for an empty tree.
func (t *MerkleTree) Root() chain.Hash {
	if len(t.levels) == 0 {
		return chain.ZeroHash
	}
	return t.levels[len(t.levels)-1][0]
}

// Proof returns the inclusion proof for the leaf at index i.
func (t *MerkleTree) Proof(i int) []chain.Hash {
	if len(t.levels) == 0 || i < 0 || i >= len(t.levels[0]) {
		return nil
	}

	var proof []chain.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := i ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		i >>= 1
	}
	return proof
}
