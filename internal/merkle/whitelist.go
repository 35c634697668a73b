package merkle

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Leaf hashes an address into a whitelist tree leaf. The address is
// left-padded to a 32-byte word before hashing, matching the tree builders
// used by pool creators off-chain.
func Leaf(addr common.Address) common.Hash {
	word := make([]byte, 32)
	copy(word[12:], addr.Bytes())
	return crypto.Keccak256Hash(word)
}

// Verify recomputes the root from the leaf for addr and the proof path and
// compares it to root. Sibling pairs are sorted before hashing, so the proof
// carries no left/right flags. A zero root disables gating and always passes.
func Verify(root common.Hash, addr common.Address, proof []common.Hash) bool {
	if root == (common.Hash{}) {
		return true
	}
	node := Leaf(addr)
	for _, sibling := range proof {
		node = hashPair(node, sibling)
	}
	return node == root
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
}

// Tree is a sorted-pair keccak256 Merkle tree over address leaves. Pool
// creators use it to derive the whitelist root and per-address proofs.
type Tree struct {
	levels [][]common.Hash
}

// NewTree builds a tree from the given addresses. An empty address set
// produces the zero root (no gating).
func NewTree(addrs []common.Address) *Tree {
	if len(addrs) == 0 {
		return &Tree{}
	}
	level := make([]common.Hash, len(addrs))
	for i, addr := range addrs {
		level[i] = Leaf(addr)
	}
	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				// odd node promotes unchanged
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}
}

// Root returns the tree root, or the zero hash for an empty tree.
func (t *Tree) Root() common.Hash {
	if len(t.levels) == 0 {
		return common.Hash{}
	}
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the sibling path for addr, or false if addr is not a leaf.
func (t *Tree) Proof(addr common.Address) ([]common.Hash, bool) {
	if len(t.levels) == 0 {
		return nil, false
	}
	leaf := Leaf(addr)
	idx := -1
	for i, node := range t.levels[0] {
		if node == leaf {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	var proof []common.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof, true
}
