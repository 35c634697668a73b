package merkle

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func addrN(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

func TestVerifyMembers(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 5, 8, 9} {
		addrs := make([]common.Address, size)
		for i := range addrs {
			addrs[i] = addrN(byte(i + 1))
		}
		tree := NewTree(addrs)
		root := tree.Root()
		for _, addr := range addrs {
			proof, ok := tree.Proof(addr)
			if !ok {
				t.Fatalf("size %d: no proof for member %s", size, addr)
			}
			if !Verify(root, addr, proof) {
				t.Fatalf("size %d: proof for member %s did not verify", size, addr)
			}
		}
	}
}

func TestVerifyNonMember(t *testing.T) {
	addrs := []common.Address{addrN(1), addrN(2), addrN(3), addrN(4)}
	tree := NewTree(addrs)
	outsider := addrN(99)

	if _, ok := tree.Proof(outsider); ok {
		t.Fatal("tree returned a proof for a non-member")
	}
	// a member's proof must not verify for someone else
	proof, _ := tree.Proof(addrs[0])
	if Verify(tree.Root(), outsider, proof) {
		t.Fatal("non-member verified with a stolen proof")
	}
}

func TestZeroRootDisablesGating(t *testing.T) {
	if !Verify(common.Hash{}, addrN(7), nil) {
		t.Fatal("zero root must always pass")
	}
}

func TestProofOrderIndependentOfSide(t *testing.T) {
	// sorted-pair hashing: swapping leaf order must not change the root
	a := NewTree([]common.Address{addrN(1), addrN(2)})
	b := NewTree([]common.Address{addrN(2), addrN(1)})
	if a.Root() != b.Root() {
		t.Fatalf("roots differ: %s vs %s", a.Root(), b.Root())
	}
}
