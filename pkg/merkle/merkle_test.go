package merkle

import (
	"fmt"
	"testing"
)

func testLeaves(t *testing.T, n int) []string {
	t.Helper()
	leaves := make([]string, n)
	for i := range leaves {
		h, err := HashLeaf(map[string]any{"event": "settlement", "seq": i})
		if err != nil {
			t.Fatalf("HashLeaf failed: %v", err)
		}
		leaves[i] = h
	}
	return leaves
}

func TestRoot_Empty(t *testing.T) {
	if got := Root(nil); got != "" {
		t.Errorf("Root(nil) = %q, want empty", got)
	}
}

func TestRoot_SingleLeaf(t *testing.T) {
	leaves := testLeaves(t, 1)
	if got := Root(leaves); got != leaves[0] {
		t.Errorf("Single leaf root = %s, want the leaf itself", got)
	}
	// Empty proof verifies the leaf against itself.
	if !VerifyProof(leaves[0], BuildProof(leaves, 0), leaves[0]) {
		t.Error("Single-leaf proof failed")
	}
}

func TestRoot_ThreeLeaves_DuplicatesLast(t *testing.T) {
	leaves := testLeaves(t, 3)

	// Level 0: [L0, L1, L2, L2]  (odd level duplicates the last)
	// Level 1: [P(L0,L1), P(L2,L2)]
	// Root:    P(P(L0,L1), P(L2,L2))
	n1 := HashPair(leaves[0], leaves[1])
	n2 := HashPair(leaves[2], leaves[2])
	want := HashPair(n1, n2)

	if got := Root(leaves); got != want {
		t.Errorf("Root = %s, want %s", got, want)
	}
}

func TestHashPair_Commutative(t *testing.T) {
	leaves := testLeaves(t, 2)
	if HashPair(leaves[0], leaves[1]) != HashPair(leaves[1], leaves[0]) {
		t.Error("HashPair is not commutative")
	}
}

func TestProof_RoundTripAllIndices(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 13} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			leaves := testLeaves(t, n)
			root := Root(leaves)
			for i := 0; i < n; i++ {
				proof := BuildProof(leaves, i)
				if !VerifyProof(leaves[i], proof, root) {
					t.Errorf("Proof for leaf %d/%d did not verify", i, n)
				}
			}
		})
	}
}

func TestProof_WrongLeafRejected(t *testing.T) {
	leaves := testLeaves(t, 5)
	root := Root(leaves)
	proof := BuildProof(leaves, 2)

	if VerifyProof(leaves[3], proof, root) {
		t.Error("Proof verified against the wrong leaf")
	}
}

func TestProof_OutOfRangeIndex(t *testing.T) {
	leaves := testLeaves(t, 4)

	for _, idx := range []int{-1, 4, 100} {
		proof := BuildProof(leaves, idx)
		if len(proof) != 0 {
			t.Errorf("BuildProof(%d) returned %d nodes, want empty", idx, len(proof))
		}
		// An empty proof never verifies a leaf that is not itself the root.
		if VerifyProof(leaves[0], proof, Root(leaves)) {
			t.Errorf("Empty proof for index %d verified", idx)
		}
	}
}

func TestVerifyProof_MalformedHexRejected(t *testing.T) {
	leaves := testLeaves(t, 4)
	root := Root(leaves)
	proof := BuildProof(leaves, 1)

	if VerifyProof("not-hex", proof, root) {
		t.Error("Malformed leaf verified")
	}
	if VerifyProof(leaves[1], proof, "zz"+root[2:]) {
		t.Error("Malformed root verified")
	}
	// Odd-length hex decodes a valid prefix; it must still be rejected.
	if VerifyProof(leaves[1][:63], proof, root) {
		t.Error("Truncated leaf verified")
	}

	bad := append([]ProofNode(nil), proof...)
	bad[0].Hash = "xyz"
	if VerifyProof(leaves[1], bad, root) {
		t.Error("Malformed proof node verified")
	}
}

func TestTamper_LeafChangesRoot(t *testing.T) {
	leaves := testLeaves(t, 6)
	oldRoot := Root(leaves)
	oldProof := BuildProof(leaves, 0)

	tampered, err := HashLeaf(map[string]any{"event": "settlement", "seq": 3, "amount": 1})
	if err != nil {
		t.Fatalf("HashLeaf failed: %v", err)
	}
	leaves[3] = tampered

	newRoot := Root(leaves)
	if newRoot == oldRoot {
		t.Fatal("Mutating a leaf did not change the root")
	}
	// The untouched leaf's old proof must not verify against the new root.
	if VerifyProof(leaves[0], oldProof, newRoot) {
		t.Error("Stale proof verified against the new root")
	}
}

func TestRoot_Deterministic(t *testing.T) {
	leaves := testLeaves(t, 9)
	if Root(leaves) != Root(leaves) {
		t.Error("Root is not deterministic")
	}

	// Root must not mutate its input (odd levels duplicate internally).
	before := append([]string(nil), leaves...)
	_ = Root(leaves)
	for i := range leaves {
		if leaves[i] != before[i] {
			t.Fatalf("Root mutated leaves[%d]", i)
		}
	}
}
