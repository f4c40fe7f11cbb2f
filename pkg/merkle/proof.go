package merkle

import "strings"

// Position marks which side of the pair a sibling hash sits on.
type Position string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"
)

// ProofNode is one sibling on the path from a leaf to the root.
type ProofNode struct {
	Position Position `json:"position"`
	Hash     string   `json:"hash"`
}

// BuildProof returns the sibling path for the leaf at index, ordered from
// the leaf level up. An out-of-range index returns an empty proof: callers
// must treat an empty proof plus a non-matching leaf as "no inclusion
// claim", not as a verified result.
func BuildProof(leaves []string, index int) []ProofNode {
	if index < 0 || index >= len(leaves) {
		return []ProofNode{}
	}

	proof := []ProofNode{}
	level := append([]string(nil), leaves...)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		sibling := index ^ 1
		pos := PositionRight
		if sibling < index {
			pos = PositionLeft
		}
		proof = append(proof, ProofNode{Position: pos, Hash: level[sibling]})

		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, HashPair(level[i], level[i+1]))
		}
		level = next
		index /= 2
	}
	return proof
}

// VerifyProof folds the proof over the leaf hash and compares the result to
// the root. With a commutative HashPair the recorded positions do not change
// the outcome, but they are honored so the check stays correct if the
// pairing rule becomes positional. A leaf, root or proof node that is not
// valid hex fails verification instead of being hashed as a partial decode.
func VerifyProof(leaf string, proof []ProofNode, root string) bool {
	if !validHex(leaf) || !validHex(root) {
		return false
	}
	current := leaf
	for _, node := range proof {
		if !validHex(node.Hash) {
			return false
		}
		if node.Position == PositionLeft {
			current = HashPair(node.Hash, current)
		} else {
			current = HashPair(current, node.Hash)
		}
	}
	return strings.EqualFold(current, root)
}
