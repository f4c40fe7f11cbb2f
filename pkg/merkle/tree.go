// Package merkle commits an ordered batch of events to a single digest with
// provable inclusion. Leaves are SHA-256 digests of canonical JSON; levels
// pair left to right, duplicating the last node when a level is odd, until
// one root remains.
//
// Pairwise combination is commutative: the two child hashes are sorted
// before hashing, so a sibling verifies from either side. That trades away
// positional binding, which is acceptable for settlement anchoring; proof
// nodes still record a side in case the pairing rule ever changes.
package merkle

import (
	"bytes"
	"encoding/hex"

	"github.com/atlasops/integrity-core/pkg/canonical"
)

// HashLeaf returns the leaf digest for a batch member: SHA-256 of its
// canonical JSON form.
func HashLeaf(v any) (string, error) {
	return canonical.Hash(v)
}

// HashPair combines two node hashes. HashPair(a, b) == HashPair(b, a).
func HashPair(a, b string) string {
	if b < a {
		a, b = b, a
	}
	var buf bytes.Buffer
	buf.Write(hexBytes(a))
	buf.Write(hexBytes(b))
	return canonical.HashBytes(buf.Bytes())
}

// Root reduces an ordered list of leaf hashes to the tree root. An empty
// batch has no commitment; the root is the empty string. A single leaf is
// its own root.
func Root(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}

	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		level = reduceLevel(level)
	}
	return level[0]
}

func reduceLevel(level []string) []string {
	if len(level)%2 != 0 {
		level = append(level, level[len(level)-1])
	}
	next := make([]string, 0, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next = append(next, HashPair(level[i], level[i+1]))
	}
	return next
}

func hexBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}

func validHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
