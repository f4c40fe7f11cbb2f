// Package fbac implements field-level access control and masking. Per
// (tenant, table, field, access type) a policy decides whether a caller may
// touch a field and which mask transform applies before the value is
// exposed. Every resolution path fails closed: no principal, no policy row,
// or a policy-store error all mean deny and maximal masking.
package fbac

import (
	"fmt"
)

// MaskType is the transform applied to a field value before exposure.
type MaskType string

const (
	// MaskNone leaves the value unchanged.
	MaskNone MaskType = ""
	// MaskFull replaces the value with a fixed sentinel.
	MaskFull MaskType = "full"
	// MaskPartial reveals at most the first two and last two characters.
	MaskPartial MaskType = "partial"
	// MaskHash replaces the value with a fixed display placeholder. It does
	// NOT compute a digest of the value; see DESIGN.md before changing that.
	MaskHash MaskType = "hash"
)

const (
	fullSentinel = "***"
	hashSentinel = "####"
)

// MaskValue applies a mask transform. Masking is idempotent and never leaks
// the unmasked value through its output: the partial mask reveals a fixed
// prefix/suffix only when the stringified value is longer than four
// characters, and the full mask has constant length regardless of input.
func MaskValue(v any, mt MaskType) any {
	switch mt {
	case MaskNone:
		return v
	case MaskFull:
		return fullSentinel
	case MaskPartial:
		r := []rune(stringify(v))
		if len(r) <= 4 {
			return fullSentinel
		}
		return string(r[:2]) + fullSentinel + string(r[len(r)-2:])
	case MaskHash:
		return hashSentinel
	default:
		// Unknown mask types fail closed.
		return fullSentinel
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
