package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ComputeUpdateHash implements spec.md §3's UpdateHash: a SHA-256 over the
// document's canonical JSON with UpdateHash and generated_at elided, so
// recomputing it (testable property 1) always reproduces the stored value
// and unrelated runs over identical data hash identically (spec.md §5:
// "The UpdateHash over a feed MUST be stable across unrelated runs").
//
// hashable is taken as any so this single function serves both schemas
// without a type switch; callers pass the copy Document.Hashable or
// DocumentV2.Hashable returns. That copy is the typed struct with UpdateHash
// (and, for v2, generated_at) set to the empty string: the keys are still
// present in the hashed JSON, with empty values.
func ComputeUpdateHash(hashable any) (string, error) {
	// Struct fields marshal in declaration order and encoding/json sorts the
	// keys of nested maps, which is what makes this canonical across runs
	// regardless of Go map iteration order.
	b, err := json.Marshal(hashable)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Hashable returns a copy of d with UpdateHash set to "", for feeding to
// ComputeUpdateHash.
func (d Document) Hashable() any {
	d.UpdateHash = ""
	return d
}

// Hashable returns a copy of d with UpdateHash and GeneratedAt set to "".
func (d DocumentV2) Hashable() any {
	d.UpdateHash = ""
	d.GeneratedAt = ""
	return d
}
