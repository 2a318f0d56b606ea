package feed

import (
	"crypto/sha256"
	"encoding/hex"
)

// ManifestEntry is one output file's record in the Emit-stage manifest
// (spec.md §6). Changed and DurationSeconds (on the manifest as a whole)
// are SPEC_FULL.md SUPPLEMENTED FEATURES carried from
// original_source/.../scripts/generate_manifest.py: beyond size/hash/mtime,
// the original also records whether a file changed relative to the previous
// run and the run's overall duration.
type ManifestEntry struct {
	Path         string `json:"path"`
	SizeBytes    int64  `json:"size_bytes"`
	ContentHash  string `json:"content_hash"`
	LastModified string `json:"last_modified"`
	Changed      bool   `json:"changed"`
}

// Manifest is the Emit stage's per-run summary: one entry per output file,
// plus whether any platform emitted an empty OSVersions block (spec.md §7
// RetentionEmpty: "the manifest flags it").
type Manifest struct {
	Files            []ManifestEntry `json:"files"`
	EmptyPlatforms   []string        `json:"empty_platforms,omitempty"`
	DurationSeconds  float64         `json:"duration_seconds"`
}

// Timestamp is the per-platform timestamp.json record (spec.md §6).
type Timestamp struct {
	LastCheck  string `json:"LastCheck"`
	UpdateHash string `json:"UpdateHash"`
}

// HashBytes computes the hex SHA-256 of b, used by the manifest writer to
// record each output file's content_hash.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
