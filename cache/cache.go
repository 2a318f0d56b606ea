// Package cache implements SOFA's content-addressed HTTP cache (spec.md
// §4.1): every network call in the pipeline goes through a Store, which
// serves conditional revalidation against three parallel keyspaces
// (metadata, raw bytes, parsed derivatives) keyed by SHA-1(url), with atomic
// write-temp-then-rename durability grounded on
// _examples/quay-claircore/pkg/tmp/file.go (kept adapted at
// internal/spool/file.go) and the conditional-GET shape
// _examples/quay-claircore/rhel/vex/fetcher.go and
// _examples/quay-claircore/enricher/kev/kev.go use against their own sources.
package cache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/sofa-project/sofa/internal/httputil"
	"github.com/sofa-project/sofa/internal/spool"
)

// Sentinel errors, named to match spec.md §4.1 / §7's error taxonomy.
var (
	// ErrNetworkUnavailable is returned when a fetch fails and no cached
	// raw body exists to fall back to.
	ErrNetworkUnavailable = errors.New("cache: network unavailable and no cached entry")
	// ErrCacheCorrupt marks a metadata entry that failed to decode; callers
	// should treat the key as a miss and continue.
	ErrCacheCorrupt = errors.New("cache: metadata corrupt")
	// ErrCacheWriteFailed is fatal to the run: the Fetch stage must not
	// proceed to Emit with uncommitted writes.
	ErrCacheWriteFailed = errors.New("cache: write failed")
)

// Metadata is the per-URL record stored under urls/<sha1(url)>.json.
type Metadata struct {
	URL          string    `json:"url"`
	LastModified string    `json:"last_modified"`
	ETag         string    `json:"etag"`
	ContentHash  string    `json:"content_hash"`
	FetchedAt    time.Time `json:"seen"`
}

// Options controls one Get call's conditional-request behavior (spec.md
// §4.1 Contract).
type Options struct {
	// ForceRefresh skips the If-Modified-Since conditional header.
	ForceRefresh bool
	// VerifyContent always issues the request even if an entry is cached
	// (still conditional unless ForceRefresh is also set).
	VerifyContent bool
}

// Store is the three-keyspace on-disk cache described in spec.md §6's
// data/cache/ layout.
type Store struct {
	root   string
	client *http.Client
}

// New returns a Store rooted at dir (spec.md §6: data/cache/), creating the
// urls/, raw/, and parsed/ subdirectories if missing.
func New(dir string, client *http.Client) (*Store, error) {
	if client == nil {
		client = http.DefaultClient
	}
	for _, sub := range []string{"urls", "raw", "parsed"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("cache: create %s: %w", sub, err)
		}
	}
	return &Store{root: dir, client: client}, nil
}

// key returns the SHA-1 hex digest spec.md §6 uses as the cache filename for
// url. This is the single canonicalization boundary every cache call site
// must pass through (Design Notes open question, resolved in DESIGN.md).
func key(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (s *Store) metaPath(url string) string   { return filepath.Join(s.root, "urls", key(url)+".json") }
func (s *Store) rawPath(url string) string    { return filepath.Join(s.root, "raw", key(url)+".html") }
func (s *Store) parsedPath(url string) string { return filepath.Join(s.root, "parsed", key(url)+".json") }

func (s *Store) readMeta(url string) (*Metadata, bool, error) {
	b, err := os.ReadFile(s.metaPath(url))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: read metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		// CacheCorrupt: discard the offending key, treat as miss.
		return nil, false, ErrCacheCorrupt
	}
	return &m, true, nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by rename, so a crash mid-write never leaves a half-written
// entry (spec.md §4.1 "Writes to raw and metadata must be atomic").
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := spool.NewFile(dir, ".tmp-cache-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheWriteFailed, err)
	}
	success := false
	defer func() {
		if !success {
			f.Close()
		}
	}()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheWriteFailed, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheWriteFailed, err)
	}
	name := f.Name()
	if err := f.File.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheWriteFailed, err)
	}
	success = true // the file is closed, not removed; rename takes over
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: %v", ErrCacheWriteFailed, err)
	}
	return nil
}

// scriptStyleNoscript strips <script>, <style>, and <noscript> elements,
// collapses whitespace, and puts exactly one space between adjacent tags
// (so "><" and ">\n<" normalize alike), matching spec.md §4.1's normalized-text definition
// for content_hash. A full HTML parse/walk is avoided here deliberately: the
// normalization only needs to be consistent from one fetch to the next for
// the SAME page (so dynamic script/style churn doesn't force reprocessing),
// not semantically perfect, and the DOM-level parsing budget belongs to the
// Release Extractor's single-DOM-per-page design (spec.md §9).
var (
	scriptStyleTag = regexp.MustCompile(`(?is)<(script|style|noscript)\b[^>]*>.*?</\s*(script|style|noscript)\s*>`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	betweenTags    = regexp.MustCompile(`>\s*<`)
)

// NormalizeText implements spec.md §4.1's content_hash input: strip
// <script>/<style>/<noscript>, collapse whitespace, and normalize the gap
// between adjacent tags to a single space.
func NormalizeText(html string) string {
	stripped := scriptStyleTag.ReplaceAllString(html, " ")
	collapsed := whitespaceRun.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(betweenTags.ReplaceAllString(collapsed, "> <"))
}

func contentHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Get fetches url through the cache, honoring conditional revalidation per
// spec.md §4.1's Contract. wasModified is false when the cached body is
// still valid (304, or a 200 whose normalized content hash is unchanged).
func (s *Store) Get(ctx context.Context, url string, opts Options) (body []byte, wasModified bool, err error) {
	ctx = zlog.ContextWithValues(ctx, "component", "cache/Store.Get", "url", url)

	meta, hasMeta, err := s.readMeta(url)
	if err != nil && !errors.Is(err, ErrCacheCorrupt) {
		return nil, false, err
	}
	if errors.Is(err, ErrCacheCorrupt) {
		zlog.Warn(ctx).Msg("cache metadata corrupt, treating as miss")
		hasMeta = false
		meta = nil
	}

	var cachedRaw []byte
	if hasMeta {
		if b, err := os.ReadFile(s.rawPath(url)); err == nil {
			cachedRaw = b
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	if hasMeta && len(cachedRaw) > 0 && !opts.ForceRefresh {
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if len(cachedRaw) > 0 {
			zlog.Warn(ctx).Err(err).Msg("network error, serving cached body")
			return cachedRaw, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if len(cachedRaw) == 0 {
			// "A 304 with no cached raw_bytes must trigger a retry without
			// the conditional header" (spec.md §4.1).
			zlog.Warn(ctx).Msg("304 with no cached body, retrying unconditionally")
			return s.Get(ctx, url, Options{ForceRefresh: true, VerifyContent: opts.VerifyContent})
		}
		now := time.Now().UTC()
		if hasMeta {
			meta.FetchedAt = now
			if err := s.writeMeta(meta); err != nil {
				return nil, false, err
			}
		}
		return cachedRaw, false, nil
	case http.StatusOK:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("cache: read response body: %w", err)
		}
		normalized := NormalizeText(string(raw))
		newHash := contentHash(normalized)
		now := time.Now().UTC()
		newMeta := &Metadata{
			URL:          url,
			LastModified: resp.Header.Get("Last-Modified"),
			ETag:         resp.Header.Get("ETag"),
			ContentHash:  newHash,
			FetchedAt:    now,
		}
		unchanged := hasMeta && meta.ContentHash == newHash
		if unchanged {
			newMeta.ContentHash = newHash
		}
		if err := s.writeMeta(newMeta); err != nil {
			return nil, false, err
		}
		if !unchanged {
			if err := writeAtomic(s.rawPath(url), raw); err != nil {
				return nil, false, err
			}
		}
		return raw, !unchanged, nil
	default:
		checkErr := httputil.CheckResponse(resp, http.StatusOK, http.StatusNotModified)
		if len(cachedRaw) > 0 {
			zlog.Warn(ctx).Int("status", resp.StatusCode).Err(checkErr).Msg("unexpected status, serving cached body")
			return cachedRaw, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrNetworkUnavailable, checkErr)
	}
}

func (s *Store) writeMeta(m *Metadata) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("cache: encode metadata: %w", err)
	}
	return writeAtomic(s.metaPath(m.URL), b)
}

// PutParsed writes a source-specific parsed derivative for url (spec.md
// §4.1: "written by callers via PutParsed(url, value)").
func (s *Store) PutParsed(url string, value any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("cache: encode parsed derivative: %w", err)
	}
	return writeAtomic(s.parsedPath(url), buf.Bytes())
}

// GetParsed reads a previously stored parsed derivative into dst. It reports
// (false, nil) on a plain cache miss.
func (s *Store) GetParsed(url string, dst any) (bool, error) {
	b, err := os.ReadFile(s.parsedPath(url))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: read parsed derivative: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, ErrCacheCorrupt
	}
	return true, nil
}

// HasRaw reports whether a raw body is cached for url without fetching it.
func (s *Store) HasRaw(url string) bool {
	_, err := os.Stat(s.rawPath(url))
	return err == nil
}

// Meta returns the stored metadata for url, if any.
func (s *Store) Meta(url string) (*Metadata, bool) {
	m, ok, err := s.readMeta(url)
	if err != nil {
		return nil, false
	}
	return m, ok
}
