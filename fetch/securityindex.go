package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/quay/zlog"

	"github.com/sofa-project/sofa/cache"
)

// IndexRow is one parsed row of Apple's security-release index: a release
// name, its published date, a best-effort OS-type guess, and the detail
// page URL if the row links to one (spec.md §4.2 SecurityIndexFetcher).
type IndexRow struct {
	Name      string `json:"name"`
	Date      string `json:"date"`
	OSType    string `json:"os_type"`
	DetailURL string `json:"detail_url"`
}

// IndexPage is the parsed derivative SecurityIndexFetcher stores for one
// index URL.
type IndexPage struct {
	SourceURL string     `json:"source_url"`
	Rows      []IndexRow `json:"rows"`
}

// SecurityIndexFetcher fetches a configurable set of Apple security-release
// index URLs and parses each into rows (spec.md §4.2).
type SecurityIndexFetcher struct {
	Store *cache.Store
	URLs  []string

	// VerifyContent, when set, forces every index fetch to re-request and
	// re-hash content even when a cached entry exists (spec.md §6
	// --detect-changes: verify_content on the HTTP Cache contract, spec.md
	// §4.1).
	VerifyContent bool
}

// Fetch retrieves and parses every configured index URL, storing the parsed
// form into the cache (spec.md: "Emits the parsed form into the cache").
// It returns the parsed pages; their rows' DetailURL fields are what
// DetailPageFetcher consumes next.
func (f *SecurityIndexFetcher) Fetch(ctx context.Context) ([]IndexPage, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "fetch/SecurityIndexFetcher.Fetch")
	var pages []IndexPage
	var lastErr error
	for _, u := range f.URLs {
		page, err := f.fetchOne(ctx, u)
		if err != nil {
			zlog.Warn(ctx).Err(err).Str("url", u).Msg("index page fetch failed")
			lastErr = err
			continue
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 && lastErr != nil {
		// spec.md §4.9: FetchStageFailed only if no index page was fetched
		// or cached.
		return nil, fmt.Errorf("fetch: no security index page available: %w", lastErr)
	}
	return pages, nil
}

func (f *SecurityIndexFetcher) fetchOne(ctx context.Context, indexURL string) (IndexPage, error) {
	body, modified, err := f.Store.Get(ctx, indexURL, cache.Options{VerifyContent: f.VerifyContent})
	if err != nil {
		var cached IndexPage
		if ok, gerr := f.Store.GetParsed(indexURL, &cached); gerr == nil && ok {
			zlog.Warn(ctx).Err(err).Msg("using stale cached index page")
			return cached, nil
		}
		return IndexPage{}, err
	}

	if !modified {
		var cached IndexPage
		if ok, _ := f.Store.GetParsed(indexURL, &cached); ok {
			return cached, nil
		}
		// Fall through and reparse if we somehow have a raw body but no
		// parsed derivative yet.
	}

	page := IndexPage{SourceURL: indexURL, Rows: parseIndexRows(body, indexURL)}
	if err := f.Store.PutParsed(indexURL, page); err != nil {
		return IndexPage{}, err
	}
	return page, nil
}

func parseIndexRows(body []byte, sourceURL string) []IndexRow {
	d, err := parseDOM(body)
	if err != nil {
		return nil
	}
	var rows []IndexRow
	for _, tr := range d.tableRows() {
		cs := cells(tr)
		if len(cs) < 2 {
			continue
		}
		header := true
		for _, c := range cs {
			if c.Data != "th" {
				header = false
				break
			}
		}
		if header {
			continue
		}
		name := textContent(cs[0])
		if name == "" {
			continue
		}
		date := textContent(cs[len(cs)-1])
		detailURL := ""
		if href, ok := firstLink(cs[0]); ok {
			detailURL = ResolveURL(sourceURL, href)
		}
		rows = append(rows, IndexRow{
			Name:      name,
			Date:      date,
			OSType:    guessOSType(name),
			DetailURL: detailURL,
		})
	}
	if len(rows) == 0 {
		// Fall back to list items for index pages that render as a
		// bulleted list instead of a table.
		for _, li := range d.listItems() {
			name := textContent(li)
			if name == "" {
				continue
			}
			href, ok := firstLink(li)
			detailURL := ""
			if ok {
				detailURL = ResolveURL(sourceURL, href)
			}
			rows = append(rows, IndexRow{Name: name, OSType: guessOSType(name), DetailURL: detailURL})
		}
	}
	return rows
}

func guessOSType(name string) string {
	lower := strings.ToLower(name)
	for _, kw := range []string{"macos", "ios", "ipados", "watchos", "tvos", "visionos", "safari"} {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}
