package release

import (
	"context"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/cache"
	"github.com/sofa-project/sofa/fetch"
)

// dateLayouts covers the date formats Apple's index rows and detail pages
// use ("March 4, 2025", ISO-8601, and the occasional RFC3339 timestamp).
var dateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
	time.RFC3339,
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Extractor builds the canonical ReleaseRecord stream purely from what's
// already in the cache (spec.md §4.3: "Purely cache-reading"). It never
// issues an HTTP request itself.
type Extractor struct {
	Store *cache.Store
}

// Extract walks every row of every index page, builds a ReleaseRecord
// skeleton for rows naming a recognized platform, and merges in the
// corresponding detail page's parsed derivative when one is cached
// (spec.md §4.3). Records are bucketed by platform; within a bucket, order
// follows index-page row order, and a row whose (Platform, Version, Build)
// repeats an earlier record's is dropped.
func (e *Extractor) Extract(ctx context.Context, pages []fetch.IndexPage) map[sofa.Platform][]*sofa.ReleaseRecord {
	ctx = zlog.ContextWithValues(ctx, "component", "release/Extractor.Extract")
	out := make(map[sofa.Platform][]*sofa.ReleaseRecord)
	seen := make(map[sofa.Identity]bool)

	for _, page := range pages {
		for _, row := range page.Rows {
			platform, ok := sofa.DetectPlatform(row.Name)
			if !ok {
				platform, ok = sofa.DetectPlatform(row.OSType)
			}
			if !ok {
				zlog.Debug(ctx).Str("row", row.Name).Msg("no platform keyword matched, dropping row")
				continue
			}

			r := &sofa.ReleaseRecord{
				Platform:    platform,
				Title:       row.Name,
				URL:         row.DetailURL,
				CVEDetails:  make(map[string]sofa.CVEDetail),
				ReleaseType: classifyReleaseType(platform, row.Name),
			}
			if v, ok := ExtractVersion(row.Name); ok {
				r.Version = v
			}
			if d, ok := parseDate(row.Date); ok {
				r.ReleaseDate = d
			}

			if row.DetailURL != "" {
				canon := fetch.CanonicalDetailURL(row.DetailURL)
				var detail fetch.DetailPage
				if ok, err := e.Store.GetParsed(canon, &detail); err == nil && ok {
					mergeDetail(r, detail)
				}
			}

			if r.Version == "" {
				zlog.Debug(ctx).Str("row", row.Name).Msg("no version extracted, dropping row")
				continue
			}
			if r.Build != "" {
				r.AllBuilds = appendUnique(r.AllBuilds, r.Build)
			}
			if seen[r.ID()] {
				zlog.Debug(ctx).Str("row", row.Name).Msg("duplicate (platform, version, build), dropping row")
				continue
			}
			seen[r.ID()] = true
			out[platform] = append(out[platform], r)
		}
	}
	return out
}

// mergeDetail folds a cached detail page's extracted fields into r,
// following spec.md §4.3's "merge in its extracted fields (title,
// release_date, version, build, cves)".
func mergeDetail(r *sofa.ReleaseRecord, d fetch.DetailPage) {
	if d.Title != "" {
		r.Title = d.Title
	}
	if d.Version != "" {
		r.Version = d.Version
	}
	if d.Build != "" {
		r.Build = d.Build
	}
	if t, ok := parseDate(d.ReleaseDate); ok {
		r.ReleaseDate = t
	}

	ids := make([]string, 0, len(d.CVEs))
	seen := make(map[string]bool, len(d.CVEs))
	for _, c := range d.CVEs {
		if seen[c.CVEID] {
			continue
		}
		seen[c.CVEID] = true
		ids = append(ids, c.CVEID)
		r.CVEDetails[c.CVEID] = sofa.CVEDetail{
			ComponentRaw: c.Component,
			Impact:       c.Impact,
			Description:  c.Description,
		}
	}
	r.CVEs = sofa.SortCVEIDs(ids)
}

func classifyReleaseType(platform sofa.Platform, title string) sofa.ReleaseType {
	switch {
	case platform == sofa.PlatformSafari:
		return sofa.ReleaseTypeBrowser
	case IsRSR(title):
		return sofa.ReleaseTypeRSR
	case strings.Contains(strings.ToLower(title), "rapid security response"):
		return sofa.ReleaseTypeRSR
	case strings.Contains(strings.ToLower(title), "configuration"):
		return sofa.ReleaseTypeConfig
	default:
		return sofa.ReleaseTypeOS
	}
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
