package fetch

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/quay/zlog"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/cache"
)

// detailURLPattern matches Apple support article identifiers anywhere in a
// detail page URL's path: /en-us/HT213983, /kb/HT213983, /en-ca/121012, etc.
var detailURLPattern = regexp.MustCompile(`(?i)/(?:kb/|[a-z]{2}-[a-z]{2}/)?((?:HT)?\d{5,6})/?$`)

// CanonicalDetailURL resolves spec.md §9's open question: Apple serves the
// same advisory under several locale and path shapes (/kb/HT213983,
// /en-us/HT213983, /en-ca/HT213983, plain numeric article IDs). All shapes
// referring to the same article must collapse onto a single cache key, so
// every fetch/cache call site routes through this function before it ever
// reaches cache.Store (see DESIGN.md's Open Questions decisions).
func CanonicalDetailURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	m := detailURLPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return raw
	}
	article := strings.ToUpper(m[1])
	return "https://support.apple.com/en-us/" + article
}

// ResolveURL resolves a possibly-relative href against the page it was
// found on, and canonicalizes the result if it looks like a detail page.
func ResolveURL(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	resolved := base.ResolveReference(ref).String()
	return CanonicalDetailURL(resolved)
}

// DetailCVE is one CVE entry parsed from a detail page's component sections,
// grounded on the <h3>Component</h3> / Impact: / Description: / Available
// for: block structure extract_cve_details.py reads.
type DetailCVE struct {
	CVEID        string `json:"cve_id"`
	Component    string `json:"component"`
	Impact       string `json:"impact"`
	Description  string `json:"description"`
	AvailableFor string `json:"available_for"`
}

// DetailPage is the parsed derivative DetailPageFetcher stores for one
// canonical detail URL.
type DetailPage struct {
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	ReleaseDate string      `json:"release_date"`
	Version     string      `json:"version"`
	Build       string      `json:"build"`
	CVEs        []DetailCVE `json:"cves"`
}

var (
	detailVersionPattern = regexp.MustCompile(`(?i)\b(?:iOS|iPadOS|macOS|watchOS|tvOS|visionOS|Safari)\s+(?:[\w ]+\s+)?(\d+(?:\.\d+)*)`)
	releaseDatePattern   = regexp.MustCompile(`Released\s+[A-Za-z]+\s+\d{1,2},\s+\d{4}`)

	// buildNumberPattern matches Apple's build grammar YYL followed by 1-5
	// digits and an optional trailing letter (24G84, 22H722, 18A5351d). The
	// year component is restricted to 18-29 (2018-2029); see
	// buildYearMin/buildYearMax below and spec.md §9's open question on
	// build-number parsing, which expires this pattern in 2030.
	buildNumberPattern = regexp.MustCompile(`\b(?:1[89]|2[0-9])[A-Z]\d{1,5}[a-z]?\b`)
)

const (
	buildYearMin = 18 // 2018, earliest year SOFA tracks
	buildYearMax = 29 // 2029; this pattern needs revisiting before 2030
)

func findBuildNumber(text string) string {
	return buildNumberPattern.FindString(text)
}

// DetailPageFetcher fetches each distinct detail page linked from the
// security index, de-duplicated by canonical URL, and parses it into
// per-CVE component/impact/description rows (spec.md §4.2 DetailPageFetcher).
type DetailPageFetcher struct {
	Store          *cache.Store
	Limiter        *OriginLimiter
	IncludePattern *regexp.Regexp // nil means include everything
	ExcludePattern *regexp.Regexp // nil means exclude nothing
	MaxPages       int            // 0 means unbounded

	// VerifyContent, when set, forces every detail-page fetch to re-request
	// and re-hash content even when a cached entry exists (spec.md §6
	// --detect-cache-changes).
	VerifyContent bool
}

// Fetch retrieves and parses every URL in urls after canonicalizing and
// de-duplicating it, applying include/exclude filters and the max-pages cap.
func (f *DetailPageFetcher) Fetch(ctx context.Context, urls []string) ([]DetailPage, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "fetch/DetailPageFetcher.Fetch")
	seen := make(map[string]bool)
	var pages []DetailPage
	for _, raw := range urls {
		if f.MaxPages > 0 && len(pages) >= f.MaxPages {
			zlog.Info(ctx).Int("max_pages", f.MaxPages).Msg("detail page cap reached")
			break
		}
		canon := CanonicalDetailURL(raw)
		if seen[canon] {
			continue
		}
		seen[canon] = true
		if f.IncludePattern != nil && !f.IncludePattern.MatchString(canon) {
			continue
		}
		if f.ExcludePattern != nil && f.ExcludePattern.MatchString(canon) {
			continue
		}

		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx, canon); err != nil {
				return pages, err
			}
		}

		page, err := f.fetchOne(ctx, canon)
		if err != nil {
			zlog.Warn(ctx).Err(err).Str("url", canon).Msg("detail page fetch failed")
			continue
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (f *DetailPageFetcher) fetchOne(ctx context.Context, detailURL string) (DetailPage, error) {
	body, modified, err := f.Store.Get(ctx, detailURL, cache.Options{VerifyContent: f.VerifyContent})
	if err != nil {
		var cached DetailPage
		if ok, gerr := f.Store.GetParsed(detailURL, &cached); gerr == nil && ok {
			return cached, nil
		}
		return DetailPage{}, err
	}
	if !modified {
		var cached DetailPage
		if ok, _ := f.Store.GetParsed(detailURL, &cached); ok {
			return cached, nil
		}
	}

	page := parseDetailPage(detailURL, body)
	if err := f.Store.PutParsed(detailURL, page); err != nil {
		return DetailPage{}, err
	}
	return page, nil
}

func parseDetailPage(detailURL string, body []byte) DetailPage {
	d, err := parseDOM(body)
	if err != nil {
		return DetailPage{URL: detailURL}
	}

	page := DetailPage{URL: detailURL}
	if hs := d.headings(); len(hs) > 0 {
		page.Title = textContent(hs[0])
	}

	bodyText := strings.Join(collectAllText(d), " ")
	if m := detailVersionPattern.FindStringSubmatch(page.Title); m != nil {
		page.Version = m[1]
	} else if m := detailVersionPattern.FindStringSubmatch(bodyText); m != nil {
		page.Version = m[1]
	}
	page.Build = findBuildNumber(string(body))
	if page.Build == "" {
		page.Build = findBuildNumber(bodyText)
	}
	if m := releaseDatePattern.FindString(bodyText); m != "" {
		page.ReleaseDate = m
	}

	page.CVEs = parseComponentSections(d)
	return page
}

// collectAllText returns text content of every heading, paragraph, and list
// item in document order, approximating a full-page text scrape without
// re-walking the DOM per call site.
func collectAllText(d *dom) []string {
	var out []string
	for _, h := range d.headings() {
		out = append(out, textContent(h))
	}
	for _, p := range d.paragraphs() {
		out = append(out, textContent(p))
	}
	for _, li := range d.listItems() {
		out = append(out, textContent(li))
	}
	return out
}

// parseComponentSections walks the document's headings/paragraphs/list items
// in true interleaved order, treating each heading as a component name and
// every block up to the next heading as its section body, extracting CVE
// IDs plus Impact:/Description:/Available for: fields (grounded on
// extract_cve_details.py's component_pattern / impact_match /
// available_match regexes).
func parseComponentSections(d *dom) []DetailCVE {
	skip := map[string]bool{
		"additional recognition":  true,
		"additional recognitions": true,
		"acknowledgements":        true,
		"acknowledgments":         true,
	}

	var out []DetailCVE
	blocks := d.blocks()
	var component string
	var sectionParts []string
	flush := func() {
		if component == "" || skip[strings.ToLower(component)] {
			return
		}
		section := strings.Join(sectionParts, " ")
		cveIDs := sofa.FindCVEIDs(section)
		if len(cveIDs) == 0 {
			return
		}
		impact := fieldAfter(section, "Impact:")
		description := fieldAfter(section, "Description:")
		availableFor := fieldAfter(section, "Available for:")
		for _, id := range cveIDs {
			out = append(out, DetailCVE{
				CVEID:        id,
				Component:    component,
				Impact:       impact,
				Description:  description,
				AvailableFor: availableFor,
			})
		}
	}

	for _, b := range blocks {
		if isHeading(b) {
			flush()
			component = textContent(b)
			sectionParts = nil
			continue
		}
		sectionParts = append(sectionParts, textContent(b))
	}
	flush()
	return out
}

// fieldAfter returns the text following label up to the next field label or
// end of section, mirroring extract_cve_details.py's
// re.search(r'Impact:\s*([^<]+)') but operating on already-collapsed text.
func fieldAfter(section, label string) string {
	idx := strings.Index(section, label)
	if idx < 0 {
		return ""
	}
	rest := section[idx+len(label):]
	for _, stop := range []string{"Impact:", "Description:", "Available for:", "Entry added", "Entry updated"} {
		if stop == label {
			continue
		}
		if si := strings.Index(rest, stop); si >= 0 {
			rest = rest[:si]
		}
	}
	return strings.TrimSpace(rest)
}
