package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/snappy"
	"github.com/quay/zlog"
	"golang.org/x/net/html"

	"github.com/sofa-project/sofa/cache"
)

// DeveloperReleasesURL is Apple's rolling developer-release news page, the
// source apple_os_releases_scraper.py scrapes for beta/RC/RSR
// announcements that never appear on the stable security-release index.
const DeveloperReleasesURL = "https://developer.apple.com/news/releases/"

// betaTitlePattern matches anchor text of the shape "iOS 18.2 beta 3
// (22C5125e)", mirroring apple_os_releases_scraper.py's TITLE_RE.
var betaTitlePattern = regexp.MustCompile(`^(iOS|iPadOS|macOS|tvOS|watchOS|visionOS)\s+([^(]+?)\s*\(([^)]+)\)\s*$`)

// BetaItem is one parsed release-news card.
type BetaItem struct {
	Platform string `json:"platform"`
	Title    string `json:"title"`
	Version  string `json:"version"`
	Build    string `json:"build"`
	Released string `json:"released"`
}

func (b BetaItem) key() string { return b.Platform + "-" + b.Version + "-" + b.Build }

// BetaArchive is the persistent, deduplicated historical record of beta/RC
// releases (supplemented feature: spec.md's distillation dropped the
// standing archive that merge_beta_history.py maintains across runs; every
// item the scraper has ever seen accumulates here, even after Apple removes
// it from the live release-news page).
type BetaArchive struct {
	Items []BetaItem `json:"items"`
}

// LoadBetaArchive reads a snappy-compressed JSON archive from path. A
// missing file is not an error: it means no history has been recorded yet.
func LoadBetaArchive(path string) (*BetaArchive, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &BetaArchive{}, nil
		}
		return nil, err
	}
	decoded, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, fmt.Errorf("fetch: decompress beta archive %s: %w", path, err)
	}
	var archive BetaArchive
	if err := json.Unmarshal(decoded, &archive); err != nil {
		return nil, fmt.Errorf("fetch: decode beta archive %s: %w", path, err)
	}
	return &archive, nil
}

// Merge adds items not already present by platform/version/build key
// (grounded on merge_beta_history.py's create_item_key/existing_keys logic),
// then re-sorts newest first.
func (a *BetaArchive) Merge(items []BetaItem) int {
	seen := make(map[string]bool, len(a.Items))
	for _, it := range a.Items {
		seen[it.key()] = true
	}
	added := 0
	for _, it := range items {
		if seen[it.key()] {
			continue
		}
		seen[it.key()] = true
		a.Items = append(a.Items, it)
		added++
	}
	sort.SliceStable(a.Items, func(i, j int) bool {
		return a.Items[i].Released > a.Items[j].Released
	})
	return added
}

// Save writes the archive to path, snappy-compressed, via a temp-file-then-
// rename so a crash mid-write never corrupts the standing archive.
func (a *BetaArchive) Save(path string) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	compressed := snappy.Encode(nil, raw)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".beta-archive-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// BetaReleasesScraper scrapes Apple's developer release-news page for
// beta/RC releases within a trailing window and folds them into a
// persistent dedup archive (spec.md §4.2 BetaReleasesScraper, supplemented
// with apple_os_releases_scraper.py + merge_beta_history.py semantics).
type BetaReleasesScraper struct {
	Store       *cache.Store
	ArchivePath string
	WindowDays  int
}

// Scrape fetches the release-news page, parses cards published within the
// window, merges them into the on-disk archive, and returns the full
// archive (including history outside the window).
func (s *BetaReleasesScraper) Scrape(ctx context.Context) (*BetaArchive, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "fetch/BetaReleasesScraper.Scrape")

	body, _, err := s.Store.Get(ctx, DeveloperReleasesURL, cache.Options{})
	if err != nil {
		return nil, err
	}

	window := s.WindowDays
	if window <= 0 {
		window = 90
	}
	cutoff := time.Now().AddDate(0, 0, -window)

	items, err := parseBetaCards(body, cutoff)
	if err != nil {
		return nil, err
	}

	archive, err := LoadBetaArchive(s.ArchivePath)
	if err != nil {
		return nil, err
	}
	added := archive.Merge(items)
	zlog.Info(ctx).Int("new_items", added).Int("total", len(archive.Items)).Msg("merged beta release history")

	if err := archive.Save(s.ArchivePath); err != nil {
		return nil, err
	}
	return archive, nil
}

// parseBetaCards walks every <a> in document order, matching anchor text
// against betaTitlePattern and locating a nearby release date by scanning
// forward through sibling nodes (apple_os_releases_scraper.py's
// find_date_for_card/find_links_for_card sibling-walk, adapted to
// golang.org/x/net/html's sibling pointers instead of BeautifulSoup's).
func parseBetaCards(body []byte, cutoff time.Time) ([]BetaItem, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var items []BetaItem
	for _, a := range findAll(root, "a") {
		title := textContent(a)
		m := betaTitlePattern.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		dateStr := findNearbyDate(a)
		if dateStr == "" {
			continue
		}
		released, ok := parseFlexibleDate(dateStr)
		if !ok || released.Before(cutoff) {
			continue
		}
		items = append(items, BetaItem{
			Platform: m[1],
			Title:    title,
			Version:  strings.TrimSpace(m[2]),
			Build:    strings.TrimSpace(m[3]),
			Released: released.Format("2006-01-02"),
		})
	}
	return items, nil
}

// findNearbyDate walks sibling nodes following n looking for text that
// parses as a date, stopping early once another release title is found.
func findNearbyDate(n *html.Node) string {
	sib := n.NextSibling
	for i := 0; sib != nil && i < 80; i, sib = i+1, sib.NextSibling {
		if sib.Type == html.ElementNode && (sib.Data == "a" || sib.Data == "h2" || sib.Data == "h3") {
			if betaTitlePattern.MatchString(textContent(sib)) {
				break
			}
		}
		text := strings.TrimSpace(textContent(sib))
		if text == "" {
			continue
		}
		if _, ok := parseFlexibleDate(text); ok {
			return text
		}
	}
	return ""
}

var betaDateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
	time.RFC3339,
}

func parseFlexibleDate(s string) (time.Time, bool) {
	for _, layout := range betaDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
