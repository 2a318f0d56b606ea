package feed

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/sofa-project/sofa"
)

// rssItemCap is spec.md §4.8's "cap ~20 per OSVersion" for the RSS view.
const rssItemCap = 20

// RSSItem is one RSS 2.0 <item> (spec.md §6): guid is non-permalink, per
// spec.md's literal format "{platform}-{version}-{release_date}".
type RSSItem struct {
	XMLName     xml.Name `xml:"item"`
	Title       string   `xml:"title"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	GUID        RSSGUID  `xml:"guid"`
}

// RSSGUID renders guid isPermaLink="false", matching spec.md §6's "guid ...
// non-permalink" requirement.
type RSSGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// RSSChannel is one platform's RSS 2.0 channel.
type RSSChannel struct {
	XMLName     xml.Name  `xml:"channel"`
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []RSSItem `xml:"item"`
}

// RSSFeed is the top-level RSS 2.0 document: one channel per platform
// (spec.md §6).
type RSSFeed struct {
	XMLName xml.Name     `xml:"rss"`
	Version string       `xml:"version,attr"`
	Channel []RSSChannel `xml:"channel"`
}

// BuildRSSChannel renders one platform's retained releases as an RSS
// channel, capped at rssItemCap items per OSVersion block (spec.md §4.8).
// Description text is plain text with a CVE-count summary and, per
// SPEC_FULL.md's SUPPLEMENTED FEATURES (generate_rss_feeds.py), a "[KEV] N
// actively exploited" highlight line when any CVE on the release is
// confirmed exploited.
func BuildRSSChannel(platform sofa.Platform, blocks []OSVersionBlock) RSSChannel {
	ch := RSSChannel{
		Title:       fmt.Sprintf("SOFA: %s Security Releases", platform),
		Link:        "https://support.apple.com/en-us/100100",
		Description: fmt.Sprintf("Latest %s security releases tracked by SOFA", platform),
	}
	for _, b := range blocks {
		n := b.SecurityReleases
		if len(n) > rssItemCap {
			n = n[:rssItemCap]
		}
		for _, r := range n {
			ch.Items = append(ch.Items, buildRSSItem(platform, b.OSVersion, r))
		}
	}
	return ch
}

func buildRSSItem(platform sofa.Platform, osVersion string, r Release) RSSItem {
	var desc strings.Builder
	fmt.Fprintf(&desc, "%s %s (build %s): %d CVE(s) addressed.", platform, r.ProductVersion, r.Build, r.UniqueCVEsCount)
	if n := len(r.ActivelyExploitedCVEs); n > 0 {
		fmt.Fprintf(&desc, " [KEV] %d actively exploited.", n)
	}

	guidValue := fmt.Sprintf("%s-%s-%s", platform, r.ProductVersion, dateOnly(r.ReleaseDate))
	pubDate := r.ReleaseDate
	if t, err := time.Parse("2006-01-02T15:04:05Z", r.ReleaseDate); err == nil {
		pubDate = t.Format(time.RFC1123Z)
	}

	return RSSItem{
		Title:       fmt.Sprintf("%s %s — %s", platform, r.ProductVersion, osVersion),
		Description: desc.String(),
		PubDate:     pubDate,
		GUID:        RSSGUID{IsPermaLink: "false", Value: guidValue},
	}
}

func dateOnly(iso string) string {
	if t, err := time.Parse("2006-01-02T15:04:05Z", iso); err == nil {
		return t.Format("2006-01-02")
	}
	return iso
}

// BuildRSSFeed assembles the full multi-channel RSS document (spec.md §6:
// "RSS 2.0 channel per platform").
func BuildRSSFeed(channels []RSSChannel) RSSFeed {
	return RSSFeed{Version: "2.0", Channel: channels}
}

// Marshal renders f as an XML document with a declaration header.
func (f RSSFeed) Marshal() ([]byte, error) {
	b, err := xml.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), b...), nil
}
