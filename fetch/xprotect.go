package fetch

import (
	"context"
	"encoding/xml"
	"regexp"

	"github.com/quay/zlog"

	"github.com/sofa-project/sofa/cache"
)

// XProtectCatalogURL is Apple's software-update catalog that lists the
// current XProtect config/payload package URLs, grounded on
// build_complete_feeds.py's fetch_xprotect_data.
const XProtectCatalogURL = "https://swscan.apple.com/content/catalogs/others/" +
	"index-15-14-13-12-10.16-10.15-10.14-10.13-10.12-10.11-10.10-10.9-" +
	"mountainlion-lion-snowleopard-leopard.merged-1.sucatalog"

var (
	xprotectConfigPKM  = regexp.MustCompile(`https\S*XProtectPlistConfigData\S*?\.pkm`)
	xprotectPayloadPKM = regexp.MustCompile(`https\S*XProtectPayloads\S*?\.pkm`)
	xprotectBundleID   = regexp.MustCompile(`XProtect|PluginService`)
)

// XProtectVersions holds the two XProtect component versions SOFA tracks:
// the plist configuration data and the malware-signature payloads.
type XProtectVersions struct {
	ConfigData XProtectComponent `json:"config_data"`
	Payloads   XProtectComponent `json:"payloads"`
}

// XProtectComponent is one XProtect bundle's version and release date.
type XProtectComponent struct {
	Version     string `json:"version"`
	ReleaseDate string `json:"release_date"`
}

// pkmPackage mirrors the subset of an Installer PackageInfo document
// (Apple's .pkm format) SOFA needs: each <bundle> element's id and
// CFBundleShortVersionString attributes.
type pkmPackage struct {
	XMLName xml.Name    `xml:"pkg-info"`
	Bundles []pkmBundle `xml:"bundle"`
}

type pkmBundle struct {
	ID      string `xml:"id,attr"`
	Version string `xml:"CFBundleShortVersionString,attr"`
}

// XProtectClient discovers and parses Apple's current XProtect package
// versions via the sucatalog + PKM two-step spec.md §4.2 describes.
type XProtectClient struct {
	Store *cache.Store
}

// Fetch retrieves the sucatalog, locates the config and payload .pkm URLs,
// and fetches/parses each to produce the current XProtect versions.
func (c *XProtectClient) Fetch(ctx context.Context) (XProtectVersions, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "fetch/XProtectClient.Fetch")

	catalog, _, err := c.Store.Get(ctx, XProtectCatalogURL, cache.Options{})
	if err != nil {
		return XProtectVersions{}, err
	}

	var out XProtectVersions
	if m := xprotectConfigPKM.Find(catalog); m != nil {
		if comp, err := c.fetchPKM(ctx, string(m)); err == nil {
			out.ConfigData = comp
		} else {
			zlog.Warn(ctx).Err(err).Msg("XProtectPlistConfigData pkm fetch failed")
		}
	}
	if m := xprotectPayloadPKM.Find(catalog); m != nil {
		if comp, err := c.fetchPKM(ctx, string(m)); err == nil {
			out.Payloads = comp
		} else {
			zlog.Warn(ctx).Err(err).Msg("XProtectPayloads pkm fetch failed")
		}
	}
	return out, nil
}

func (c *XProtectClient) fetchPKM(ctx context.Context, pkmURL string) (XProtectComponent, error) {
	body, _, err := c.Store.Get(ctx, pkmURL, cache.Options{})
	if err != nil {
		return XProtectComponent{}, err
	}

	var pkg pkmPackage
	if err := xml.Unmarshal(body, &pkg); err != nil {
		return XProtectComponent{}, err
	}

	var comp XProtectComponent
	for _, b := range pkg.Bundles {
		if containsXProtectID(b.ID) {
			comp.Version = b.Version
			break
		}
	}

	if meta, ok := c.Store.Meta(pkmURL); ok {
		comp.ReleaseDate = meta.LastModified
	}
	return comp, nil
}

func containsXProtectID(id string) bool {
	return xprotectBundleID.MatchString(id)
}
