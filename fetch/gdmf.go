package fetch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quay/zlog"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/cache"
)

// GDMFURL is Apple's Global Device Management Facility asset-set endpoint.
const GDMFURL = "https://gdmf.apple.com/v2/pmv"

// GDMFStaleWindow is the tolerance window fetch_gdmf.py's CACHE_DURATION
// encodes: GDMF is polled at most this often, and a cache entry younger than
// this is served without even attempting a conditional request (supplemented
// feature, spec.md omits the window and SPEC_FULL.md's SUPPLEMENTED FEATURES
// section restores it from the original).
const GDMFStaleWindow = 6 * time.Hour

// GDMFResponse is Apple's raw GDMF payload: a map of OS-type key to its
// asset list. watchOS and tvOS assets are published under the "iOS" key,
// distinguished only by each asset's SupportedDevices prefix
// ("Watch"/"AppleTV") — internal/gdmf resolves that, not this fetcher.
type GDMFResponse struct {
	PublicAssetSets map[string][]sofa.GDMFAsset `json:"PublicAssetSets"`
}

// GDMFClient fetches and caches Apple's GDMF asset sets (spec.md §4.2
// GDMFClient), grounded on fetch_gdmf.py's GDMFClient and on
// enricher/kev/kev.go's Configure/FetchEnrichment split for the Go shape.
// Store must have been built with NewGDMFClient's pinned-cert http.Client
// (client.go), since GDMF rejects requests over the system trust store
// without a warning first being logged.
type GDMFClient struct {
	Store *cache.Store
}

// Fetch returns the current GDMF asset sets, honoring the 6h stale window
// before even attempting a conditional request, then falling back to
// cache.Store's ETag/Last-Modified revalidation. If that request fails, a
// cached response fetched less than GDMFStaleWindow ago is returned in place
// of the error; an older one is not.
func (c *GDMFClient) Fetch(ctx context.Context, forceRefresh bool) (GDMFResponse, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "fetch/GDMFClient.Fetch")

	if !forceRefresh {
		if meta, ok := c.Store.Meta(GDMFURL); ok && time.Since(meta.FetchedAt) < GDMFStaleWindow {
			var cached GDMFResponse
			if ok, err := c.Store.GetParsed(GDMFURL, &cached); err == nil && ok {
				zlog.Debug(ctx).Dur("age", time.Since(meta.FetchedAt)).Msg("GDMF cache within stale window, skipping network")
				return cached, nil
			}
		}
	}

	body, modified, err := c.Store.Get(ctx, GDMFURL, cache.Options{ForceRefresh: forceRefresh})
	if err != nil {
		var cached GDMFResponse
		if meta, ok := c.Store.Meta(GDMFURL); ok && time.Since(meta.FetchedAt) < GDMFStaleWindow {
			if ok, gerr := c.Store.GetParsed(GDMFURL, &cached); gerr == nil && ok {
				zlog.Warn(ctx).Err(err).Msg("GDMF fetch failed, using stale cache")
				return cached, nil
			}
		}
		return GDMFResponse{}, err
	}

	if !modified {
		var cached GDMFResponse
		if ok, _ := c.Store.GetParsed(GDMFURL, &cached); ok {
			return cached, nil
		}
	}

	var resp GDMFResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return GDMFResponse{}, err
	}
	if err := c.Store.PutParsed(GDMFURL, resp); err != nil {
		return GDMFResponse{}, err
	}
	return resp, nil
}
