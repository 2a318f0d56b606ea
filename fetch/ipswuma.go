package fetch

import "context"

// IPSWUMAAsset is one entry an IPSW/UMA catalog reports for a given
// platform/version: the full-restore image and/or updater-app URL, keyed
// the same way GDMFAsset is (spec.md §3 GLOSSARY: IPSW/UMA).
type IPSWUMAAsset struct {
	Platform string
	Version  string
	Build    string
	URL      string
}

// IPSWUMACatalog is the two-function consumed interface spec.md §1 names:
// IPSW/UMA catalog parsing is explicitly out of SOFA's core scope, treated
// as an external collaborator whose catalog this package only reads
// through this interface, never parses itself.
type IPSWUMACatalog interface {
	// Assets returns every known IPSW/UMA asset for platform.
	Assets(ctx context.Context, platform string) ([]IPSWUMAAsset, error)
	// Refresh re-fetches the catalog's backing data, if any; a no-op
	// implementation is valid (e.g. a static/embedded catalog).
	Refresh(ctx context.Context) error
}

// NoopIPSWUMACatalog satisfies IPSWUMACatalog without any backing data, the
// default when no catalog is configured: GDMFMerger already supplies
// SupportedDevices/AllBuilds, so IPSW/UMA data is a pure addition no
// ReleaseRecord invariant depends on.
type NoopIPSWUMACatalog struct{}

func (NoopIPSWUMACatalog) Assets(context.Context, string) ([]IPSWUMAAsset, error) { return nil, nil }
func (NoopIPSWUMACatalog) Refresh(context.Context) error                          { return nil }
