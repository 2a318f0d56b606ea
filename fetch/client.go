// Package fetch implements SOFA's Source Fetchers (spec.md §4.2): thin
// adapters over the HTTP Cache plus a source-specific parser, one per
// upstream data source (Apple's security-release index and detail pages,
// GDMF, CISA KEV, XProtect's sucatalog, and the developer beta feed).
//
// Every fetcher shares a stable User-Agent and per-source certificate policy,
// grounded on _examples/quay-claircore/rhel/vex/fetcher.go's
// Updater{client, url} field pair and
// _examples/quay-claircore/enricher/kev/kev.go's Configure/FetchEnrichment
// split.
package fetch

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"
)

// UserAgent identifies SOFA to upstream servers across every fetcher.
const UserAgent = "sofa-pipeline/1.0 (+https://github.com/sofa-project/sofa)"

// DefaultTimeout is the bounded per-request timeout spec.md §5 mandates.
const DefaultTimeout = 30 * time.Second

// DefaultMaxRetries is the small bounded retry count spec.md §5 mandates for
// transient errors; Retryable says which failures qualify (a 4xx never does).
// The fetchers in this package and cache.Store issue each request once and
// do not read this constant.
const DefaultMaxRetries = 3

// userAgentTransport adds the SOFA User-Agent to every outbound request.
type userAgentTransport struct {
	next http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	return t.next.RoundTrip(req)
}

// NewClient builds the default http.Client used by every fetcher except
// GDMF: a bounded timeout and the system trust store.
func NewClient() *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: userAgentTransport{next: http.DefaultTransport},
	}
}

// NewGDMFClient builds the GDMF client with Apple's pinned root certificate
// (spec.md §6 "Trust": GDMF requires config/AppleRoot.pem; its absence
// either triggers insecure mode if explicitly requested, or falls back to
// the system trust store with a warning).
func NewGDMFClient(rootPEMPath string, insecure bool) (*http.Client, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()

	switch {
	case insecure:
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit operator opt-in, documented in spec.md §6
	case rootPEMPath != "":
		pem, err := os.ReadFile(rootPEMPath)
		if err != nil {
			return nil, fmt.Errorf("fetch: read GDMF root certificate %s: %w", rootPEMPath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("fetch: no certificates parsed from %s", rootPEMPath)
		}
		base.TLSClientConfig = &tls.Config{RootCAs: pool}
	default:
		// Fall back to the system trust store; the caller is responsible
		// for logging the warning spec.md §6 requires in this case.
	}

	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: userAgentTransport{next: base},
	}, nil
}

// Retryable reports whether err/status warrants a retry: never for 4xx
// responses (spec.md §5: "A 4xx is never retried"), otherwise yes for
// network errors and 5xx.
func Retryable(statusCode int, err error) bool {
	if err != nil {
		return true
	}
	if statusCode >= 400 && statusCode < 500 {
		return false
	}
	return statusCode >= 500 || statusCode == 0
}

// Backoff returns the exponential backoff delay for retry attempt n (0-based).
func Backoff(attempt int) time.Duration {
	d := 250 * time.Millisecond
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}
