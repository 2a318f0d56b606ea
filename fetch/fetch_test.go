package fetch

import (
	"net/http"
	"net/http/httptest"
	"net/url"
)

// hostRewriteTransport sends every request to target regardless of the
// request's original scheme/host, so fetchers built around a hardcoded
// upstream URL (GDMFURL, CISAKEVURL, DeveloperReleasesURL,
// XProtectCatalogURL) can be driven against an httptest.Server without any
// production code changes, matching the real-server-over-mock preference
// _examples/quay-claircore/rhel/vex/fetcher_test.go shows.
type hostRewriteTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (t hostRewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	req.Host = t.target.Host
	return t.next.RoundTrip(req)
}

// redirectingClient returns an http.Client bound to srv that rewrites every
// outbound request's scheme and host to srv's, leaving path/query intact so
// a mux registered with the production constant's real path still dispatches
// correctly.
func redirectingClient(srv *httptest.Server) *http.Client {
	target, err := url.Parse(srv.URL)
	if err != nil {
		panic(err)
	}
	c := srv.Client()
	c.Transport = hostRewriteTransport{target: target, next: c.Transport}
	return c
}
