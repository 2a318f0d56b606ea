package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/sofa-project/sofa/cache"
)

func TestCanonicalDetailURLCollapsesLocaleAndPathShapes(t *testing.T) {
	cases := []string{
		"https://support.apple.com/en-us/HT213983",
		"https://support.apple.com/en-ca/HT213983",
		"https://support.apple.com/kb/HT213983",
		"https://support.apple.com/en-us/213983",
	}
	want := "https://support.apple.com/en-us/HT213983"
	for _, in := range cases {
		if got := CanonicalDetailURL(in); got != want {
			t.Errorf("CanonicalDetailURL(%q) = %q, want %q", in, got, want)
		}
	}
}

const detailPageHTML = `<html><body>
<h1>About the security content of macOS Sonoma 14.2</h1>
<p>Released 11 Dec 2023</p>
<h3>WebKit</h3>
<p>Impact: Processing maliciously crafted web content may lead to arbitrary code execution</p>
<p>Description: A memory corruption issue was addressed with improved state management. CVE-2023-42917: an anonymous researcher</p>
<p>Available for: macOS Sonoma</p>
<h3>Additional recognition</h3>
<p>Apple would like to thank an anonymous researcher.</p>
</body></html>`

func TestDetailPageFetcherParsesComponentSections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(detailPageHTML))
	}))
	defer srv.Close()

	store, err := cache.New(t.TempDir(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	f := &DetailPageFetcher{Store: store}

	pages, err := f.Fetch(context.Background(), []string{srv.URL, srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected duplicate URLs to collapse to 1 page, got %d", len(pages))
	}
	page := pages[0]
	if len(page.CVEs) != 1 {
		t.Fatalf("expected 1 CVE, got %d: %+v", len(page.CVEs), page.CVEs)
	}
	cve := page.CVEs[0]
	if cve.CVEID != "CVE-2023-42917" {
		t.Errorf("unexpected CVE ID: %q", cve.CVEID)
	}
	if cve.Component != "WebKit" {
		t.Errorf("unexpected component: %q", cve.Component)
	}
	if cve.AvailableFor != "macOS Sonoma" {
		t.Errorf("unexpected available_for: %q", cve.AvailableFor)
	}
}

func TestDetailPageFetcherHonorsExcludePattern(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(detailPageHTML))
	}))
	defer srv.Close()

	store, err := cache.New(t.TempDir(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	f := &DetailPageFetcher{Store: store, ExcludePattern: regexp.MustCompile(`HT213983`)}

	pages, err := f.Fetch(context.Background(), []string{"https://support.apple.com/en-us/HT213983"})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 0 {
		t.Fatalf("expected excluded URL to be skipped, got %d pages", len(pages))
	}
}
