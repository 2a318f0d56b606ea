package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sofa-project/sofa/cache"
)

const indexPageHTML = `<html><body><table>
<tr><th>Name</th><th>Date</th></tr>
<tr><td><a href="/en-us/HT213983">macOS Sonoma 14.2</a></td><td>11 Dec 2023</td></tr>
<tr><td><a href="/kb/HT213984">iOS 17.2</a></td><td>11 Dec 2023</td></tr>
</table></body></html>`

func TestSecurityIndexFetcherParsesRowsAndCanonicalizesLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(indexPageHTML))
	}))
	defer srv.Close()

	store, err := cache.New(t.TempDir(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	f := &SecurityIndexFetcher{Store: store, URLs: []string{srv.URL}}

	pages, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 index page, got %d", len(pages))
	}
	rows := pages[0].Rows
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].DetailURL != "https://support.apple.com/en-us/HT213983" {
		t.Errorf("row 0 detail URL not canonicalized: %q", rows[0].DetailURL)
	}
	if rows[1].DetailURL != "https://support.apple.com/en-us/HT213984" {
		t.Errorf("row 1 detail URL not canonicalized: %q", rows[1].DetailURL)
	}
	if rows[0].OSType != "macos" {
		t.Errorf("expected macos OS type, got %q", rows[0].OSType)
	}
	if rows[1].OSType != "ios" {
		t.Errorf("expected ios OS type, got %q", rows[1].OSType)
	}
}

func TestSecurityIndexFetcherFallsBackToCacheOnFailure(t *testing.T) {
	var fail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(indexPageHTML))
	}))
	defer srv.Close()

	store, err := cache.New(t.TempDir(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	f := &SecurityIndexFetcher{Store: store, URLs: []string{srv.URL}}

	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	fail = true
	pages, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected stale cache fallback, got error: %v", err)
	}
	if len(pages) != 1 || len(pages[0].Rows) != 2 {
		t.Fatalf("expected cached page to survive upstream failure, got %+v", pages)
	}
}
