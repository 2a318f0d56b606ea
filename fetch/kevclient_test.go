package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/sofa-project/sofa/cache"
)

const kevCatalogJSON = `{
	"catalogVersion": "2024.01.01",
	"count": 1,
	"vulnerabilities": [
		{
			"cveID": "CVE-2023-42917",
			"vendorProject": "Apple",
			"product": "macOS",
			"dateAdded": "2023-12-15",
			"shortDescription": "WebKit memory corruption",
			"knownRansomwareCampaignUse": "Unknown"
		}
	]
}`

func TestKEVClientFetchParsesCatalog(t *testing.T) {
	mux := http.NewServeMux()
	path := mustPath(t, CISAKEVURL)
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(kevCatalogJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store, err := cache.New(t.TempDir(), redirectingClient(srv))
	if err != nil {
		t.Fatal(err)
	}
	c := &KEVClient{Store: store}

	entries, err := c.Fetch(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := entries["CVE-2023-42917"]
	if !ok {
		t.Fatalf("expected CVE-2023-42917 in parsed entries, got %+v", entries)
	}
	if entry.RansomwareUse != "Unknown" {
		t.Errorf("unexpected ransomware use: %q", entry.RansomwareUse)
	}
}

func mustPath(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u.Path
}
