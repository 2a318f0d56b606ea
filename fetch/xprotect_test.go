package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sofa-project/sofa/cache"
)

const xprotectPKM = `<pkg-info>
<bundle id="com.apple.XProtectFramework.XProtect" CFBundleShortVersionString="2188"/>
</pkg-info>`

func TestXProtectClientDiscoversAndParsesPKMPackages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(mustPath(t, XProtectCatalogURL), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("https://example.invalid/XProtectPlistConfigData_v1.pkm"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// The catalog's embedded pkm URL is rewritten to point back at the test
	// server the same way the initial catalog request is, since both go
	// through the same redirecting client.
	mux.HandleFunc("/XProtectPlistConfigData_v1.pkm", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(xprotectPKM))
	})

	store, err := cache.New(t.TempDir(), redirectingClient(srv))
	if err != nil {
		t.Fatal(err)
	}
	c := &XProtectClient{Store: store}

	versions, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if versions.ConfigData.Version != "2188" {
		t.Errorf("unexpected config data version: %q", versions.ConfigData.Version)
	}
}
