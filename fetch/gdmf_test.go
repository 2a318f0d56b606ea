package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sofa-project/sofa/cache"
)

const gdmfResponseJSON = `{"PublicAssetSets":{"macOS":[{"ProductVersion":"14.2","Build":"23C64","SupportedDevices":["Mac15,1"]}]}}`

func TestGDMFClientFetchParsesAssetSets(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc(mustPath(t, GDMFURL), func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(gdmfResponseJSON))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store, err := cache.New(t.TempDir(), redirectingClient(srv))
	if err != nil {
		t.Fatal(err)
	}
	c := &GDMFClient{Store: store}

	resp, err := c.Fetch(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	assets, ok := resp.PublicAssetSets["macOS"]
	if !ok || len(assets) != 1 {
		t.Fatalf("expected 1 macOS asset, got %+v", resp.PublicAssetSets)
	}
	if assets[0].ProductVersion != "14.2" {
		t.Errorf("unexpected product version: %q", assets[0].ProductVersion)
	}

	// Within GDMFStaleWindow, a second Fetch must not issue another request.
	if _, err := c.Fetch(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected stale window to skip the second network request, got %d hits", got)
	}
}
