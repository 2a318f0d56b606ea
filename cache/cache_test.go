package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// TestGetConditionalRevalidation covers testable property 5: a second Get
// with no force flags returns a byte-identical body via a conditional
// request that the server answers with 304, never re-transferring content
// (S2 in spec.md: a 304 round trip leaves the cached body intact).
func TestGetConditionalRevalidation(t *testing.T) {
	var hits int32
	const body = "<html><body>hello</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("If-Modified-Since") == "Mon, 01 Jan 2024 00:00:00 GMT" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := New(dir, srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	b1, modified1, err := store.Get(context.Background(), srv.URL, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !modified1 {
		t.Fatal("first fetch should report modified")
	}
	if string(b1) != body {
		t.Fatalf("unexpected body: %q", b1)
	}

	b2, modified2, err := store.Get(context.Background(), srv.URL, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if modified2 {
		t.Fatal("second fetch should report unchanged (304)")
	}
	if string(b2) != body {
		t.Fatalf("unexpected body on revalidation: %q", b2)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected 2 requests (one per Get call, second short-circuited by 304), got %d", got)
	}
}

func TestGetNetworkErrorFallsBackToCache(t *testing.T) {
	const body = "<html>cached</html>"
	var fail int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			panic(http.ErrAbortHandler)
		}
		w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := New(dir, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Get(context.Background(), srv.URL, Options{}); err != nil {
		t.Fatal(err)
	}

	atomic.StoreInt32(&fail, 1)
	b, modified, err := store.Get(context.Background(), srv.URL, Options{ForceRefresh: true})
	if err != nil {
		t.Fatalf("expected cached fallback, got error: %v", err)
	}
	if modified {
		t.Fatal("fallback to cache must report unmodified")
	}
	if string(b) != body {
		t.Fatalf("unexpected fallback body: %q", b)
	}
}

func TestNormalizeTextStripsScriptsAndCollapsesWhitespace(t *testing.T) {
	in := "<html>\n  <script>var x = 1;</script>\n  <body>  Hello   World  </body>\n</html>"
	got := NormalizeText(in)
	want := "<html> <body> Hello World </body> </html>"
	if got != want {
		t.Errorf("NormalizeText() = %q, want %q", got, want)
	}
}

func TestUnchangedContentSkipsParsedReEmit(t *testing.T) {
	// A 200 whose normalized content hash matches the stored one must report
	// wasModified=false per spec.md §4.1, even though a request was made.
	const body = "<html><body>same</body></html>"
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Vary only whitespace/dynamic churn so content_hash is identical.
		if calls == 1 {
			w.Write([]byte(body))
		} else {
			w.Write([]byte("<html>\n<body>same</body>\n</html>"))
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := New(dir, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if _, modified, err := store.Get(context.Background(), srv.URL, Options{}); err != nil || !modified {
		t.Fatalf("first fetch: modified=%v err=%v", modified, err)
	}
	_, modified, err := store.Get(context.Background(), srv.URL, Options{VerifyContent: true, ForceRefresh: true})
	if err != nil {
		t.Fatal(err)
	}
	if modified {
		t.Fatal("identical normalized content must report wasModified=false")
	}
}
