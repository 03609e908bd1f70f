package offlinecache

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goldshop/offline-cache/cache"
)

func TestControlHealthz(t *testing.T) {
	g := newTestGateway(t, deadOriginURL(), nil)
	handler := g.ControlHandler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code is %d", rr.Code)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("body is %s", body)
	}
}

func TestControlStatus(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page"))
	}))
	defer origin.Close()
	g := newTestGateway(t, origin.URL, nil)
	g.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	g.Flush()

	rr := httptest.NewRecorder()
	g.ControlHandler().ServeHTTP(rr, httptest.NewRequest("GET", "/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code is %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type is %s", ct)
	}
	var payload statusPayload
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Generation != "goldshop-cache-v3" {
		t.Fatalf("generation is %s", payload.Generation)
	}
	if payload.Counters["misses"] != 1 || payload.Counters["stored"] != 1 {
		t.Fatalf("counters are %v", payload.Counters)
	}
	if len(payload.Latencies) == 0 {
		t.Fatal("no latency stats")
	}
}

func TestControlCaches(t *testing.T) {
	store := cache.NewMemStore()
	seedResponse(t, store, "goldshop-cache-v2", "/", "old", nil)
	seedResponse(t, store, "goldshop-cache-v3", "/", "new", nil)
	seedResponse(t, store, "goldshop-cache-v3", "/login", "login", nil)
	g := newTestGateway(t, deadOriginURL(), func(c *Config) { c.Store = store })

	rr := httptest.NewRecorder()
	g.ControlHandler().ServeHTTP(rr, httptest.NewRequest("GET", "/caches", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code is %d", rr.Code)
	}
	var infos []cacheInfo
	if err := json.NewDecoder(rr.Body).Decode(&infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("cache infos are %v", infos)
	}
	if infos[0].Name != "goldshop-cache-v2" || infos[0].Current || infos[0].Entries != 1 {
		t.Fatalf("first cache info is %+v", infos[0])
	}
	if infos[1].Name != "goldshop-cache-v3" || !infos[1].Current || infos[1].Entries != 2 {
		t.Fatalf("second cache info is %+v", infos[1])
	}
}

func TestControlInstall(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("front page"))
	}))
	defer origin.Close()
	g := newTestGateway(t, origin.URL, func(c *Config) { c.Manifest = []string{"/"} })

	rr := httptest.NewRecorder()
	g.ControlHandler().ServeHTTP(rr, httptest.NewRequest("POST", "/install", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code is %d", rr.Code)
	}
	var report InstallReport
	if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if len(report.Installed) != 1 || report.Installed[0].Path != "/" {
		t.Fatalf("installed %v", report.Installed)
	}
	if _, ok, _ := g.store.Match(keyForPath("/")); !ok {
		t.Fatal("no cache entry for /")
	}
}

func TestControlActivate(t *testing.T) {
	store := cache.NewMemStore()
	seedResponse(t, store, "goldshop-cache-v2", "/", "old", nil)
	g := newTestGateway(t, deadOriginURL(), func(c *Config) { c.Store = store })

	rr := httptest.NewRecorder()
	g.ControlHandler().ServeHTTP(rr, httptest.NewRequest("POST", "/activate", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code is %d", rr.Code)
	}
	var report ActivateReport
	if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if len(report.Deleted) != 1 || report.Deleted[0] != "goldshop-cache-v2" {
		t.Fatalf("deleted %v", report.Deleted)
	}
}

func TestControlInstallRejectsGet(t *testing.T) {
	g := newTestGateway(t, deadOriginURL(), nil)

	rr := httptest.NewRecorder()
	g.ControlHandler().ServeHTTP(rr, httptest.NewRequest("GET", "/install", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code is %d", rr.Code)
	}
}
