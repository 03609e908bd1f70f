package offlinecache

import (
	"testing"

	"github.com/goldshop/offline-cache/cache"

	"github.com/rs/zerolog"
)

func TestNewRejectsBadConfig(t *testing.T) {
	logger := zerolog.Nop()
	base := Config{
		Generation: "goldshop-cache-v3",
		OriginURL:  "http://localhost:9",
		Store:      cache.NewMemStore(),
		Logger:     &logger,
	}

	c := base
	c.Generation = ""
	if _, err := New(c); err == nil {
		t.Fatal("no error for missing generation")
	}

	c = base
	c.Store = nil
	if _, err := New(c); err == nil {
		t.Fatal("no error for missing store")
	}

	c = base
	c.OriginURL = ""
	if _, err := New(c); err == nil {
		t.Fatal("no error for missing origin")
	}

	c = base
	c.OriginURL = "/no/scheme"
	if _, err := New(c); err == nil {
		t.Fatal("no error for relative origin")
	}

	c = base
	c.OriginURL = "http://localhost:9/app"
	if _, err := New(c); err == nil {
		t.Fatal("no error for origin with path")
	}
}

func TestNewAcceptsTrailingSlashOrigin(t *testing.T) {
	logger := zerolog.Nop()
	g, err := New(Config{
		Generation: "goldshop-cache-v3",
		OriginURL:  "http://localhost:9/",
		Store:      cache.NewMemStore(),
		Logger:     &logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	g.Close()
}

func TestNewDefaults(t *testing.T) {
	g := newTestGateway(t, "http://localhost:9", nil)
	if g.Generation() != "goldshop-cache-v3" {
		t.Fatalf("generation is %s", g.Generation())
	}
	if g.offlinePath != DefaultOfflinePath {
		t.Fatalf("offline path is %s", g.offlinePath)
	}
	if len(g.exclude) != 1 || g.exclude[0] != "/api/" {
		t.Fatalf("exclusions are %v", g.exclude)
	}
}

func TestCloseIdempotent(t *testing.T) {
	g := newTestGateway(t, "http://localhost:9", nil)
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
}
