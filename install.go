package offlinecache

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goldshop/offline-cache/cache"

	"golang.org/x/sync/errgroup"
)

// installWorkers caps concurrent manifest fetches during install.
const installWorkers = 4

// AssetResult records one manifest path successfully fetched and stored.
type AssetResult struct {
	Path   string `json:"path"`
	Bytes  int    `json:"bytes"`
	Digest string `json:"digest"`
}

// AssetFailure records one manifest path that could not be cached.
type AssetFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// InstallReport summarizes one install pass over the asset manifest.
type InstallReport struct {
	Generation string         `json:"generation"`
	Installed  []AssetResult  `json:"installed"`
	Failed     []AssetFailure `json:"failed,omitempty"`
}

// Install opens the cache instance for the current generation and eagerly
// fetches and stores every manifest path. Paths are fetched concurrently
// and independently: a path that cannot be fetched or stored is recorded
// in the report and logged, without affecting the other paths. Install
// returns once every path has been attempted, and fails only when the
// cache generation itself cannot be opened.
func (g *Gateway) Install(ctx context.Context) (InstallReport, error) {
	report := InstallReport{Generation: g.generation}
	instance, err := g.store.Open(g.generation)
	if err != nil {
		g.log.Error().Err(err).Msg("could not open cache generation")
		return report, fmt.Errorf("opening cache generation %q: %w", g.generation, err)
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(installWorkers)
	for _, path := range g.manifest {
		path := path
		eg.Go(func() error {
			res, err := g.installAsset(ctx, instance, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				g.log.Warn().Err(err).Str("path", path).Msg("could not cache manifest asset")
				report.Failed = append(report.Failed, AssetFailure{Path: path, Error: err.Error()})
				return nil
			}
			report.Installed = append(report.Installed, res)
			return nil
		})
	}
	// Workers never return errors, so Wait only serves as the barrier.
	_ = eg.Wait()

	sort.Slice(report.Installed, func(i, j int) bool {
		return report.Installed[i].Path < report.Installed[j].Path
	})
	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].Path < report.Failed[j].Path
	})
	g.log.Info().
		Int("installed", len(report.Installed)).
		Int("failed", len(report.Failed)).
		Msg("install complete")
	return report, nil
}

// installAsset fetches a single manifest path from the origin and writes
// the serialized response into the given cache instance.
func (g *Gateway) installAsset(ctx context.Context, instance cache.Instance, path string) (AssetResult, error) {
	start := time.Now()
	u := *g.origin
	u.Path = path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return AssetResult{}, err
	}
	if g.originHost != "" {
		req.Host = g.originHost
	}
	res, err := g.client.Do(req)
	if err != nil {
		return AssetResult{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return AssetResult{}, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return AssetResult{}, fmt.Errorf("unexpected status %s", res.Status)
	}
	if res.Request != nil && res.Request.URL.Host != g.origin.Host {
		return AssetResult{}, fmt.Errorf("redirected off origin to %s", res.Request.URL.Host)
	}

	key := keyForPath(path)
	b, err := responseToBytes(res, body)
	if err != nil {
		return AssetResult{}, err
	}
	entry := cache.NewEntry(key, b)
	if err := instance.Put(key, entry); err != nil {
		return AssetResult{}, err
	}
	digest := hex.EncodeToString(entry.Digest)
	g.metrics.Record("install.asset", time.Since(start))
	g.metrics.Add(counterStored, 1)
	g.log.Debug().Str("path", path).Int("bytes", len(body)).Str("digest", digest).Msg("cached manifest asset")
	return AssetResult{Path: path, Bytes: len(body), Digest: digest}, nil
}
