package offlinecache

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Claimer hands live client traffic to a gateway once its generation
// activates, so already-connected clients are served by the new
// generation without reconnecting.
type Claimer interface {
	Claim(ctx context.Context, h http.Handler) error
}

// ClaimerFunc adapts a function to the Claimer interface.
type ClaimerFunc func(ctx context.Context, h http.Handler) error

func (f ClaimerFunc) Claim(ctx context.Context, h http.Handler) error {
	return f(ctx, h)
}

// Switch is an http.Handler that forwards every request to the gateway
// that last claimed it. It is the stable endpoint clients connect to
// across deployments: a new generation installs, activates, claims the
// switch, and in-flight clients are governed by the new generation from
// their next request on. Until a first claim, requests are refused.
type Switch struct {
	current atomic.Pointer[switchTarget]
}

type switchTarget struct {
	h http.Handler
}

func NewSwitch() *Switch {
	return &Switch{}
}

// Claim implements Claimer by atomically routing all future requests to h.
func (s *Switch) Claim(_ context.Context, h http.Handler) error {
	s.current.Store(&switchTarget{h: h})
	return nil
}

func (s *Switch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := s.current.Load()
	if target == nil {
		http.Error(w, "no active generation", http.StatusServiceUnavailable)
		return
	}
	target.h.ServeHTTP(w, r)
}

// SweepFailure records one stale cache instance that could not be deleted.
type SweepFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// ActivateReport summarizes one activation: the stale generations swept
// and whether client traffic was claimed.
type ActivateReport struct {
	Generation string         `json:"generation"`
	Deleted    []string       `json:"deleted"`
	Failed     []SweepFailure `json:"failed,omitempty"`
	Claimed    bool           `json:"claimed"`
}

// Activate deletes every cache instance whose name differs from the
// current generation, then claims client traffic for this gateway.
// Deletions run concurrently and independently: one instance that cannot
// be deleted is recorded in the report and logged, without blocking the
// others. Activate fails only when instance names cannot be listed or
// the claim is refused.
func (g *Gateway) Activate(ctx context.Context) (ActivateReport, error) {
	report := ActivateReport{Generation: g.generation}
	start := time.Now()
	names, err := g.store.Names()
	if err != nil {
		g.log.Error().Err(err).Msg("could not list cache generations")
		return report, fmt.Errorf("listing cache generations: %w", err)
	}

	var mu sync.Mutex
	var eg errgroup.Group
	for _, name := range names {
		if name == g.generation {
			continue
		}
		name := name
		eg.Go(func() error {
			err := g.store.Delete(name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				g.log.Warn().Err(err).Str("cache", name).Msg("could not delete stale generation")
				report.Failed = append(report.Failed, SweepFailure{Name: name, Error: err.Error()})
				return nil
			}
			g.log.Debug().Str("cache", name).Msg("deleted stale generation")
			report.Deleted = append(report.Deleted, name)
			return nil
		})
	}
	// Workers never return errors, so Wait only serves as the barrier.
	_ = eg.Wait()
	g.metrics.Record("activate.sweep", time.Since(start))

	sort.Strings(report.Deleted)
	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].Name < report.Failed[j].Name
	})

	if g.claimer != nil {
		if err := g.claimer.Claim(ctx, g); err != nil {
			g.log.Error().Err(err).Msg("could not claim client traffic")
			return report, fmt.Errorf("claiming client traffic: %w", err)
		}
		report.Claimed = true
	}
	g.log.Info().
		Int("deleted", len(report.Deleted)).
		Int("failed", len(report.Failed)).
		Bool("claimed", report.Claimed).
		Msg("activate complete")
	return report, nil
}
