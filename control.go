package offlinecache

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/goldshop/offline-cache/pkg/metrics"

	"github.com/go-chi/chi/v5"
)

type statusPayload struct {
	Generation string           `json:"generation"`
	Uptime     string           `json:"uptime"`
	Counters   map[string]int64 `json:"counters"`
	Latencies  []metrics.Stats  `json:"latencies"`
}

type cacheInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Current bool   `json:"current"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// ControlHandler returns the management API. It is meant to be served on
// a separate listener, away from the client-facing caching endpoint.
func (g *Gateway) ControlHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/status", g.handleStatus)
	r.Get("/caches", g.handleCaches)
	r.Post("/install", g.handleInstall)
	r.Post("/activate", g.handleActivate)
	return r
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusPayload{
		Generation: g.generation,
		Uptime:     time.Since(g.started).Round(time.Second).String(),
		Counters:   g.metrics.Counters(),
		Latencies:  g.metrics.AllStats(),
	})
}

func (g *Gateway) handleCaches(w http.ResponseWriter, r *http.Request) {
	names, err := g.store.Names()
	if err != nil {
		g.log.Error().Err(err).Msg("could not list cache generations")
		writeJSON(w, http.StatusInternalServerError, errorPayload{Error: err.Error()})
		return
	}
	infos := make([]cacheInfo, 0, len(names))
	for _, name := range names {
		info := cacheInfo{Name: name, Current: name == g.generation}
		instance, err := g.store.Open(name)
		if err != nil {
			g.log.Error().Err(err).Str("cache", name).Msg("could not open cache instance")
		} else if n, err := instance.Len(); err != nil {
			g.log.Error().Err(err).Str("cache", name).Msg("could not count cache entries")
		} else {
			info.Entries = n
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

func (g *Gateway) handleInstall(w http.ResponseWriter, r *http.Request) {
	report, err := g.Install(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorPayload{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (g *Gateway) handleActivate(w http.ResponseWriter, r *http.Request) {
	report, err := g.Activate(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorPayload{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
