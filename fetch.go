package offlinecache

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goldshop/offline-cache/cache"

	"github.com/rs/zerolog"
)

// ServeHTTP implements the http.Handler interface. Every request runs
// the same decision procedure: answer from any cache instance first,
// fall back to the origin, and degrade HTML navigations to the cached
// offline page when neither can answer.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := requestKey(r)
	logger := g.log.With().Str("key", key).Logger()

	if entry, ok, err := g.store.Match(key); err != nil {
		logger.Error().Err(err).Msg("cache lookup failed")
	} else if ok {
		g.metrics.Add(counterHits, 1)
		g.metrics.Record("fetch.hit", time.Since(start))
		var cs CacheStatus
		cs.Hit()
		g.sendEntry(w, r, entry, cs, logger)
		return
	}
	g.metrics.Add(counterMisses, 1)

	res, err := g.fetchOrigin(r)
	if err != nil {
		g.metrics.Record("fetch.miss", time.Since(start))
		g.respondNetworkFailure(w, r, err, logger)
		return
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		g.metrics.Record("fetch.miss", time.Since(start))
		g.respondNetworkFailure(w, r, err, logger)
		return
	}

	var cs CacheStatus
	cs.Forward(FwdReasonUriMiss)

	if !g.usableResponse(res) {
		g.metrics.Record("fetch.miss", time.Since(start))
		if isNavigation(r) {
			logger.Debug().Int("status", res.StatusCode).
				Msg("unusable origin response for navigation, serving offline page")
			g.sendOffline(w, r, cs, logger)
			return
		}
		// relayed unmodified, error statuses included
		g.relay(w, r, res, body, cs, logger)
		return
	}

	if r.Method == http.MethodGet && !g.excluded(r.URL) {
		if b, err := responseToBytes(res, body); err != nil {
			logger.Error().Err(err).Msg("could not serialize response for caching")
		} else {
			cs.Stored = g.enqueueWrite(key, cache.NewEntry(key, b))
		}
	}
	g.metrics.Record("fetch.miss", time.Since(start))
	g.relay(w, r, res, body, cs, logger)
}

// fetchOrigin forwards the request to the origin server, following
// redirects the way a host fetch would.
func (g *Gateway) fetchOrigin(r *http.Request) (*http.Response, error) {
	uri := g.origin.String() + r.URL.RequestURI()
	// need to specifically set body to nil on the outgoing request if content is zero length
	// see https://github.com/golang/go/issues/16036
	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, uri, body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	// do not forward connection header, this causes trouble
	req.Header.Del("Connection")
	req.ContentLength = r.ContentLength
	if g.originHost != "" {
		req.Host = g.originHost
	}
	return g.client.Do(req)
}

// usableResponse reports whether an origin response may be cached and
// counts as answered: it must be a 200 whose redirect chain stayed on
// the origin.
func (g *Gateway) usableResponse(res *http.Response) bool {
	if res == nil || res.StatusCode != http.StatusOK {
		return false
	}
	if res.Request != nil && res.Request.URL.Host != g.origin.Host {
		return false
	}
	return true
}

// isNavigation classifies HTML navigations: an explicit navigate fetch
// mode, or a GET whose Accept header asks for HTML.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// excluded reports whether the request URL matches an exclusion marker
// and must never be cached.
func (g *Gateway) excluded(u *url.URL) bool {
	for _, marker := range g.exclude {
		if strings.Contains(u.String(), marker) {
			return true
		}
	}
	return false
}

func (g *Gateway) respondNetworkFailure(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	var cs CacheStatus
	cs.Forward(FwdReasonMiss)
	if isNavigation(r) {
		logger.Debug().Err(err).Msg("origin unreachable for navigation, serving offline page")
		g.sendOffline(w, r, cs, logger)
		return
	}
	logger.Warn().Err(err).Msg("origin unreachable")
	w.Header().Set("Cache-Status", cs.String())
	http.Error(w, "origin unreachable", http.StatusBadGateway)
	g.logRequest(r, cs)
}

// sendOffline substitutes the cached offline page. The page is looked up
// across all instances like any other entry; a navigation can outlive
// the generation that cached the page.
func (g *Gateway) sendOffline(w http.ResponseWriter, r *http.Request, cs CacheStatus, logger zerolog.Logger) {
	cs.Detail = "offline-fallback"
	entry, ok, err := g.store.Match(keyForPath(g.offlinePath))
	if err != nil {
		logger.Error().Err(err).Msg("offline page lookup failed")
	}
	if !ok || err != nil {
		logger.Warn().Str("path", g.offlinePath).Msg("offline page not cached")
		w.Header().Set("Cache-Status", cs.String())
		http.Error(w, "offline", http.StatusServiceUnavailable)
		g.logRequest(r, cs)
		return
	}
	g.metrics.Add(counterFallbacks, 1)
	g.sendEntry(w, r, entry, cs, logger)
}

// sendEntry writes a stored response to the client byte for byte.
func (g *Gateway) sendEntry(w http.ResponseWriter, r *http.Request, entry cache.Entry, cs CacheStatus, logger zerolog.Logger) {
	storedReq, err := requestFromKey(entry.Key)
	if err != nil {
		logger.Error().Err(err).Str("key", entry.Key).Msg("could not get request from key")
		http.Error(w, "cache entry unreadable", http.StatusInternalServerError)
		return
	}
	res, err := bytesToResponse(entry.Bytes, storedReq)
	if err != nil {
		logger.Error().Err(err).Str("key", entry.Key).Msg("could not revive cached response")
		http.Error(w, "cache entry unreadable", http.StatusInternalServerError)
		return
	}
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.Header().Set("Cache-Status", cs.String())
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		logger.Error().Err(err).Msg("could not write response body to client")
	}
	g.logRequest(r, cs)
}

// relay writes an origin response to the client as-is.
func (g *Gateway) relay(w http.ResponseWriter, r *http.Request, res *http.Response, body []byte, cs CacheStatus, logger zerolog.Logger) {
	copyHeader(w.Header(), res.Header)
	w.Header().Set("Cache-Status", cs.String())
	w.WriteHeader(res.StatusCode)
	if _, err := w.Write(body); err != nil {
		logger.Error().Err(err).Msg("could not write response body to client")
	}
	g.logRequest(r, cs)
}

func copyHeader(dst, src http.Header) {
	for name, values := range src {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}
