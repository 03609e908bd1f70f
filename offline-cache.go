package offlinecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goldshop/offline-cache/cache"
	"github.com/goldshop/offline-cache/pkg/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config configures one Gateway for one deployment generation.
type Config struct {
	// Generation is the name of the cache instance this gateway owns,
	// e.g. "goldshop-cache-v3". Instances with any other name are stale
	// and swept away by Activate.
	Generation string
	// Manifest lists the paths fetched into the cache by Install.
	Manifest []string
	// OfflinePath is the cached page substituted for HTML navigations
	// that cannot be answered from cache or origin.
	// Defaults to DefaultOfflinePath.
	OfflinePath string
	// ExcludeSubstrings lists URL substrings that exclude a request from
	// opportunistic caching. Defaults to DefaultExcludeSubstrings when
	// nil; set to an empty non-nil slice to disable exclusion.
	ExcludeSubstrings []string
	// OriginURL is the URL of the origin server.
	// Origins with paths are not supported.
	OriginURL string
	// OriginHost is an optional Host header override for origin requests.
	OriginHost string
	// Store holds the cache instances of all generations.
	Store cache.Store
	// Claimer is invoked after activation cleanup to hand live client
	// traffic to this gateway. Optional.
	Claimer Claimer
	// Metrics sink. A private tracker is created if nil.
	Metrics *metrics.Tracker
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// WriteQueue is the capacity of the background cache-write queue.
	// Defaults to 64.
	WriteQueue int
}

const (
	DefaultOfflinePath = "/offline.html"

	defaultWriteQueue = 64
)

// DefaultExcludeSubstrings excludes API responses from opportunistic
// caching.
var DefaultExcludeSubstrings = []string{"/api/"}

const (
	counterHits          = "hits"
	counterMisses        = "misses"
	counterStored        = "stored"
	counterFallbacks     = "offline_fallbacks"
	counterWriteErrors   = "write_errors"
	counterDroppedWrites = "dropped_writes"
)

// Gateway answers requests cache-first on behalf of a single origin. It
// keeps a generation-named cache instance warm from a manifest, relays
// misses to the origin, stores qualifying responses in the background,
// and substitutes a cached offline page for HTML navigations when the
// origin cannot answer.
type Gateway struct {
	generation  string
	manifest    []string
	offlinePath string
	exclude     []string
	origin      *url.URL
	originHost  string
	store       cache.Store
	claimer     Claimer
	metrics     *metrics.Tracker
	log         zerolog.Logger
	client      *http.Client
	started     time.Time

	writes    chan writeOp
	writeDone chan struct{}
	closeOnce sync.Once
}

// New validates the configuration and returns a running gateway. The
// caller owns the store and closes it separately after Close.
func New(config Config) (*Gateway, error) {
	if config.Generation == "" {
		return nil, errors.New("generation identifier required")
	}
	if config.Store == nil {
		return nil, errors.New("cache store required")
	}
	if config.OriginURL == "" {
		return nil, errors.New("origin URL required")
	}
	origin, err := url.Parse(config.OriginURL)
	if err != nil {
		return nil, fmt.Errorf("parsing origin URL: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("origin URL %q must be absolute", config.OriginURL)
	}
	if strings.TrimSuffix(origin.Path, "/") != "" {
		return nil, fmt.Errorf("origin URL %q must not have a path", config.OriginURL)
	}
	origin.Path = ""

	var logger zerolog.Logger
	if config.Logger == nil {
		logger = log.Logger
	} else {
		logger = *config.Logger
	}
	logger = logger.With().Str("generation", config.Generation).Logger()

	tracker := config.Metrics
	if tracker == nil {
		tracker = metrics.NewTracker(0.01)
	}
	offlinePath := config.OfflinePath
	if offlinePath == "" {
		offlinePath = DefaultOfflinePath
	}
	exclude := config.ExcludeSubstrings
	if exclude == nil {
		exclude = DefaultExcludeSubstrings
	}
	queue := config.WriteQueue
	if queue <= 0 {
		queue = defaultWriteQueue
	}

	g := &Gateway{
		generation:  config.Generation,
		manifest:    config.Manifest,
		offlinePath: offlinePath,
		exclude:     exclude,
		origin:      origin,
		originHost:  config.OriginHost,
		store:       config.Store,
		claimer:     config.Claimer,
		metrics:     tracker,
		log:         logger,
		client:      &http.Client{},
		started:     time.Now(),
		writes:      make(chan writeOp, queue),
		writeDone:   make(chan struct{}),
	}
	go g.writeLoop()
	return g, nil
}

// Generation returns the generation identifier this gateway serves.
func (g *Gateway) Generation() string {
	return g.generation
}

type writeOp struct {
	key   string
	entry cache.Entry
	flush chan struct{}
}

// writeLoop applies queued cache writes one at a time, off the serving
// path. Failures are logged and counted, never surfaced to the client.
func (g *Gateway) writeLoop() {
	for op := range g.writes {
		if op.flush != nil {
			close(op.flush)
			continue
		}
		g.applyWrite(op)
	}
	close(g.writeDone)
}

func (g *Gateway) applyWrite(op writeOp) {
	start := time.Now()
	inst, err := g.store.Open(g.generation)
	if err != nil {
		g.metrics.Add(counterWriteErrors, 1)
		g.log.Error().Err(err).Str("key", op.key).Msg("could not open cache for write")
		return
	}
	if err := inst.Put(op.key, op.entry); err != nil {
		g.metrics.Add(counterWriteErrors, 1)
		g.log.Error().Err(err).Str("key", op.key).Msg("cache write failed")
		return
	}
	g.metrics.Add(counterStored, 1)
	g.metrics.Record("cache.write", time.Since(start))
	g.log.Debug().Str("key", op.key).Msg("stored response in cache")
}

func (g *Gateway) enqueueWrite(key string, entry cache.Entry) bool {
	// TODO: entries stored here are never pruned within a generation;
	// only an activation sweep after a version bump reclaims them.
	select {
	case g.writes <- writeOp{key: key, entry: entry}:
		return true
	default:
		g.metrics.Add(counterDroppedWrites, 1)
		g.log.Warn().Str("key", key).Msg("write queue full, dropping cache write")
		return false
	}
}

// Flush blocks until every cache write queued before the call has been
// applied. The serving path never waits on writes; Flush exists for
// shutdown and for observing write outcomes.
func (g *Gateway) Flush() {
	flushed := make(chan struct{})
	g.writes <- writeOp{flush: flushed}
	<-flushed
}

// Close drains the write queue and stops the background writer. The
// gateway must not serve requests after Close.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() { close(g.writes) })
	<-g.writeDone
	return nil
}

// LogStatsEvery logs counters and latency quantiles at the given interval
// until ctx is done.
func (g *Gateway) LogStatsEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counters := g.metrics.Counters()
			names := make([]string, 0, len(counters))
			for name := range counters {
				names = append(names, name)
			}
			sort.Strings(names)
			event := g.log.Info()
			for _, name := range names {
				event = event.Int64(name, counters[name])
			}
			event.Msg("cache stats")
			for _, stats := range g.metrics.AllStats() {
				g.log.Info().Msg(stats.String())
			}
		}
	}
}

func (g *Gateway) logRequest(r *http.Request, cs CacheStatus) {
	hit := 0
	if cs.Status == StatusHit {
		hit = 1
	}
	g.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", requestSourceIP(r)).
		Str("status", string(cs.Status)).
		Str("fwd", string(cs.FwdReason)).
		Bool("stored", cs.Stored).
		Int("hit", hit).
		Msg("sent response")
}

func requestSourceIP(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}
