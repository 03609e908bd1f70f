package offlinecache

import (
	"fmt"
	"net/http"
	"strings"
)

// Cache keys are "METHOD:URI", e.g. "GET:/dashboard?tab=rates". The
// gateway fronts a single origin, so the origin is not part of the key;
// the instance name supplies the generation namespace.

const methodSeparator = ":"

// requestKey returns the cache key for a request.
func requestKey(r *http.Request) string {
	return r.Method + methodSeparator + r.URL.RequestURI()
}

// keyForPath returns the cache key under which a manifest path or the
// offline page is stored.
func keyForPath(path string) string {
	return http.MethodGet + methodSeparator + path
}

// requestFromKey reconstructs a request equivalent, caching-wise, to the
// one that produced the key. The result carries no headers or body; it
// exists to give stored responses their parsing context back.
func requestFromKey(key string) (*http.Request, error) {
	method, uri, found := strings.Cut(key, methodSeparator)
	if !found {
		return nil, fmt.Errorf("malformed key: %s", key)
	}
	return http.NewRequest(method, uri, nil)
}
