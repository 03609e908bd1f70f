package offlinecache

import "fmt"

// The gateway reports its handling of every request in a Cache-Status
// response header of the shape defined by RFC 9211, under the cache name
// "offline-cache".

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

type FwdReason string

const (
	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"

	// The cache did not contain any responses that could be used to
	// satisfy this request.
	FwdReasonMiss FwdReason = "miss"
)

// CacheStatus carries the Cache-Status header state for one request.
type CacheStatus struct {
	Status    Status
	FwdReason FwdReason
	Detail    string
	Stored    bool
}

func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

func (cs CacheStatus) String() string {
	status := fmt.Sprintf("offline-cache; %s", cs.Status)
	if cs.Status == StatusFwd && cs.FwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, cs.FwdReason)
	}
	if cs.Stored {
		status = status + "; stored"
	}
	if cs.Detail != "" {
		status = status + "; detail=" + cs.Detail
	}
	return status
}
