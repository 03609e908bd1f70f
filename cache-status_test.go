package offlinecache

import "testing"

func TestCacheStatusHit(t *testing.T) {
	var cs CacheStatus
	cs.Hit()
	if s := cs.String(); s != "offline-cache; hit" {
		t.Fatalf("header is %q", s)
	}
}

func TestCacheStatusForwardStored(t *testing.T) {
	var cs CacheStatus
	cs.Forward(FwdReasonUriMiss)
	cs.Stored = true
	if s := cs.String(); s != "offline-cache; fwd=uri-miss; stored" {
		t.Fatalf("header is %q", s)
	}
}

func TestCacheStatusForwardDetail(t *testing.T) {
	var cs CacheStatus
	cs.Forward(FwdReasonMiss)
	cs.Detail = "offline-fallback"
	if s := cs.String(); s != "offline-cache; fwd=miss; detail=offline-fallback" {
		t.Fatalf("header is %q", s)
	}
}
