package cache

import (
	"time"

	sha256 "github.com/minio/sha256-simd"
)

// Store is a collection of named cache instances. One instance holds the
// entries of one deployment generation; the store outlives generations and
// is shared by all of them.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Open returns the instance with the given name, creating it if it
	// does not exist. An opened instance exists (appears in Names) even
	// before anything is stored in it.
	Open(name string) (Instance, error)
	// Match searches every instance for the given key, in instance
	// creation order, and returns the first matching entry.
	Match(key string) (Entry, bool, error)
	// Names returns the names of all instances in creation order.
	Names() ([]string, error)
	// Delete removes the named instance and all of its entries. Deleting
	// an absent name is a no-op.
	Delete(name string) error
	Close() error
}

// Instance is one named key-value cache mapping request keys to stored
// responses.
type Instance interface {
	Name() string
	// Get returns the entry for the given key, if it exists.
	Get(key string) (Entry, bool, error)
	// Put stores the entry under the given key, overwriting any previous
	// entry for that key.
	Put(key string, e Entry) error
	// Keys calls the given callback for each stored key. It calls the
	// callback in order to enable very large key sets to be processable.
	Keys(cb func(key string)) error
	Len() (int, error)
}

// Entry is one stored response: the request key it was stored under, the
// response in HTTP/1.1 wire format, and bookkeeping metadata.
type Entry struct {
	Key      string
	StoredAt time.Time
	Digest   []byte
	Bytes    []byte
}

// NewEntry builds an entry for the given serialized response, stamping it
// with the current time and a SHA-256 digest of the bytes.
func NewEntry(key string, bytes []byte) Entry {
	digest := sha256.Sum256(bytes)
	return Entry{
		Key:      key,
		StoredAt: time.Now(),
		Digest:   digest[:],
		Bytes:    bytes,
	}
}
