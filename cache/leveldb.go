package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore keeps cache instances in a LevelDB database. Instance markers
// live under the "n:" key prefix with a creation sequence number; entries
// live under "e:<instance>\x00<key>" as zstd-compressed gob blobs.
type LevelStore struct {
	db *leveldb.DB
	mu sync.Mutex // guards sequence allocation
}

type levelMeta struct {
	Seq     uint64
	Created int64
}

type levelEntry struct {
	StoredAt int64
	Digest   []byte
	Bytes    []byte
}

const levelSeqKey = "seq"

func NewLevelStore(dir string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("opening cache db %q: %w", dir, err)
	}
	return &LevelStore{db: db}, nil
}

func levelMarkerKey(name string) []byte {
	return []byte("n:" + name)
}

func levelEntryKey(name, key string) []byte {
	return []byte("e:" + name + "\x00" + key)
}

func levelEntryPrefix(name string) []byte {
	return []byte("e:" + name + "\x00")
}

func (s *LevelStore) Open(name string) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marker := levelMarkerKey(name)
	if _, err := s.db.Get(marker, nil); err == nil {
		return &levelInstance{store: s, name: name}, nil
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("opening cache instance %q: %w", name, err)
	}

	seq := uint64(0)
	if b, err := s.db.Get([]byte(levelSeqKey), nil); err == nil {
		if err := decodeGob(b, &seq); err != nil {
			return nil, fmt.Errorf("reading instance sequence: %w", err)
		}
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("reading instance sequence: %w", err)
	}
	seq++

	meta, err := encodeGob(levelMeta{Seq: seq, Created: time.Now().Unix()})
	if err != nil {
		return nil, err
	}
	seqBytes, err := encodeGob(seq)
	if err != nil {
		return nil, err
	}
	batch := new(leveldb.Batch)
	batch.Put(marker, meta)
	batch.Put([]byte(levelSeqKey), seqBytes)
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("opening cache instance %q: %w", name, err)
	}
	return &levelInstance{store: s, name: name}, nil
}

func (s *LevelStore) Match(key string) (Entry, bool, error) {
	names, err := s.Names()
	if err != nil {
		return Entry{}, false, err
	}
	for _, name := range names {
		inst := &levelInstance{store: s, name: name}
		if e, ok, err := inst.Get(key); err != nil {
			return Entry{}, false, err
		} else if ok {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *LevelStore) Names() ([]string, error) {
	type namedMeta struct {
		name string
		seq  uint64
	}
	it := s.db.NewIterator(util.BytesPrefix([]byte("n:")), nil)
	defer it.Release()
	metas := make([]namedMeta, 0)
	for it.Next() {
		name := string(bytes.TrimPrefix(it.Key(), []byte("n:")))
		var meta levelMeta
		if err := decodeGob(it.Value(), &meta); err != nil {
			return nil, fmt.Errorf("decoding instance marker %q: %w", name, err)
		}
		metas = append(metas, namedMeta{name: name, seq: meta.Seq})
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].seq < metas[j].seq })
	names := make([]string, len(metas))
	for i, m := range metas {
		names[i] = m.name
	}
	return names, nil
}

func (s *LevelStore) Delete(name string) error {
	batch := new(leveldb.Batch)
	it := s.db.NewIterator(util.BytesPrefix(levelEntryPrefix(name)), nil)
	for it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		batch.Delete(k)
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return err
	}
	batch.Delete(levelMarkerKey(name))
	return s.db.Write(batch, nil)
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

type levelInstance struct {
	store *LevelStore
	name  string
}

func (i *levelInstance) Name() string {
	return i.name
}

func (i *levelInstance) Get(key string) (Entry, bool, error) {
	b, err := i.store.db.Get(levelEntryKey(i.name, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	raw, err := decompress(b)
	if err != nil {
		return Entry{}, false, fmt.Errorf("decompressing entry %q: %w", key, err)
	}
	var le levelEntry
	if err := decodeGob(raw, &le); err != nil {
		return Entry{}, false, fmt.Errorf("decoding entry %q: %w", key, err)
	}
	return Entry{
		Key:      key,
		StoredAt: time.Unix(le.StoredAt, 0),
		Digest:   le.Digest,
		Bytes:    le.Bytes,
	}, true, nil
}

func (i *levelInstance) Put(key string, e Entry) error {
	raw, err := encodeGob(levelEntry{
		StoredAt: e.StoredAt.Unix(),
		Digest:   e.Digest,
		Bytes:    e.Bytes,
	})
	if err != nil {
		return err
	}
	return i.store.db.Put(levelEntryKey(i.name, key), compress(raw), nil)
}

func (i *levelInstance) Keys(cb func(key string)) error {
	prefix := levelEntryPrefix(i.name)
	it := i.store.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		cb(string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	return it.Error()
}

func (i *levelInstance) Len() (int, error) {
	n := 0
	err := i.Keys(func(string) { n++ })
	return n, err
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
