package cache

import "sync"

// MemStore is an in-memory store for testing and ephemeral deployments.
// Nothing survives a process restart.
type MemStore struct {
	mu    sync.RWMutex
	order []string
	data  map[string]map[string]Entry
}

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]map[string]Entry),
	}
}

func (s *MemStore) Open(name string) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[name]; !ok {
		s.data[name] = make(map[string]Entry)
		s.order = append(s.order, name)
	}
	return &memInstance{store: s, name: name}, nil
}

func (s *MemStore) Match(key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range s.order {
		if e, ok := s.data[name][key]; ok {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *MemStore) Names() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names, nil
}

func (s *MemStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[name]; !ok {
		return nil
	}
	delete(s.data, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemStore) Close() error {
	return nil
}

type memInstance struct {
	store *MemStore
	name  string
}

func (i *memInstance) Name() string {
	return i.name
}

func (i *memInstance) Get(key string) (Entry, bool, error) {
	i.store.mu.RLock()
	defer i.store.mu.RUnlock()
	e, ok := i.store.data[i.name][key]
	return e, ok, nil
}

func (i *memInstance) Put(key string, e Entry) error {
	i.store.mu.Lock()
	defer i.store.mu.Unlock()
	entries, ok := i.store.data[i.name]
	if !ok {
		// instance was deleted after open; re-register it
		entries = make(map[string]Entry)
		i.store.data[i.name] = entries
		i.store.order = append(i.store.order, i.name)
	}
	entries[key] = e
	return nil
}

func (i *memInstance) Keys(cb func(key string)) error {
	i.store.mu.RLock()
	defer i.store.mu.RUnlock()
	for key := range i.store.data[i.name] {
		cb(key)
	}
	return nil
}

func (i *memInstance) Len() (int, error) {
	i.store.mu.RLock()
	defer i.store.mu.RUnlock()
	return len(i.store.data[i.name]), nil
}
