package result

import (
	"container/list"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Invocation holds everything one `run` invocation produced: the full
// record sequence plus the table artifact path, keyed by a unique ID.
type Invocation struct {
	ID        string    `json:"id"`
	Completed time.Time `json:"completed"`
	TablePath string    `json:"table_path,omitempty"`
	Records   []Record  `json:"records"`
}

// Store persists and retrieves invocation results.
type Store interface {
	Save(inv *Invocation) error
	Load(id string) (*Invocation, error)
}

// DiskStore writes invocations as JSON files to a lazily-created
// directory. With an empty Dir a temp directory is used.
type DiskStore struct {
	Dir string

	mu  sync.Mutex
	dir string
}

// NewDiskStore creates a DiskStore rooted at dir. The directory is
// created lazily on the first Save.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{Dir: dir}
}

// Save writes an invocation as a JSON file to disk.
func (s *DiskStore) Save(inv *Invocation) error {
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshalling invocation %s: %w", inv.ID, err)
	}
	path := filepath.Join(dir, inv.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing invocation %s: %w", inv.ID, err)
	}
	return nil
}

// Load reads an invocation from disk.
func (s *DiskStore) Load(id string) (*Invocation, error) {
	dir, err := s.ensureDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading invocation %s: %w", id, err)
	}
	var inv Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("unmarshalling invocation %s: %w", id, err)
	}
	return &inv, nil
}

func (s *DiskStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		return s.dir, nil
	}
	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0o755); err != nil {
			return "", fmt.Errorf("creating invocation directory: %w", err)
		}
		s.dir = s.Dir
		return s.dir, nil
	}
	dir, err := os.MkdirTemp("", "gridbench-runs-*")
	if err != nil {
		return "", fmt.Errorf("creating invocation directory: %w", err)
	}
	s.dir = dir
	return dir, nil
}

// LRUStore keeps the most recently used invocations in memory and
// delegates to a backing Store on miss. Recency order is kept in a
// container/list with the freshest element at the front.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List               // of *lruItem
	items map[string]*list.Element // id to its order element
}

type lruItem struct {
	id  string
	inv *Invocation
}

// NewLRUStore creates an LRU cache with the given capacity that
// delegates to back on cache misses. Capacity must be >= 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save caches the invocation and delegates to the backing store.
func (s *LRUStore) Save(inv *Invocation) error {
	s.mu.Lock()
	s.insert(inv.ID, inv)
	s.mu.Unlock()

	return s.back.Save(inv)
}

// Load checks the cache first. On miss, loads from the backing store
// and promotes the invocation into the cache.
func (s *LRUStore) Load(id string) (*Invocation, error) {
	s.mu.Lock()
	if el, ok := s.items[id]; ok {
		s.order.MoveToFront(el)
		inv := el.Value.(*lruItem).inv
		s.mu.Unlock()
		return inv, nil
	}
	s.mu.Unlock()

	inv, err := s.back.Load(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.insert(id, inv)
	s.mu.Unlock()

	return inv, nil
}

// insert adds or refreshes a cache entry and evicts the least recently
// used one when over capacity. Callers hold the mutex.
func (s *LRUStore) insert(id string, inv *Invocation) {
	if el, ok := s.items[id]; ok {
		el.Value.(*lruItem).inv = inv
		s.order.MoveToFront(el)
		return
	}
	s.items[id] = s.order.PushFront(&lruItem{id: id, inv: inv})
	if s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*lruItem).id)
	}
}
