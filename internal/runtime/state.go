package runtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pergolab/pergola/pkg/domain"
)

// Store is the shared run state. All mutation goes through Merge, which
// applies the key's merge policy fixed at graph build time. Merges on the
// same key are serialized by a per-key lock; merges and reads on other keys
// proceed concurrently. Nothing is held across a capability invocation.
type Store struct {
	mu       sync.RWMutex // guards the maps, not the values
	policies map[string]domain.MergePolicy
	values   map[string]any
	locks    map[string]*sync.Mutex
}

// NewStore creates an empty store with the given key policies. Keys without
// a declared policy merge with overwrite semantics.
func NewStore(policies map[string]domain.MergePolicy) *Store {
	s := &Store{
		policies: make(map[string]domain.MergePolicy, len(policies)),
		values:   make(map[string]any),
		locks:    make(map[string]*sync.Mutex),
	}
	for k, p := range policies {
		s.policies[k] = p
	}
	return s
}

// Get returns the value under key. Ordered-append keys yield the contributed
// values sorted by sequence index.
func (s *Store) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrKeyNotFound, key)
	}
	if seq, ok := v.([]domain.Indexed); ok {
		out := make([]any, len(seq))
		for i, entry := range seq {
			out[i] = entry.Value
		}
		return out, nil
	}
	return v, nil
}

// Has reports whether key holds a value.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Merge applies the key's reducer. Overwrite keys take the value as-is
// (last writer wins). Ordered-append keys require a domain.Indexed
// contribution and keep the sequence sorted by index, so the stored order is
// independent of arrival order.
func (s *Store) Merge(key string, value any) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	policy, declared := s.policies[key]
	s.mu.RUnlock()
	if !declared {
		policy = domain.MergeOverwrite
	}

	switch policy {
	case domain.MergeOverwrite:
		s.mu.Lock()
		s.values[key] = value
		s.mu.Unlock()
		return nil

	case domain.MergeOrderedAppend:
		contrib, ok := value.(domain.Indexed)
		if !ok {
			return fmt.Errorf("key %q is ordered-append and requires an indexed contribution, got %T", key, value)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		seq, _ := s.values[key].([]domain.Indexed)
		at := sort.Search(len(seq), func(i int) bool { return seq[i].Index >= contrib.Index })
		if at < len(seq) && seq[at].Index == contrib.Index {
			return fmt.Errorf("%w: key %q index %d", domain.ErrDuplicateIndex, key, contrib.Index)
		}
		seq = append(seq, domain.Indexed{})
		copy(seq[at+1:], seq[at:])
		seq[at] = contrib
		s.values[key] = seq
		return nil

	default:
		return fmt.Errorf("key %q has unknown merge policy %q", key, policy)
	}
}

// InitSequence ensures an ordered-append key holds a sequence, so an empty
// batch still yields an empty list to downstream nodes.
func (s *Store) InitSequence(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		s.values[key] = []domain.Indexed{}
	}
}

// keyLock returns the merge lock for key, creating it on first use.
func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
