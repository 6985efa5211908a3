package producer

import (
	"sort"
	"sync"
)

// TopicRegistry is the set of topic names known to exist on the cluster.
// Names are only added, after a successful existence check or creation.
type TopicRegistry struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{names: make(map[string]struct{})}
}

func (r *TopicRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// add reports whether name was new.
func (r *TopicRegistry) add(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return false
	}
	r.names[name] = struct{}{}
	return true
}

func (r *TopicRegistry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
