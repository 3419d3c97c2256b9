package signalgen

// Callback is a zero-argument notification.
type Callback func()

type entry struct {
	key string
	cb  Callback
}

// registry maps subscriber keys to callbacks in subscription order.
//
// It has no lock of its own: every access goes through Dispatcher.mu, the same
// lock a tick holds while notifying, so a replace is never observed half-done.
type registry struct {
	index   map[string]int
	entries []entry

	inserts      uint64
	replacements uint64
}

func newRegistry() *registry {
	return &registry{index: map[string]int{}}
}

// put inserts key or replaces its callback in place (the slot keeps its
// position in the fire order). It reports whether an entry was replaced.
func (r *registry) put(key string, cb Callback) bool {
	if i, ok := r.index[key]; ok {
		r.entries[i].cb = cb
		r.replacements++
		return true
	}
	r.index[key] = len(r.entries)
	r.entries = append(r.entries, entry{key: key, cb: cb})
	r.inserts++
	return false
}

func (r *registry) remove(key string) bool {
	i, ok := r.index[key]
	if !ok {
		return false
	}
	delete(r.index, key)
	copy(r.entries[i:], r.entries[i+1:])
	r.entries[len(r.entries)-1] = entry{}
	r.entries = r.entries[:len(r.entries)-1]
	for j := i; j < len(r.entries); j++ {
		r.index[r.entries[j].key] = j
	}
	return true
}

func (r *registry) get(key string) (Callback, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.entries[i].cb, true
}

func (r *registry) len() int { return len(r.entries) }

func (r *registry) keys() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.key
	}
	return out
}

func (r *registry) clear() {
	r.index = map[string]int{}
	r.entries = nil
}
