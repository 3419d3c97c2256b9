package signalgen

import "testing"

func TestRegistryPutReplaceKeepsSlot(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	var calls []string
	r.put("a", func() { calls = append(calls, "a1") })
	r.put("b", func() { calls = append(calls, "b") })
	if replaced := r.put("a", func() { calls = append(calls, "a2") }); !replaced {
		t.Fatal("expected second put of a to replace")
	}
	for _, e := range r.entries {
		e.cb()
	}
	if len(calls) != 2 || calls[0] != "a2" || calls[1] != "b" {
		t.Fatalf("calls = %v, want [a2 b]", calls)
	}
	if r.inserts != 2 || r.replacements != 1 {
		t.Fatalf("inserts=%d replacements=%d, want 2/1", r.inserts, r.replacements)
	}
}

func TestRegistryRemoveReindexes(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	for _, k := range []string{"a", "b", "c", "d"} {
		r.put(k, func() {})
	}
	if !r.remove("b") {
		t.Fatal("remove(b) = false")
	}
	if r.remove("b") {
		t.Fatal("second remove(b) = true")
	}
	if r.remove("zzz") {
		t.Fatal("remove of unknown key = true")
	}
	keys := r.keys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "c" || keys[2] != "d" {
		t.Fatalf("keys = %v", keys)
	}
	for i, k := range keys {
		if r.index[k] != i {
			t.Fatalf("index[%s] = %d, want %d", k, r.index[k], i)
		}
	}
	if _, ok := r.get("d"); !ok {
		t.Fatal("get(d) missing after reindex")
	}
	r.clear()
	if r.len() != 0 {
		t.Fatalf("len after clear = %d", r.len())
	}
}
