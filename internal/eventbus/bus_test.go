package eventbus

import (
	"testing"
	"time"
)

func TestPublishFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	fired, unsubFired := b.Subscribe(4, "signal.fired")
	defer unsubFired()

	b.Publish(Event{Type: "signal.fired", Data: 1})
	b.Publish(Event{Type: "config.reloaded"})

	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", got)
	}
	if got := len(fired); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	e := <-fired
	if e.Time.IsZero() {
		t.Fatal("expected Publish to stamp the event time")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: "x", Time: time.Unix(int64(i), 0)})
	}
	st := b.Stats()
	if st.Published != 3 || st.Delivered != 1 || st.Dropped != 2 {
		t.Fatalf("stats = %+v, want published=3 delivered=1 dropped=2", st)
	}
}

func TestUnsubscribeClosesChannelOnce(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
	b.Publish(Event{Type: "after"})
	if st := b.Stats(); st.Subscribers != 0 {
		t.Fatalf("subscribers = %d, want 0", st.Subscribers)
	}
}
