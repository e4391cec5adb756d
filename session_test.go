package hxcaptcha

import (
	"context"
	"testing"
	"time"
)

func mountFake(t *testing.T, rt *fakeRuntime, id string) *Handle {
	t.Helper()
	h, err := NewController(rt).Mount(context.Background(), id, Config{Sitekey: "abc"}, Callbacks{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return h
}

func TestSessionStoreAcquire(t *testing.T) {
	s := newSessionStore(time.Minute)
	defer s.close()
	rt := newFakeRuntime(true)

	mounts := 0
	mount := func() *Handle {
		mounts++
		return mountFake(t, rt, "w1")
	}

	first, created := s.acquire("w1", mount)
	if !created {
		t.Fatal("first acquire did not mount")
	}
	again, created := s.acquire("w1", mount)
	if created || again != first {
		t.Errorf("second acquire created=%v same=%v", created, again == first)
	}
	if mounts != 1 {
		t.Errorf("mounts = %d", mounts)
	}

	// A destroyed handle is replaced.
	_ = first.Unmount()
	fresh, created := s.acquire("w1", mount)
	if !created || fresh == first {
		t.Errorf("destroyed handle reused")
	}
	if s.len() != 1 {
		t.Errorf("len() = %d", s.len())
	}
}

func TestSessionStoreRemove(t *testing.T) {
	s := newSessionStore(time.Minute)
	defer s.close()
	rt := newFakeRuntime(true)

	h, _ := s.acquire("w1", func() *Handle { return mountFake(t, rt, "w1") })
	if err := s.remove("w1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if h.State() != StateDestroyed {
		t.Errorf("State() = %s, want destroyed", h.State())
	}
	if _, ok := s.get("w1"); ok {
		t.Error("handle still stored")
	}
	if err := s.remove("missing"); err != nil {
		t.Errorf("remove(missing) = %v", err)
	}
	if _, live, _ := rt.stats(); live != 0 {
		t.Errorf("live = %d", live)
	}
}

func TestSessionStoreClose(t *testing.T) {
	s := newSessionStore(time.Minute)
	rt := newFakeRuntime(true)

	var handles []*Handle
	for _, id := range []string{"a", "b", "c"} {
		id := id
		h, _ := s.acquire(id, func() *Handle { return mountFake(t, rt, id) })
		handles = append(handles, h)
	}
	s.close()

	for _, h := range handles {
		if h.State() != StateDestroyed {
			t.Errorf("%s: State() = %s", h.ID(), h.State())
		}
	}
	if s.len() != 0 {
		t.Errorf("len() = %d", s.len())
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	s := newSessionStore(30 * time.Millisecond)
	defer s.close()
	rt := newFakeRuntime(true)

	h, _ := s.acquire("w1", func() *Handle { return mountFake(t, rt, "w1") })

	deadline := time.Now().Add(3 * time.Second)
	for h.State() != StateDestroyed {
		if time.Now().After(deadline) {
			t.Fatal("idle handle not unmounted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, live, _ := rt.stats(); live != 0 {
		t.Errorf("live = %d", live)
	}
}
