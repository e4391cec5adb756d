package hxcaptcha

import (
	"context"
	"errors"
	"testing"
)

func TestSessionRuntime(t *testing.T) {
	rt := NewSessionRuntime()
	select {
	case <-rt.Ready():
	default:
		t.Fatal("Ready() not closed")
	}

	w, err := rt.Create(context.Background(), "w1", Attributes{AttrSitekey: "abc"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := rt.Create(context.Background(), "w1", Attributes{AttrSitekey: "xyz"}); !errors.Is(err, ErrAlreadyMounted) {
		t.Errorf("second Create: err = %v, want ErrAlreadyMounted", err)
	}
	if rt.Live() != 1 {
		t.Errorf("Live() = %d", rt.Live())
	}

	lu, ok := w.(LiveUpdater)
	if !ok {
		t.Fatal("session widget does not accept live updates")
	}
	if err := lu.Update(Attributes{AttrSitekey: "abc", AttrTheme: "dark"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if attrs, _ := rt.Attributes("w1"); attrs[AttrTheme] != "dark" {
		t.Errorf("Attributes() = %v", attrs)
	}

	stop := w.Listen(func(NativeEvent) {})
	stop()

	if err := w.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, ok := rt.Attributes("w1"); ok || rt.Live() != 0 {
		t.Error("widget still live after Destroy")
	}
	if _, err := rt.Create(context.Background(), "w1", Attributes{AttrSitekey: "xyz"}); err != nil {
		t.Errorf("Create after Destroy: %v", err)
	}
}

func TestSessionRuntimeStaleDestroy(t *testing.T) {
	rt := NewSessionRuntime()
	old, _ := rt.Create(context.Background(), "w1", Attributes{})
	_ = old.Destroy()
	if _, err := rt.Create(context.Background(), "w1", Attributes{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Destroying the old instance again must not remove the new one.
	_ = old.Destroy()
	if rt.Live() != 1 {
		t.Errorf("Live() = %d, want 1", rt.Live())
	}
}

func TestSessionRuntimeCanceledContext(t *testing.T) {
	rt := NewSessionRuntime()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rt.Create(ctx, "w1", Attributes{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Create() = %v, want context.Canceled", err)
	}
}
