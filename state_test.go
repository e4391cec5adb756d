package hxcaptcha

import (
	"errors"
	"testing"
)

func TestEventTarget(t *testing.T) {
	tests := []struct {
		from State
		kind EventKind
		want State
		ok   bool
	}{
		{StateReady, EventStarted, StateStarted, true},
		{StateReady, EventSolved, StateSolved, true},
		{StateStarted, EventSolved, StateSolved, true},
		{StateStarted, EventFailed, StateFailed, true},
		{StateSolved, EventReset, StateReset, true},
		{StateSolved, EventStarted, StateSolved, false},
		{StateSolved, EventFailed, StateFailed, true},
		{StateFailed, EventStarted, StateStarted, true},
		{StateReset, EventStarted, StateStarted, true},
		{StateReset, EventSolved, StateSolved, true},
		{StateLoading, EventStarted, StateLoading, false},
		{StateUninitialized, EventSolved, StateUninitialized, false},
		{StateDestroyed, EventReset, StateDestroyed, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.kind.String(), func(t *testing.T) {
			got, ok := eventTarget(tt.from, tt.kind)
			if got != tt.want || ok != tt.ok {
				t.Errorf("eventTarget(%s, %s) = %s, %v; want %s, %v", tt.from, tt.kind, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMachineApply(t *testing.T) {
	m := &Machine{}
	if _, err := m.Apply(EventStarted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Apply before ready: err = %v", err)
	}

	m.set(StateReady)
	for _, k := range []EventKind{EventStarted, EventSolved, EventReset} {
		if _, err := m.Apply(k); err != nil {
			t.Fatalf("Apply(%s): %v", k, err)
		}
	}
	if m.State() != StateReset {
		t.Errorf("State() = %s, want reset", m.State())
	}

	m.set(StateDestroyed)
	if _, err := m.Apply(EventReset); !errors.Is(err, ErrUnmounted) {
		t.Errorf("Apply after destroy: err = %v, want ErrUnmounted", err)
	}
}

func TestStateString(t *testing.T) {
	if StateSolved.String() != "solved" {
		t.Errorf("StateSolved = %q", StateSolved.String())
	}
	if State(42).String() != "State(42)" {
		t.Errorf("State(42) = %q", State(42).String())
	}
	if StateLoading.Live() || StateDestroyed.Live() || !StateFailed.Live() {
		t.Error("Live() mismatch")
	}
}
