package hxcaptcha

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Bridge translates native widget events into typed events. For every
// event it updates the state machine and the token sink first, then calls
// the listeners for that kind.
//
// Listeners are isolated from each other: a panicking listener does not
// stop the rest. Once all listeners ran, the first panic is re-raised so
// the host still sees its own bug.
type Bridge struct {
	widgetID string
	sink     *TokenSink
	machine  *Machine

	dispatchMu sync.Mutex

	mu        sync.Mutex
	listeners map[EventKind][]*listener
	closed    bool
}

type listener struct {
	fn func(Event)
}

// NewBridge creates a bridge feeding sink and machine. The host callbacks
// in cb are registered as the first listener of each kind.
func NewBridge(widgetID string, sink *TokenSink, machine *Machine, cb Callbacks) *Bridge {
	b := &Bridge{
		widgetID:  widgetID,
		sink:      sink,
		machine:   machine,
		listeners: make(map[EventKind][]*listener),
	}
	for _, k := range []EventKind{EventStarted, EventSolved, EventFailed, EventReset} {
		if fn := cb.forKind(k); fn != nil {
			b.Subscribe(k, fn)
		}
	}
	return b
}

// Subscribe adds a listener for kind and returns a function removing it.
// Subscribing to a closed bridge is a no-op.
func (b *Bridge) Subscribe(kind EventKind, fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || fn == nil {
		return func() {}
	}
	l := &listener{fn: fn}
	b.listeners[kind] = append(b.listeners[kind], l)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		ls := b.listeners[kind]
		for i, cur := range ls {
			if cur == l {
				b.listeners[kind] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

// Dispatch handles one native event. Events the current state does not
// accept are dropped and reported as ErrInvalidTransition; events after
// Close report ErrUnmounted.
//
// Listeners must not dispatch on the same bridge.
func (b *Bridge) Dispatch(native NativeEvent) (Event, error) {
	ev, err := Translate(native)
	if err != nil {
		Logger().Warn("dropping native event", zap.String("widget", b.widgetID), zap.Error(err))
		return Event{}, err
	}
	ev.WidgetID = b.widgetID
	if ev.Kind == EventSolved && ev.Token == "" {
		err := fmt.Errorf("%w: solved without a token", ErrInvalidTransition)
		Logger().Warn("dropping native event", zap.String("widget", b.widgetID), zap.Error(err))
		return ev, err
	}

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	if b.isClosed() {
		return ev, ErrUnmounted
	}
	if _, err := b.machine.Apply(ev.Kind); err != nil {
		Logger().Warn("dropping native event",
			zap.String("widget", b.widgetID),
			zap.Stringer("event", ev.Kind),
			zap.Error(err),
		)
		return ev, err
	}
	b.apply(ev)
	b.notify(ev)
	return ev, nil
}

// Fail reports a failure detected locally (bad configuration, runtime not
// reachable) through the same path as a native failed event.
func (b *Bridge) Fail(ce *CaptchaError) Event {
	if ce == nil {
		ce = NewCaptchaError(ErrorUnknown, "unknown error")
	}
	ev := Event{Kind: EventFailed, WidgetID: b.widgetID, Err: ce}

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	if b.isClosed() {
		return ev
	}
	b.machine.set(StateFailed)
	b.apply(ev)
	b.notify(ev)
	return ev
}

// Close detaches every listener. Later events are dropped.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.listeners = make(map[EventKind][]*listener)
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// apply updates the token sink. It runs before any listener so a host
// reading the field from its solved callback sees the new token.
func (b *Bridge) apply(ev Event) {
	if b.sink == nil {
		return
	}
	switch ev.Kind {
	case EventSolved:
		b.sink.OnSolved(ev.Token)
	case EventFailed, EventReset, EventStarted:
		b.sink.OnResetOrFailed()
	}
}

func (b *Bridge) notify(ev Event) {
	b.mu.Lock()
	ls := make([]*listener, len(b.listeners[ev.Kind]))
	copy(ls, b.listeners[ev.Kind])
	b.mu.Unlock()

	var first any
	for _, l := range ls {
		if p := b.invoke(l, ev); p != nil && first == nil {
			first = p
		}
	}
	if first != nil {
		panic(first)
	}
}

func (b *Bridge) invoke(l *listener, ev Event) (recovered any) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("captcha listener panicked",
				zap.String("widget", b.widgetID),
				zap.Stringer("event", ev.Kind),
				zap.Any("panic", r),
			)
			recovered = r
		}
	}()
	l.fn(ev)
	return nil
}
