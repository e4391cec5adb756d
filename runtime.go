package hxcaptcha

import (
	"context"
	"fmt"
	"sync"
)

// SessionRuntime is the server-side Runtime used by the Captcha component.
//
// The real widget lives in the browser; a session widget mirrors it on the
// server so the controller can enforce one live instance per mount point
// and track the attributes it was rendered with. Native events reach it
// through Handle.Dispatch, posted back by htmx.
type SessionRuntime struct {
	mu      sync.Mutex
	widgets map[string]*sessionWidget
	ready   chan struct{}
}

// NewSessionRuntime creates a runtime that is ready immediately.
func NewSessionRuntime() *SessionRuntime {
	ready := make(chan struct{})
	close(ready)
	return &SessionRuntime{
		widgets: make(map[string]*sessionWidget),
		ready:   ready,
	}
}

// Ready is always closed.
func (r *SessionRuntime) Ready() <-chan struct{} {
	return r.ready
}

// Create registers a widget for el. It fails with ErrAlreadyMounted while
// another instance is live on the same mount point.
func (r *SessionRuntime) Create(ctx context.Context, el string, attrs Attributes) (Widget, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.widgets[el]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMounted, el)
	}
	w := &sessionWidget{runtime: r, el: el, attrs: attrs.Clone()}
	r.widgets[el] = w
	return w, nil
}

// Attributes returns the attributes of the live widget on el.
func (r *SessionRuntime) Attributes(el string) (Attributes, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.widgets[el]
	if !ok {
		return nil, false
	}
	return w.attrs.Clone(), true
}

// Live returns the number of live widgets.
func (r *SessionRuntime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.widgets)
}

type sessionWidget struct {
	runtime *SessionRuntime
	el      string
	attrs   Attributes
}

// Listen is a no-op: session widgets receive events through
// Handle.Dispatch.
func (w *sessionWidget) Listen(func(NativeEvent)) func() {
	return func() {}
}

func (w *sessionWidget) Update(attrs Attributes) error {
	w.runtime.mu.Lock()
	defer w.runtime.mu.Unlock()
	w.attrs = attrs.Clone()
	return nil
}

func (w *sessionWidget) Destroy() error {
	w.runtime.mu.Lock()
	defer w.runtime.mu.Unlock()
	if cur, ok := w.runtime.widgets[w.el]; ok && cur == w {
		delete(w.runtime.widgets, w.el)
	}
	return nil
}
