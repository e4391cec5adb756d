package hxcaptcha

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultReadyTimeout bounds the wait for the widget runtime on mount.
const DefaultReadyTimeout = 10 * time.Second

// Runtime is the external widget runtime. Loading it is not this
// package's job: Ready is closed once the runtime can create widgets.
type Runtime interface {
	Ready() <-chan struct{}
	Create(ctx context.Context, el string, attrs Attributes) (Widget, error)
}

// Widget is one widget instance bound to a mount point.
type Widget interface {
	// Listen subscribes to the instance's native events.
	Listen(fn func(NativeEvent)) (stop func())
	Destroy() error
}

// LiveUpdater is implemented by widgets that accept cosmetic attribute
// changes without being recreated.
type LiveUpdater interface {
	Update(attrs Attributes) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithReadyTimeout sets how long Mount waits for the runtime.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.readyTimeout = d
		}
	}
}

// Controller mounts widgets on a Runtime.
type Controller struct {
	runtime      Runtime
	readyTimeout time.Duration
}

// NewController creates a controller for rt.
func NewController(rt Runtime, opts ...Option) *Controller {
	c := &Controller{
		runtime:      rt,
		readyTimeout: DefaultReadyTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle is a mounted widget. All operations on a handle, including the
// deferred wait for the runtime, are serialized; at most one widget
// instance is live per handle.
type Handle struct {
	ctrl *Controller
	el   string
	cb   Callbacks

	mu        sync.Mutex
	gen       uint64
	norm      Normalized
	machine   *Machine
	sink      *TokenSink
	bridge    *Bridge
	widget    Widget
	stop      func()
	attempt   *attempt
	destroyed bool
}

// attempt tracks one mount attempt until the widget is created or the
// attempt fails.
type attempt struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newAttempt() *attempt {
	return &attempt{done: make(chan struct{})}
}

func (a *attempt) resolve(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// Mount normalizes cfg and mounts a widget on el.
//
// An invalid configuration is reported to cb.OnCaptchaFailed and returned;
// the runtime is never touched and the handle stays in StateFailed. If the
// runtime is not ready yet, Mount returns at once and the widget is created
// when it becomes ready; ctx and the ready timeout bound that wait, after
// which the mount fails with CAPTCHA_NOT_ACCESSIBLE.
func (c *Controller) Mount(ctx context.Context, el string, cfg Config, cb Callbacks) (*Handle, error) {
	h := &Handle{ctrl: c, el: el, cb: cb}

	norm, err := Normalize(cfg)
	h.mu.Lock()
	if err != nil {
		bridge, a := h.prepareLocked(Normalized{TokenFieldName: cfg.WithDefaults().TokenFieldName})
		h.mu.Unlock()
		ce := AsCaptchaError(err)
		failAttempt(bridge, a, ce)
		return h, ce
	}
	h.norm = norm
	bridge, a, ce := h.mountLocked(ctx)
	h.mu.Unlock()

	if ce != nil {
		failAttempt(bridge, a, ce)
		return h, ce
	}
	return h, nil
}

// prepareLocked installs a fresh state machine, sink and bridge for a new
// mount attempt and invalidates any pending continuation.
func (h *Handle) prepareLocked(norm Normalized) (*Bridge, *attempt) {
	h.gen++
	h.norm = norm
	h.machine = &Machine{}
	h.sink = NewTokenSink(norm.TokenFieldName, h.el+"-token")
	h.bridge = NewBridge(h.el, h.sink, h.machine, h.cb)
	h.attempt = newAttempt()
	return h.bridge, h.attempt
}

// mountLocked starts a mount attempt for h.norm. If the runtime is ready
// the widget is created inline; otherwise a continuation waits for it.
func (h *Handle) mountLocked(ctx context.Context) (*Bridge, *attempt, *CaptchaError) {
	bridge, a := h.prepareLocked(h.norm)
	h.machine.set(StateLoading)

	ready := h.ctrl.runtime.Ready()
	select {
	case <-ready:
		if ce := h.createLocked(ctx); ce != nil {
			return bridge, a, ce
		}
		a.resolve(nil)
		return bridge, a, nil
	default:
	}

	Logger().Debug("waiting for captcha runtime", zap.String("widget", h.el))
	go h.await(ctx, h.gen, ready, bridge, a)
	return bridge, a, nil
}

func (h *Handle) await(ctx context.Context, gen uint64, ready <-chan struct{}, bridge *Bridge, a *attempt) {
	timer := time.NewTimer(h.ctrl.readyTimeout)
	defer timer.Stop()

	var ce *CaptchaError
	select {
	case <-ready:
	case <-timer.C:
		ce = NewCaptchaError(ErrorCaptchaNotAccessible, "captcha runtime not available")
	case <-ctx.Done():
		ce = wrapCaptchaError(ErrorCaptchaNotAccessible, ctx.Err(), "captcha runtime not available: %v", ctx.Err())
	}

	h.mu.Lock()
	if h.gen != gen || h.destroyed {
		// Unmounted or remounted while waiting.
		h.mu.Unlock()
		Logger().Debug("discarding stale mount continuation", zap.String("widget", h.el))
		return
	}
	if ce == nil {
		ce = h.createLocked(ctx)
	}
	h.mu.Unlock()

	if ce != nil {
		h.failDetached(bridge, a, ce)
		return
	}
	a.resolve(nil)
}

// failAttempt reports ce to the host and resolves the attempt. The attempt
// resolves even when a host callback panics.
func failAttempt(bridge *Bridge, a *attempt, ce *CaptchaError) {
	defer a.resolve(ce)
	bridge.Fail(ce)
}

// failDetached is failAttempt for the mount continuation. Nothing above it
// can handle a callback panic, so it is logged instead of crashing the
// process.
func (h *Handle) failDetached(bridge *Bridge, a *attempt, ce *CaptchaError) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("captcha callback panicked in mount continuation",
				zap.String("widget", h.el),
				zap.Any("panic", r),
			)
		}
	}()
	failAttempt(bridge, a, ce)
}

// createLocked creates the widget instance and wires its events.
func (h *Handle) createLocked(ctx context.Context) *CaptchaError {
	w, err := h.ctrl.runtime.Create(ctx, h.el, h.norm.Attrs.Clone())
	if err != nil {
		Logger().Warn("captcha widget creation failed", zap.String("widget", h.el), zap.Error(err))
		var ce *CaptchaError
		if errors.As(err, &ce) {
			return ce
		}
		return wrapCaptchaError(ErrorCaptchaNotAccessible, err, "create widget: %v", err)
	}
	bridge := h.bridge
	h.widget = w
	h.stop = w.Listen(func(ev NativeEvent) {
		_, _ = bridge.Dispatch(ev)
	})
	h.machine.set(StateReady)
	Logger().Debug("captcha widget mounted",
		zap.String("widget", h.el),
		zap.String("sitekey", h.norm.Attrs[AttrSitekey]),
	)
	return nil
}

// teardownLocked destroys the live widget, if any, and detaches its
// listeners. Pending continuations become no-ops.
func (h *Handle) teardownLocked() error {
	h.gen++
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
	if h.bridge != nil {
		h.bridge.Close()
	}
	var err error
	if h.widget != nil {
		err = h.widget.Destroy()
		h.widget = nil
	}
	if h.sink != nil {
		h.sink.detach()
	}
	if h.machine != nil {
		h.machine.set(StateDestroyed)
	}
	if h.attempt != nil {
		h.attempt.resolve(ErrUnmounted)
	}
	return err
}

// Update applies a new configuration.
//
// A change to sitekey, mode, license or the token field name destroys the
// widget and mounts a new one; the old instance is gone before the new one
// is created. Cosmetic changes are applied in place when the widget
// implements LiveUpdater. An invalid configuration tears the widget down
// and is reported to OnCaptchaFailed.
func (h *Handle) Update(ctx context.Context, cfg Config) error {
	norm, err := Normalize(cfg)

	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrUnmounted
	}

	if err != nil {
		if terr := h.teardownLocked(); terr != nil {
			Logger().Warn("captcha widget destroy failed", zap.String("widget", h.el), zap.Error(terr))
		}
		bridge, a := h.prepareLocked(Normalized{TokenFieldName: cfg.WithDefaults().TokenFieldName})
		h.mu.Unlock()
		ce := AsCaptchaError(err)
		failAttempt(bridge, a, ce)
		return ce
	}

	changed := h.norm.Attrs.Diff(norm.Attrs)
	pending := h.widget == nil && h.machine != nil && h.machine.State() == StateLoading
	if len(changed) == 0 && (h.widget != nil || pending) {
		h.norm = norm
		h.mu.Unlock()
		return nil
	}

	if h.widget != nil && !h.norm.Attrs.IdentityChanged(norm.Attrs) && CosmeticOnly(changed) {
		if lu, ok := h.widget.(LiveUpdater); ok {
			uerr := lu.Update(norm.Attrs.Clone())
			if uerr == nil {
				h.norm = norm
				h.mu.Unlock()
				Logger().Debug("captcha widget updated in place",
					zap.String("widget", h.el),
					zap.Strings("changed", changed),
				)
				return nil
			}
			Logger().Debug("live update rejected, remounting", zap.String("widget", h.el), zap.Error(uerr))
		}
	}

	Logger().Debug("remounting captcha widget",
		zap.String("widget", h.el),
		zap.Strings("changed", changed),
	)
	if terr := h.teardownLocked(); terr != nil {
		Logger().Warn("captcha widget destroy failed", zap.String("widget", h.el), zap.Error(terr))
	}
	h.norm = norm
	bridge, a, ce := h.mountLocked(ctx)
	h.mu.Unlock()

	if ce != nil {
		failAttempt(bridge, a, ce)
		return ce
	}
	return nil
}

// Unmount destroys the widget and detaches every subscription. It is safe
// to call more than once.
func (h *Handle) Unmount() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return nil
	}
	h.destroyed = true
	err := h.teardownLocked()
	Logger().Debug("captcha widget unmounted", zap.String("widget", h.el))
	return err
}

// Wait blocks until the current mount attempt has resolved and returns its
// error, if any.
func (h *Handle) Wait(ctx context.Context) error {
	h.mu.Lock()
	a := h.attempt
	h.mu.Unlock()
	if a == nil {
		return nil
	}
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch delivers a native event received out of band (for example over
// HTTP) to the live widget's bridge.
func (h *Handle) Dispatch(native NativeEvent) (Event, error) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return Event{}, ErrUnmounted
	}
	bridge, live := h.bridge, h.widget != nil
	h.mu.Unlock()

	if !live {
		return Event{}, fmt.Errorf("%w: no live widget on %s", ErrInvalidTransition, h.el)
	}
	return bridge.Dispatch(native)
}

// ID returns the mount point id.
func (h *Handle) ID() string {
	return h.el
}

// State returns the widget state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.destroyed:
		return StateDestroyed
	case h.machine == nil:
		return StateUninitialized
	}
	return h.machine.State()
}

// Token returns the current hidden field value.
func (h *Handle) Token() string {
	return h.Sink().Value()
}

// Sink returns the token sink of the current mount.
func (h *Handle) Sink() *TokenSink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink
}

// Normalized returns the configuration the current widget was built from.
func (h *Handle) Normalized() Normalized {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.norm
}

// Subscribe adds a listener to the current mount's bridge. Listeners do
// not survive a remount; use Callbacks for that.
func (h *Handle) Subscribe(kind EventKind, fn func(Event)) (unsubscribe func()) {
	h.mu.Lock()
	bridge := h.bridge
	h.mu.Unlock()
	if bridge == nil {
		return func() {}
	}
	return bridge.Subscribe(kind, fn)
}
