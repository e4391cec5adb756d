package hxcaptcha

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/aidarkhanov/nanoid/v2"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// CaptchaProps are the props of the Captcha component. They travel signed
// (or encrypted) in the component URLs, so every request can rebuild the
// widget from them.
type CaptchaProps struct {
	WidgetID string
	Config   Config

	handle  *Handle
	failure *CaptchaError
}

// Handle returns the hydrated widget handle.
func (p CaptchaProps) Handle() *Handle {
	return p.handle
}

// HXEncode flattens the props. Empty fields are omitted.
func (p CaptchaProps) HXEncode() map[string]any {
	c := p.Config
	m := map[string]any{"id": p.WidgetID}
	for k, v := range map[string]string{
		"sk":  c.Sitekey,
		"w":   string(c.Width),
		"l":   c.Language,
		"th":  string(c.Theme),
		"lic": c.License,
		"ih":  string(c.InvisibleHint),
		"bt":  c.BypassToken,
		"m":   string(c.Mode),
		"tf":  c.TokenFieldName,
		"pu":  c.PrivacyURL,
		"cls": c.Class,
	} {
		if v != "" {
			m[k] = v
		}
	}
	if c.Autostart != nil {
		m["as"] = *c.Autostart
	}
	if c.HideBranding {
		m["hb"] = true
	}
	if c.Invisible {
		m["inv"] = true
	}
	if !c.CustomTranslations.IsZero() {
		if b, err := c.CustomTranslations.MarshalJSON(); err == nil {
			m["ct"] = string(b)
		}
	}
	if !c.CustomDesign.IsZero() {
		if b, err := c.CustomDesign.MarshalJSON(); err == nil {
			m["cd"] = string(b)
		}
	}
	return m
}

// HXDecode rebuilds the props from HXEncode output.
func (p *CaptchaProps) HXDecode(m map[string]any) error {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	flag := func(k string) bool {
		b, _ := m[k].(bool)
		return b
	}

	p.WidgetID = str("id")
	p.Config = Config{
		Sitekey:        str("sk"),
		Width:          Width(str("w")),
		Language:       str("l"),
		Theme:          Theme(str("th")),
		License:        str("lic"),
		HideBranding:   flag("hb"),
		Invisible:      flag("inv"),
		InvisibleHint:  InvisibleHint(str("ih")),
		BypassToken:    str("bt"),
		Mode:           Mode(str("m")),
		TokenFieldName: str("tf"),
		PrivacyURL:     str("pu"),
		Class:          str("cls"),
	}
	if b, ok := m["as"].(bool); ok {
		p.Config.Autostart = Bool(b)
	}
	if s := str("ct"); s != "" {
		if err := p.Config.CustomTranslations.UnmarshalJSON([]byte(s)); err != nil {
			return fmt.Errorf("%w: customTranslations: %v", ErrInvalidFormat, err)
		}
	}
	if s := str("cd"); s != "" {
		if err := p.Config.CustomDesign.UnmarshalJSON([]byte(s)); err != nil {
			return fmt.Errorf("%w: customDesign: %v", ErrInvalidFormat, err)
		}
	}
	return nil
}

// Captcha embeds TrustCaptcha widgets into server-rendered pages.
//
// Each rendered widget is mounted on a server-side SessionRuntime; the
// browser widget's events are posted back through htmx and translated into
// typed callbacks, htmx triggers and an updated hidden token field.
type Captcha struct {
	*Component[CaptchaProps]

	runtime     Runtime
	ctrl        *Controller
	sessions    *sessionStore
	callbacks   Callbacks
	sessionTTL  time.Duration
	onError     func(http.ResponseWriter, *http.Request, error)
	ctrlOptions []Option
}

// CaptchaOption configures a Captcha.
type CaptchaOption func(*Captcha)

// WithCallbacks sets the host callbacks invoked for every widget.
func WithCallbacks(cb Callbacks) CaptchaOption {
	return func(c *Captcha) {
		c.callbacks = cb
	}
}

// WithSessionTTL sets how long an idle widget is kept mounted.
func WithSessionTTL(d time.Duration) CaptchaOption {
	return func(c *Captcha) {
		c.sessionTTL = d
	}
}

// WithRuntime replaces the default SessionRuntime.
func WithRuntime(rt Runtime) CaptchaOption {
	return func(c *Captcha) {
		c.runtime = rt
	}
}

// WithControllerOptions passes options to the mount controller.
func WithControllerOptions(opts ...Option) CaptchaOption {
	return func(c *Captcha) {
		c.ctrlOptions = append(c.ctrlOptions, opts...)
	}
}

// WithEncryptedProps encrypts props in URLs instead of signing them. Use it
// when the configuration carries a bypass token.
func WithEncryptedProps() CaptchaOption {
	return func(c *Captcha) {
		c.Component.Sensitive()
	}
}

// NewCaptcha creates the Captcha component. Register it with a Registry
// before rendering widgets. The URL prefix is derived from the call site,
// so components created on different lines never collide.
func NewCaptcha(opts ...CaptchaOption) *Captcha {
	c := &Captcha{
		Component:  newComponent[CaptchaProps]("captcha", 2),
		sessionTTL: DefaultSessionTTL,
		onError:    DefaultErrorHandler,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runtime == nil {
		c.runtime = NewSessionRuntime()
	}
	c.ctrl = NewController(c.runtime, c.ctrlOptions...)
	c.sessions = newSessionStore(c.sessionTTL)
	c.Action("event")
	return c
}

// Close unmounts every widget.
func (c *Captcha) Close() {
	c.sessions.close()
}

// Lookup returns the mounted handle for a widget ID.
func (c *Captcha) Lookup(id string) (*Handle, bool) {
	return c.sessions.get(id)
}

// Token returns the verification token held for a widget.
func (c *Captcha) Token(id string) (string, bool) {
	h, ok := c.sessions.get(id)
	if !ok {
		return "", false
	}
	return h.Token(), true
}

// Unmount destroys a widget and forgets it.
func (c *Captcha) Unmount(id string) error {
	return c.sessions.remove(id)
}

// Widget renders a new widget for cfg. placeholder, if given, is shown
// until the browser widget has loaded.
func (c *Captcha) Widget(cfg Config, placeholder ...templ.Component) templ.Component {
	return c.WidgetFor(NewWidgetID(), cfg, placeholder...)
}

// WidgetFor renders the widget with the given ID. Rendering the same ID
// again applies cfg to the mounted widget: cosmetic changes keep it,
// identity changes remount it.
func (c *Captcha) WidgetFor(id string, cfg Config, placeholder ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		props := CaptchaProps{WidgetID: id, Config: cfg}
		if err := c.Hydrate(ctx, &props); err != nil {
			return err
		}
		return c.render(props, placeholder).Render(ctx, w)
	})
}

// Deferred renders placeholder and loads the widget after page load.
func (c *Captcha) Deferred(cfg Config, placeholder templ.Component) templ.Component {
	props := CaptchaProps{WidgetID: NewWidgetID(), Config: cfg}
	return deferredComponent(c.buildURL("", props), placeholder)
}

// EventURL returns the URL the widget posts its events to.
func (c *Captcha) EventURL(props CaptchaProps) string {
	return c.buildURL("event", props)
}

// RefreshURL returns the URL that re-renders the widget.
func (c *Captcha) RefreshURL(props CaptchaProps) string {
	return c.buildURL("", props)
}

// NewWidgetID returns a fresh widget ID.
func NewWidgetID() string {
	id, err := nanoid.New()
	if err != nil {
		return fmt.Sprintf("tc-%d", time.Now().UnixNano())
	}
	return "tc-" + id
}

// Hydrate attaches the mounted handle for props.WidgetID, mounting it on
// first use and applying props.Config otherwise.
func (c *Captcha) Hydrate(ctx context.Context, props *CaptchaProps) error {
	if props.WidgetID == "" {
		return fmt.Errorf("%w: missing widget id", ErrInvalidFormat)
	}
	// Mount continuations outlive the request.
	ctx = context.WithoutCancel(ctx)

	var failure error
	h, created := c.sessions.acquire(props.WidgetID, func() *Handle {
		h, err := c.ctrl.Mount(ctx, props.WidgetID, props.Config, c.callbacks)
		failure = err
		return h
	})
	if !created {
		failure = h.Update(ctx, props.Config)
	}

	props.handle = h
	props.failure = nil
	if failure != nil {
		var ce *CaptchaError
		if !errors.As(failure, &ce) {
			return failure
		}
		props.failure = ce
	}
	return nil
}

// Render renders the widget for hydrated props.
func (c *Captcha) Render(ctx context.Context, props CaptchaProps) templ.Component {
	return c.render(props, nil)
}

func (c *Captcha) render(props CaptchaProps, placeholder []templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := props.handle
		if h == nil {
			return fmt.Errorf("%s: %w", props.WidgetID, ErrHydrationFailed)
		}
		class := "hxcaptcha"
		if props.Config.Class != "" {
			class += " " + props.Config.Class
		}

		var sb strings.Builder
		sb.WriteString(`<div id="` + html.EscapeString(props.WidgetID) + `" class="` + html.EscapeString(class) +
			`" data-state="` + h.State().String() + `">`)

		if props.failure != nil && IsConfigError(props.failure) {
			// The runtime was never given this configuration.
			writeFailure(&sb, props.failure)
		} else {
			sb.WriteString(`<trustcaptcha-component id="` + html.EscapeString(props.WidgetID) + `-widget"`)
			writeAttrs(&sb, h.Normalized().Attrs)
			writeAttrs(&sb, c.eventAttrs(props))
			sb.WriteString(`>`)
		}
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
		if props.failure == nil || !IsConfigError(props.failure) {
			for _, p := range placeholder {
				if p == nil {
					continue
				}
				if err := p.Render(ctx, w); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, `</trustcaptcha-component>`); err != nil {
				return err
			}
		}
		if err := h.Sink().Field().Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

// eventAttrs wires the widget's DOM events to the event action.
func (c *Captcha) eventAttrs(props CaptchaProps) map[string]string {
	method, _ := c.ActionMethod("event")
	encoded, err := c.encodeProps(props)
	if err != nil {
		Logger().Error("captcha props encoding failed", zap.String("widget", props.WidgetID), zap.Error(err))
	}
	out := map[string]string{}
	for k, v := range EventAttrs(WireAttrs(c.Prefix()+"/event", method, encoded)) {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func writeAttrs(sb *strings.Builder, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(` ` + k + `="` + html.EscapeString(attrs[k]) + `"`)
	}
}

func writeFailure(sb *strings.Builder, ce *CaptchaError) {
	sb.WriteString(`<div class="hxcaptcha-error" role="alert" data-error-code="` + html.EscapeString(string(ce.Code)) + `">`)
	sb.WriteString(html.EscapeString(ce.Message))
	sb.WriteString(`</div>`)
}

// HXPrefix returns the component's URL prefix.
func (c *Captcha) HXPrefix() string {
	return c.Prefix()
}

// HXServeHTTP serves the widget refresh (GET) and the event action.
func (c *Captcha) HXServeHTTP(w http.ResponseWriter, r *http.Request) {
	var props CaptchaProps
	if err := c.decodeProps(r, &props); err != nil {
		c.onError(w, r, err)
		return
	}
	if err := c.Hydrate(r.Context(), &props); err != nil {
		c.onError(w, r, fmt.Errorf("%w: %v", ErrHydrationFailed, err))
		return
	}

	action := strings.Trim(strings.TrimPrefix(r.URL.Path, c.Prefix()), "/")
	if action == "" {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c.handleResult(w, r, OK(props))
		return
	}

	method, ok := c.ActionMethod(action)
	if !ok {
		c.onError(w, r, fmt.Errorf("%w: action %q", ErrNotFound, action))
		return
	}
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch action {
	case "event":
		c.handleResult(w, r, c.handleEvent(r.Context(), props, r))
	default:
		c.onError(w, r, fmt.Errorf("%w: action %q", ErrNotFound, action))
	}
}

// handleEvent delivers a native widget event posted by htmx. The response
// replaces the hidden token field out of band and announces the typed event
// through HX-Trigger.
func (c *Captcha) handleEvent(ctx context.Context, props CaptchaProps, r *http.Request) Result[CaptchaProps] {
	native := NativeEvent{
		Type:   r.PostFormValue("type"),
		Detail: parseDetail(r.PostFormValue("detail")),
	}
	h := props.handle
	ev, err := h.Dispatch(native)
	if err != nil {
		Logger().Warn("captcha event dropped",
			zap.String("widget", props.WidgetID),
			zap.String("type", native.Type),
			zap.Error(err),
		)
		return Err(props, err)
	}

	res := OK(props).
		Fragment(h.Sink().FieldOOB()).
		Trigger(ev.Kind.TriggerName(), ev.TriggerData())
	if ev.Kind == EventFailed && ev.Err != nil {
		res = res.Flash(failureFlash(props.WidgetID, ev.Err))
	}
	return res
}

// parseDetail decodes the JSON-encoded event detail posted by the browser.
// Strings stay strings, objects become maps, anything unparsable is kept as
// the raw text.
func parseDetail(raw string) any {
	if raw == "" {
		return nil
	}
	v, err := fastjson.Parse(raw)
	if err != nil {
		return raw
	}
	switch v.Type() {
	case fastjson.TypeNull:
		return nil
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeObject:
		obj, _ := v.Object()
		m := make(map[string]any, obj.Len())
		obj.Visit(func(key []byte, val *fastjson.Value) {
			if val.Type() == fastjson.TypeString {
				m[string(key)] = string(val.GetStringBytes())
				return
			}
			m[string(key)] = val.String()
		})
		return m
	}
	return raw
}

func (c *Captcha) handleResult(w http.ResponseWriter, r *http.Request, res Result[CaptchaProps]) {
	if res.ShouldSkip() {
		return
	}
	if err := res.GetErr(); err != nil {
		c.onError(w, r, err)
		return
	}

	for k, v := range res.GetHeaders() {
		w.Header().Set(k, v)
	}
	if t := res.triggerHeader(); t != "" {
		w.Header().Set("HX-Trigger", t)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status := res.GetStatus(); status != 0 {
		w.WriteHeader(status)
	}

	body := res.GetFragment()
	if body == nil {
		body = c.Render(r.Context(), res.GetProps())
	}
	if err := body.Render(r.Context(), w); err != nil {
		Logger().Error("captcha render failed", zap.String("path", r.URL.Path), zap.Error(err))
		return
	}
	if flashes := RenderFlashesOOB(res.GetFlashes()); flashes != "" {
		_, _ = io.WriteString(w, flashes)
	}
}

func (c *Captcha) setErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) {
	c.onError = fn
}
