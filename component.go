package hxcaptcha

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"net/http"
	"path/filepath"
	"runtime"

	"github.com/a-h/templ"
)

// actionDef holds metadata about a registered action.
type actionDef struct {
	name   string
	method string
}

// Component[P] is the base type embedded by components.
// P is the Props type for this component.
//
// It provides the URL prefix, action registration and props encoding.
// The prefix is derived from the component name and the source location
// of the constructor call, so two instances never share routes.
type Component[P any] struct {
	name      string
	prefix    string
	sensitive bool
	actions   map[string]*actionDef
	encoder   *Encoder
}

// newComponent creates a component with the given name. It hashes the
// source location skip frames above it into the prefix, so constructors
// pass the depth of their own caller.
//
// Props are signed by default (visible in URLs but tamper-proof). Call
// Sensitive to encrypt them instead.
func newComponent[P any](name string, skip int) *Component[P] {
	prefix := "/_c/" + name + "-" + componentHash(name, skip)
	return &Component[P]{
		name:    name,
		prefix:  prefix,
		actions: make(map[string]*actionDef),
	}
}

// Sensitive marks the component as sensitive, enabling full encryption of
// props. Use it when the configuration carries secrets such as a bypass
// token that must not be readable in URLs.
func (c *Component[P]) Sensitive() *Component[P] {
	c.sensitive = true
	return c
}

// Name returns the component's name.
func (c *Component[P]) Name() string {
	return c.name
}

// Prefix returns the component's URL prefix.
func (c *Component[P]) Prefix() string {
	return c.prefix
}

// IsSensitive returns whether the component uses encrypted props.
func (c *Component[P]) IsSensitive() bool {
	return c.sensitive
}

// Action registers a named action. Actions are posted.
func (c *Component[P]) Action(name string) {
	c.actions[name] = &actionDef{
		name:   name,
		method: http.MethodPost,
	}
}

// ActionMethod returns the HTTP method of a registered action.
func (c *Component[P]) ActionMethod(name string) (string, bool) {
	a, ok := c.actions[name]
	if !ok {
		return "", false
	}
	return a.method, true
}

// SetEncoder sets the encoder for this component (called by registry).
func (c *Component[P]) SetEncoder(enc *Encoder) {
	c.encoder = enc
}

// Encoder returns the encoder for this component.
func (c *Component[P]) Encoder() *Encoder {
	return c.encoder
}

// encodeProps returns the encoded props, or "" if no encoder is set.
func (c *Component[P]) encodeProps(props P) (string, error) {
	if c.encoder == nil {
		return "", nil
	}
	return c.encoder.Encode(props, c.sensitive)
}

// decodeProps decodes the "p" query parameter into props.
func (c *Component[P]) decodeProps(r *http.Request, props *P) error {
	encoded := r.URL.Query().Get("p")
	if encoded == "" {
		return ErrInvalidFormat
	}
	if c.encoder == nil {
		return fmt.Errorf("%s: %w", c.name, ErrHydrationFailed)
	}
	return wrapEncodingError(c.encoder.Decode(encoded, c.sensitive, props))
}

// buildURL constructs the URL for an action with encoded props.
// Empty action string means default render (GET).
func (c *Component[P]) buildURL(action string, props P) string {
	path := c.prefix + "/"
	if action != "" {
		path = c.prefix + "/" + action
	}

	encoded, err := c.encodeProps(props)
	if err != nil || encoded == "" {
		return path
	}
	return path + "?p=" + encoded
}

// componentHash generates a deterministic hash based on component name and
// source location.
func componentHash(name string, skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	var input string
	if ok {
		// Base filename only, for portability across environments
		input = fmt.Sprintf("%s:%d:%s", filepath.Base(file), line, name)
	} else {
		input = name
	}
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:4])
}

// deferredComponent renders placeholder inside a div that loads url once
// the page has loaded.
func deferredComponent(url string, placeholder templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div hx-get="`+html.EscapeString(url)+`" hx-trigger="load" hx-swap="`+string(SwapOuter)+`">`)
		if err != nil {
			return err
		}
		if placeholder != nil {
			if err := placeholder.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, `</div>`)
		return err
	})
}
