package hxcaptcha

import (
	"context"
	"html"
	"io"
	"sync"

	"github.com/a-h/templ"
)

// TokenSink owns the hidden form field that carries the verification
// token. Only the Bridge of the live widget writes it.
type TokenSink struct {
	mu       sync.RWMutex
	name     string
	id       string
	value    string
	detached bool
}

// NewTokenSink creates a sink for a field named name. id is the element id
// of the field; it scopes the field to one widget so the sink never writes
// a field it did not render.
func NewTokenSink(name, id string) *TokenSink {
	if name == "" {
		name = DefaultTokenFieldName
	}
	return &TokenSink{name: name, id: id}
}

// Name returns the form field name.
func (s *TokenSink) Name() string {
	return s.name
}

// ID returns the element id of the field.
func (s *TokenSink) ID() string {
	return s.id
}

// Value returns the current token, or "" when the widget is not solved.
func (s *TokenSink) Value() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// OnSolved stores token as the field value. A detached sink ignores it.
func (s *TokenSink) OnSolved(token string) {
	s.mu.Lock()
	if !s.detached {
		s.value = token
	}
	s.mu.Unlock()
}

// OnResetOrFailed clears the field.
func (s *TokenSink) OnResetOrFailed() {
	s.mu.Lock()
	s.value = ""
	s.mu.Unlock()
}

// detach clears the field for good. The widget feeding this sink is gone;
// an event still in flight must not bring a token back.
func (s *TokenSink) detach() {
	s.mu.Lock()
	s.value = ""
	s.detached = true
	s.mu.Unlock()
}

// Field renders the hidden input. It is a plain form control so a native
// form submit includes it.
func (s *TokenSink) Field() templ.Component {
	return s.render(false)
}

// FieldOOB renders the hidden input as an htmx out-of-band swap that
// replaces the field rendered by Field.
func (s *TokenSink) FieldOOB() templ.Component {
	return s.render(true)
}

func (s *TokenSink) render(oob bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		value := s.Value()
		out := `<input type="hidden" name="` + html.EscapeString(s.name) + `"`
		if s.id != "" {
			out += ` id="` + html.EscapeString(s.id) + `"`
		}
		out += ` value="` + html.EscapeString(value) + `"`
		if oob {
			out += ` hx-swap-oob="true"`
		}
		out += `>`
		_, err := io.WriteString(w, out)
		return err
	})
}
