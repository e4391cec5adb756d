package hxcaptcha

import "github.com/a-h/templ"

// Result[P] is returned from action handlers to control rendering and side effects.
//
// The framework processes the Result after the handler returns, applying
// headers and rendering either the fragment or the component:
//
//	// Token updated, widget untouched
//	return OK(props).Fragment(sink.FieldOOB()).Trigger("captcha:solved", data)
//
//	// Failure toast alongside the cleared token
//	return OK(props).Flash(Flash{Level: FlashError, Message: ce.Message, Code: ce.Code})
type Result[P any] struct {
	props    P
	err      error
	flashes  []Flash
	triggers []trigger
	fragment templ.Component
	headers  map[string]string
	status   int
	skip     bool
}

type trigger struct {
	event string
	data  map[string]any
}

// OK creates a success result that will auto-render with the given props.
func OK[P any](props P) Result[P] {
	return Result[P]{props: props}
}

// Err creates an error result that passes the error to the registry's
// OnError handler.
func Err[P any](props P, err error) Result[P] {
	return Result[P]{props: props, err: err}
}

// Skip creates a result indicating the handler wrote its own response.
func Skip[P any]() Result[P] {
	return Result[P]{skip: true}
}

// Flash adds a toast notification, rendered as an out-of-band swap.
func (r Result[P]) Flash(f Flash) Result[P] {
	r.flashes = append(r.flashes, f)
	return r
}

// Trigger emits an event via the HX-Trigger header. Data, when given, is
// delivered to listeners as evt.detail. Calling Trigger again adds a
// second event.
func (r Result[P]) Trigger(event string, data ...map[string]any) Result[P] {
	t := trigger{event: event}
	if len(data) > 0 {
		t.data = data[0]
	}
	r.triggers = append(r.triggers, t)
	return r
}

// Fragment replaces the component render with c. Used by event actions,
// whose responses carry only out-of-band swaps.
func (r Result[P]) Fragment(c templ.Component) Result[P] {
	r.fragment = c
	return r
}

// Header sets a custom response header.
func (r Result[P]) Header(key, value string) Result[P] {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

// Status sets the HTTP status code.
func (r Result[P]) Status(code int) Result[P] {
	r.status = code
	return r
}

// GetProps returns the props from the result.
func (r Result[P]) GetProps() P {
	return r.props
}

// GetErr returns the error from the result.
func (r Result[P]) GetErr() error {
	return r.err
}

// GetFlashes returns the flash messages.
func (r Result[P]) GetFlashes() []Flash {
	return r.flashes
}

// GetTriggers returns the event names in the order they were added.
func (r Result[P]) GetTriggers() []string {
	out := make([]string, len(r.triggers))
	for i, t := range r.triggers {
		out[i] = t.event
	}
	return out
}

// GetTriggerData returns the data attached to event, or nil.
func (r Result[P]) GetTriggerData(event string) map[string]any {
	for _, t := range r.triggers {
		if t.event == event {
			return t.data
		}
	}
	return nil
}

// GetFragment returns the fragment override, or nil.
func (r Result[P]) GetFragment() templ.Component {
	return r.fragment
}

// GetHeaders returns the response headers.
func (r Result[P]) GetHeaders() map[string]string {
	return r.headers
}

// GetStatus returns the HTTP status code (0 means not set, use default 200).
func (r Result[P]) GetStatus() int {
	return r.status
}

// ShouldSkip returns whether the handler wrote its own response.
func (r Result[P]) ShouldSkip() bool {
	return r.skip
}

// triggerHeader returns the HX-Trigger value for the result.
func (r Result[P]) triggerHeader() string {
	events := make([]string, 0, len(r.triggers))
	data := make(map[string]map[string]any, len(r.triggers))
	for _, t := range r.triggers {
		events = append(events, t.event)
		if t.data != nil {
			data[t.event] = t.data
		}
	}
	return BuildTriggerHeader(events, data)
}
