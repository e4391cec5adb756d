package hxcaptcha

import (
	"fmt"
	"strings"
)

// EventKind identifies one of the four widget events.
type EventKind int

const (
	EventStarted EventKind = iota + 1
	EventSolved
	EventFailed
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventSolved:
		return "solved"
	case EventFailed:
		return "failed"
	case EventReset:
		return "reset"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// TriggerName is the htmx event name announced to the host page.
func (k EventKind) TriggerName() string {
	return "captcha:" + k.String()
}

// NativeEvent is an event as emitted by the widget runtime: a loosely typed
// name and detail payload.
type NativeEvent struct {
	Type   string
	Detail any
}

// ParseEventKind resolves a native event name. It accepts the short names
// (start, solved, failed, reset) and the DOM event names dispatched by the
// custom element (captchaStarted, captchaSolved, ...), case-insensitively.
func ParseEventKind(name string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "start", "started", "captchastarted":
		return EventStarted, nil
	case "solved", "captchasolved":
		return EventSolved, nil
	case "failed", "captchafailed":
		return EventFailed, nil
	case "reset", "captchareset":
		return EventReset, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// Event is the typed event delivered to host callbacks.
type Event struct {
	Kind     EventKind
	WidgetID string

	// Token is set for EventSolved.
	Token string
	// Err is set for EventFailed.
	Err *CaptchaError
}

// TriggerData is the payload sent with the htmx trigger for this event.
func (e Event) TriggerData() map[string]any {
	switch e.Kind {
	case EventSolved:
		return map[string]any{"widget": e.WidgetID, "token": e.Token}
	case EventFailed:
		data := map[string]any{"widget": e.WidgetID}
		if e.Err != nil {
			data["errorCode"] = string(e.Err.Code)
			data["message"] = e.Err.Message
		}
		return data
	}
	return map[string]any{"widget": e.WidgetID}
}

// Translate converts a native event into a typed Event. It performs no
// side effects; unknown event names fail with ErrUnknownEvent.
func Translate(ev NativeEvent) (Event, error) {
	kind, err := ParseEventKind(ev.Type)
	if err != nil {
		return Event{}, err
	}
	out := Event{Kind: kind}
	switch kind {
	case EventSolved:
		out.Token = tokenOf(ev.Detail)
	case EventFailed:
		ce := MapNativeError(ev.Detail)
		out.Err = &ce
	}
	return out, nil
}

func tokenOf(detail any) string {
	switch d := detail.(type) {
	case string:
		return d
	case []byte:
		return string(d)
	case map[string]any:
		s, _ := firstString(d, "token", "verificationToken")
		return s
	case map[string]string:
		if t := d["token"]; t != "" {
			return t
		}
		return d["verificationToken"]
	}
	return ""
}

// Callbacks is the typed host callback contract. Nil callbacks are skipped.
type Callbacks struct {
	OnCaptchaStarted func(Event)
	OnCaptchaSolved  func(Event)
	OnCaptchaFailed  func(Event)
	OnCaptchaReset   func(Event)
}

func (c Callbacks) forKind(k EventKind) func(Event) {
	switch k {
	case EventStarted:
		return c.OnCaptchaStarted
	case EventSolved:
		return c.OnCaptchaSolved
	case EventFailed:
		return c.OnCaptchaFailed
	case EventReset:
		return c.OnCaptchaReset
	}
	return nil
}
