package hxcaptcha

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/a-h/templ"
)

// Render writes a templ component to the HTTP response.
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    hxcaptcha.Render(w, r, page(captcha.Widget(cfg)))
//	}
func Render(w http.ResponseWriter, r *http.Request, component templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(r.Context(), w)
}

// IsHTMX returns true if the request originated from htmx.
func IsHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// TriggerID returns the id of the element that triggered the request.
// For event posts this is the <trustcaptcha-component> element.
func TriggerID(r *http.Request) string {
	return r.Header.Get("HX-Trigger")
}

// BuildTriggerHeader builds an HX-Trigger header value.
//
// Events without data are sent as a comma-separated list
// ("captcha:reset"). As soon as any event carries data the JSON object form
// is used ({"captcha:solved": {"token": "..."}}), with events that have no
// data set to true.
func BuildTriggerHeader(events []string, data map[string]map[string]any) string {
	if len(events) == 0 {
		return ""
	}
	if len(data) == 0 {
		return strings.Join(events, ", ")
	}

	merged := make(map[string]any, len(events))
	for _, ev := range events {
		if d, ok := data[ev]; ok {
			merged[ev] = d
		} else {
			merged[ev] = true
		}
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return strings.Join(events, ", ")
	}
	return string(b)
}
