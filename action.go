package hxcaptcha

import (
	"net/http"
	"strings"

	"github.com/a-h/templ"
)

// WireAttrs builds the htmx attributes that send an action request.
//
// For GET the props travel in the query string. For other methods the
// props also stay in the query string, because hx-vals is used for the
// event payload (see EventAttrs).
func WireAttrs(path, method, encoded string) templ.Attributes {
	attrs := templ.Attributes{}

	url := path
	if encoded != "" {
		url = path + "?p=" + encoded
	}

	switch method {
	case http.MethodGet, "":
		attrs["hx-get"] = url
	case http.MethodPut:
		attrs["hx-put"] = url
	case http.MethodPatch:
		attrs["hx-patch"] = url
	case http.MethodDelete:
		attrs["hx-delete"] = url
	default:
		attrs["hx-post"] = url
	}
	return attrs
}

// nativeEventNames are the DOM events dispatched by <trustcaptcha-component>.
var nativeEventNames = []string{"captchaStarted", "captchaSolved", "captchaFailed", "captchaReset"}

// EventAttrs extends action attributes so that every native widget event
// is posted to the server with its name and JSON-encoded detail. The swap
// is disabled so the widget element itself is never replaced; responses
// only carry out-of-band fragments.
func EventAttrs(attrs templ.Attributes) templ.Attributes {
	attrs["hx-trigger"] = strings.Join(nativeEventNames, ", ")
	attrs["hx-vals"] = `js:{"type": event.type, "detail": JSON.stringify(event.detail === undefined ? null : event.detail)}`
	attrs["hx-swap"] = string(SwapNone)
	return attrs
}
