package hxcaptcha

import (
	"context"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Flash levels for toast notifications.
const (
	FlashError = "error"
	FlashInfo  = "info"
)

// Flash is a one-time notification message.
//
// The Captcha component flashes an error toast when the widget fails, so
// users see the failure even when the widget itself is invisible. Such a
// toast names the widget and the error code; page scripts can match on
// data-widget and data-error-code to decorate or suppress it.
type Flash struct {
	Level   string
	Message string
	Widget  string
	Code    ErrorCode
}

// failureFlash builds the error toast for a failed widget.
func failureFlash(widget string, ce *CaptchaError) Flash {
	msg := ce.Message
	if msg == "" {
		msg = "Verification failed (" + string(ce.Code) + ")"
	}
	return Flash{Level: FlashError, Message: msg, Widget: widget, Code: ce.Code}
}

// RenderFlashesOOB renders flashes as an out-of-band append to #toasts.
func RenderFlashesOOB(flashes []Flash) string {
	if len(flashes) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(`<div id="toasts" hx-swap-oob="beforeend">`)
	for _, f := range flashes {
		sb.WriteString(`<div class="toast toast-`)
		sb.WriteString(html.EscapeString(f.Level))
		sb.WriteString(`" role="alert"`)
		if f.Widget != "" {
			sb.WriteString(` data-widget="`)
			sb.WriteString(html.EscapeString(f.Widget))
			sb.WriteString(`"`)
		}
		if f.Code != "" {
			sb.WriteString(` data-error-code="`)
			sb.WriteString(html.EscapeString(string(f.Code)))
			sb.WriteString(`"`)
		}
		// Failures stay until dismissed; the widget may be invisible.
		if f.Level != FlashError {
			sb.WriteString(` data-auto-dismiss="5000"`)
		}
		sb.WriteString(`>`)
		sb.WriteString(html.EscapeString(f.Message))
		sb.WriteString(`</div>`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

// ToastContainer returns the container targeted by flash swaps. Place it
// once in the page layout.
func ToastContainer() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div id="toasts" class="toast-container" aria-live="polite"></div>`)
		return err
	})
}
