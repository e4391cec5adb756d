package hxcaptcha

import (
	"bytes"
	"context"
	"encoding/json"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
)

// TestResult holds the result of rendering a component for testing.
type TestResult struct {
	HTML            string
	StatusCode      int
	Headers         http.Header
	TriggeredEvents []string
	TriggerData     map[string]map[string]any
	Flashes         []Flash
}

// TestableComponent combines Hydrater and Renderer for testing.
type TestableComponent[P any] interface {
	Hydrater[P]
	Renderer[P]
}

// TestRender hydrates and renders a component without HTTP mechanics.
//
//	result, err := hxcaptcha.TestRender(captcha, hxcaptcha.CaptchaProps{WidgetID: "w1", Config: cfg})
//	if !result.HTMLContains(`sitekey="`) {
//	    t.Fatal("missing sitekey")
//	}
func TestRender[P any](comp TestableComponent[P], props P) (*TestResult, error) {
	return TestRenderWithContext(context.Background(), comp, props)
}

// TestRenderWithContext renders a component with a custom context.
func TestRenderWithContext[P any](ctx context.Context, comp TestableComponent[P], props P) (*TestResult, error) {
	if err := comp.Hydrate(ctx, &props); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := comp.Render(ctx, props).Render(ctx, &buf); err != nil {
		return nil, err
	}
	return &TestResult{
		HTML:       buf.String(),
		StatusCode: http.StatusOK,
		Headers:    make(http.Header),
	}, nil
}

// TestAction sends a request through comp.HXServeHTTP, as htmx would.
func TestAction(comp HXComponent, actionURL, method string, formData map[string]string) (*TestResult, error) {
	form := url.Values{}
	for k, v := range formData {
		form.Set(k, v)
	}

	req := httptest.NewRequest(method, actionURL, strings.NewReader(form.Encode()))
	if len(formData) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("HX-Request", "true")

	rec := httptest.NewRecorder()
	comp.HXServeHTTP(rec, req)
	return newTestResult(rec), nil
}

// TestGet simulates a widget refresh.
func TestGet(comp HXComponent, url string) (*TestResult, error) {
	return TestAction(comp, url, http.MethodGet, nil)
}

// TestPost simulates a POST request against an HXComponent.
func TestPost(comp HXComponent, url string, formData map[string]string) (*TestResult, error) {
	return TestAction(comp, url, http.MethodPost, formData)
}

// TestEvent posts a native widget event the way the browser wiring does.
// detail is the JSON-encoded event detail ("" for none).
func TestEvent(comp HXComponent, eventURL, eventType, detail string) (*TestResult, error) {
	form := map[string]string{"type": eventType}
	if detail != "" {
		form["detail"] = detail
	}
	return TestPost(comp, eventURL, form)
}

func newTestResult(rec *httptest.ResponseRecorder) *TestResult {
	result := &TestResult{
		HTML:       rec.Body.String(),
		StatusCode: rec.Code,
		Headers:    rec.Header(),
	}
	if trigger := rec.Header().Get("HX-Trigger"); trigger != "" {
		result.TriggeredEvents, result.TriggerData = parseTriggerHeader(trigger)
	}
	result.Flashes = parseFlashesFromHTML(result.HTML)
	return result
}

// HTMLContains reports whether the output contains substr.
func (r *TestResult) HTMLContains(substr string) bool {
	return strings.Contains(r.HTML, substr)
}

// HTMLContainsAll reports whether the output contains every substring.
func (r *TestResult) HTMLContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !strings.Contains(r.HTML, s) {
			return false
		}
	}
	return true
}

// HasEvent reports whether the response triggered event.
func (r *TestResult) HasEvent(event string) bool {
	for _, e := range r.TriggeredEvents {
		if e == event {
			return true
		}
	}
	return false
}

// EventData returns the data sent with event.
func (r *TestResult) EventData(event string) map[string]any {
	return r.TriggerData[event]
}

// HasFlash reports whether a flash with level and message was rendered.
func (r *TestResult) HasFlash(level, message string) bool {
	for _, f := range r.Flashes {
		if f.Level == level && f.Message == message {
			return true
		}
	}
	return false
}

// HasFlashLevel reports whether any flash of level was rendered.
func (r *TestResult) HasFlashLevel(level string) bool {
	for _, f := range r.Flashes {
		if f.Level == level {
			return true
		}
	}
	return false
}

// IsOK reports a 2xx status.
func (r *TestResult) IsOK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HasStatus reports whether the status is code.
func (r *TestResult) HasStatus(code int) bool {
	return r.StatusCode == code
}

// GetHeader returns a response header.
func (r *TestResult) GetHeader(key string) string {
	return r.Headers.Get(key)
}

// parseTriggerHeader reads both forms produced by BuildTriggerHeader.
func parseTriggerHeader(trigger string) ([]string, map[string]map[string]any) {
	trigger = strings.TrimSpace(trigger)
	if !strings.HasPrefix(trigger, "{") {
		var events []string
		for _, e := range strings.Split(trigger, ",") {
			if e = strings.TrimSpace(e); e != "" {
				events = append(events, e)
			}
		}
		return events, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trigger), &raw); err != nil {
		return []string{trigger}, nil
	}
	events := make([]string, 0, len(raw))
	data := make(map[string]map[string]any)
	for ev, msg := range raw {
		events = append(events, ev)
		var d map[string]any
		if json.Unmarshal(msg, &d) == nil {
			data[ev] = d
		}
	}
	return events, data
}

var (
	flashPattern    = regexp.MustCompile(`<div class="toast toast-([^"]*)"([^>]*)>([^<]*)</div>`)
	flashWidgetAttr = regexp.MustCompile(`data-widget="([^"]*)"`)
	flashCodeAttr   = regexp.MustCompile(`data-error-code="([^"]*)"`)
)

func parseFlashesFromHTML(body string) []Flash {
	var flashes []Flash
	for _, m := range flashPattern.FindAllStringSubmatch(body, -1) {
		f := Flash{Level: html.UnescapeString(m[1]), Message: html.UnescapeString(m[3])}
		if a := flashWidgetAttr.FindStringSubmatch(m[2]); a != nil {
			f.Widget = html.UnescapeString(a[1])
		}
		if a := flashCodeAttr.FindStringSubmatch(m[2]); a != nil {
			f.Code = ErrorCode(html.UnescapeString(a[1]))
		}
		flashes = append(flashes, f)
	}
	return flashes
}
