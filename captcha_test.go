package hxcaptcha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/a-h/templ"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestCaptcha(t *testing.T, opts ...CaptchaOption) (*Captcha, *SessionRuntime, *Registry) {
	t.Helper()
	rt := NewSessionRuntime()
	c := NewCaptcha(append([]CaptchaOption{WithRuntime(rt)}, opts...)...)
	reg := NewRegistry(testKey)
	reg.Add(c)
	t.Cleanup(c.Close)
	return c, rt, reg
}

func mountTestWidget(t *testing.T, c *Captcha, props CaptchaProps) *TestResult {
	t.Helper()
	res, err := TestRender(c, props)
	if err != nil {
		t.Fatalf("TestRender: %v", err)
	}
	return res
}

func TestCaptchaRender(t *testing.T) {
	c, rt, _ := newTestCaptcha(t)
	props := CaptchaProps{WidgetID: "w1", Config: Config{
		Sitekey:      "abc",
		Mode:         ModeStandard,
		HideBranding: true,
		Class:        "my-captcha",
	}}
	res := mountTestWidget(t, c, props)

	if !res.HTMLContainsAll(
		`<div id="w1" class="hxcaptcha my-captcha" data-state="ready">`,
		`<trustcaptcha-component id="w1-widget"`,
		`sitekey="abc"`,
		`mode="standard"`,
		`hx-post="`+c.Prefix()+`/event?p=`,
		`hx-trigger="captchaStarted, captchaSolved, captchaFailed, captchaReset"`,
		`hx-swap="none"`,
		`</trustcaptcha-component>`,
		`<input type="hidden" name="tc-verification-token" id="w1-token" value="">`,
	) {
		t.Errorf("unexpected HTML:\n%s", res.HTML)
	}
	if res.HTMLContains("hide-branding") {
		t.Error("license-gated attribute rendered without a license")
	}
	if rt.Live() != 1 {
		t.Errorf("Live() = %d, want 1", rt.Live())
	}
	if _, ok := c.Lookup("w1"); !ok {
		t.Error("widget not registered")
	}
}

func TestCaptchaRenderConfigError(t *testing.T) {
	var failed *CaptchaError
	c, rt, _ := newTestCaptcha(t, WithCallbacks(Callbacks{
		OnCaptchaFailed: func(ev Event) { failed = ev.Err },
	}))
	res := mountTestWidget(t, c, CaptchaProps{WidgetID: "w1", Config: Config{
		Sitekey:            "abc",
		CustomTranslations: TranslationsJSON(`not json`),
	}})

	if !res.HTMLContains(`data-error-code="UNKNOWN_ERROR"`) {
		t.Errorf("missing error block:\n%s", res.HTML)
	}
	if res.HTMLContains("<trustcaptcha-component") {
		t.Error("widget rendered for an invalid configuration")
	}
	if rt.Live() != 0 {
		t.Errorf("Live() = %d, want 0", rt.Live())
	}
	if failed == nil || failed.Code != ErrorUnknown {
		t.Errorf("OnCaptchaFailed got %+v", failed)
	}
}

func TestCaptchaEventSolved(t *testing.T) {
	var c *Captcha
	var seen string
	c, _, _ = newTestCaptcha(t, WithCallbacks(Callbacks{
		OnCaptchaSolved: func(ev Event) { seen, _ = c.Token(ev.WidgetID) },
	}))
	props := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "abc"}}
	mountTestWidget(t, c, props)

	res, err := TestEvent(c, c.EventURL(props), "captchaSolved", `"tok_123"`)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsOK() {
		t.Fatalf("status = %d: %s", res.StatusCode, res.HTML)
	}
	if !res.HasEvent("captcha:solved") {
		t.Errorf("events = %v", res.TriggeredEvents)
	}
	if got := res.EventData("captcha:solved")["token"]; got != "tok_123" {
		t.Errorf("trigger token = %v", got)
	}
	if !res.HTMLContainsAll(`id="w1-token"`, `value="tok_123"`, `hx-swap-oob="true"`) {
		t.Errorf("missing OOB field:\n%s", res.HTML)
	}
	if tok, _ := c.Token("w1"); tok != "tok_123" {
		t.Errorf("Token() = %q", tok)
	}
	if seen != "tok_123" {
		t.Errorf("callback observed %q", seen)
	}
	if res.HasFlashLevel(FlashError) {
		t.Errorf("solved event flashed an error: %v", res.Flashes)
	}
	if ct := res.GetHeader("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestCaptchaEventFailed(t *testing.T) {
	c, _, _ := newTestCaptcha(t)
	props := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "abc"}}
	mountTestWidget(t, c, props)

	if _, err := TestEvent(c, c.EventURL(props), "captchaSolved", `{"token":"tok"}`); err != nil {
		t.Fatal(err)
	}
	res, err := TestEvent(c, c.EventURL(props), "captchaFailed", `{"errorCode":"SITE_KEY_INVALID","message":"bad key"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsOK() {
		t.Fatalf("status = %d", res.StatusCode)
	}
	data := res.EventData("captcha:failed")
	if data["errorCode"] != "SITE_KEY_NOT_VALID" || data["message"] != "bad key" {
		t.Errorf("trigger data = %v", data)
	}
	if !res.HasFlash(FlashError, "bad key") {
		t.Errorf("flashes = %v", res.Flashes)
	}
	if f := res.Flashes[0]; f.Widget != "w1" || f.Code != ErrorSiteKeyNotValid {
		t.Errorf("flash = %+v, want widget w1 and code SITE_KEY_NOT_VALID", f)
	}
	if !res.HTMLContains(`data-error-code="SITE_KEY_NOT_VALID"`) {
		t.Errorf("toast missing error code:\n%s", res.HTML)
	}
	if !res.HTMLContains(`value=""`) {
		t.Errorf("field not cleared:\n%s", res.HTML)
	}
	if tok, _ := c.Token("w1"); tok != "" {
		t.Errorf("Token() = %q", tok)
	}
}

func TestCaptchaEventErrors(t *testing.T) {
	tests := []struct {
		name    string
		prepare []string
		event   string
		detail  string
		status  int
	}{
		{"unknown event", nil, "captchaExploded", "", http.StatusBadRequest},
		{"solved without token", nil, "captchaSolved", "null", http.StatusConflict},
		{"start while solved", []string{"captchaSolved"}, "captchaStarted", "", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestCaptcha(t)
			props := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "abc"}}
			mountTestWidget(t, c, props)
			for _, ev := range tt.prepare {
				if _, err := TestEvent(c, c.EventURL(props), ev, `"tok"`); err != nil {
					t.Fatal(err)
				}
			}
			res, err := TestEvent(c, c.EventURL(props), tt.event, tt.detail)
			if err != nil {
				t.Fatal(err)
			}
			if !res.HasStatus(tt.status) {
				t.Errorf("status = %d, want %d", res.StatusCode, tt.status)
			}
			if len(res.TriggeredEvents) != 0 {
				t.Errorf("events = %v", res.TriggeredEvents)
			}
		})
	}
}

func TestCaptchaRequests(t *testing.T) {
	c, _, _ := newTestCaptcha(t)
	props := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "abc"}}
	mountTestWidget(t, c, props)

	tests := []struct {
		name   string
		method string
		url    string
		status int
	}{
		{"refresh", http.MethodGet, c.RefreshURL(props), http.StatusOK},
		{"missing props", http.MethodGet, c.Prefix() + "/", http.StatusBadRequest},
		{"tampered props", http.MethodGet, c.Prefix() + "/?p=garbage", http.StatusBadRequest},
		{"post to refresh", http.MethodPost, c.RefreshURL(props), http.StatusMethodNotAllowed},
		{"get event", http.MethodGet, c.EventURL(props), http.StatusMethodNotAllowed},
		{"unknown action", http.MethodPost, strings.Replace(c.EventURL(props), "/event?", "/nope?", 1), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := TestAction(c, tt.url, tt.method, nil)
			if err != nil {
				t.Fatal(err)
			}
			if !res.HasStatus(tt.status) {
				t.Errorf("status = %d, want %d: %s", res.StatusCode, tt.status, res.HTML)
			}
		})
	}
}

func TestCaptchaRefreshRemounts(t *testing.T) {
	c, rt, _ := newTestCaptcha(t)
	props := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "abc"}}
	mountTestWidget(t, c, props)
	if _, err := TestEvent(c, c.EventURL(props), "captchaSolved", `"tok"`); err != nil {
		t.Fatal(err)
	}

	changed := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "xyz"}}
	res, err := TestGet(c, c.RefreshURL(changed))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsOK() || !res.HTMLContains(`sitekey="xyz"`) {
		t.Fatalf("status = %d:\n%s", res.StatusCode, res.HTML)
	}
	if rt.Live() != 1 {
		t.Errorf("Live() = %d, want 1", rt.Live())
	}
	if attrs, _ := rt.Attributes("w1"); attrs[AttrSitekey] != "xyz" {
		t.Errorf("runtime attrs = %v", attrs)
	}
	if tok, _ := c.Token("w1"); tok != "" {
		t.Errorf("token survived remount: %q", tok)
	}

	// The new instance starts normally.
	res, err = TestEvent(c, c.EventURL(changed), "captchaStarted", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasEvent("captcha:started") {
		t.Errorf("events = %v (status %d)", res.TriggeredEvents, res.StatusCode)
	}
}

func TestCaptchaCosmeticRefreshKeepsToken(t *testing.T) {
	c, rt, _ := newTestCaptcha(t)
	props := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "abc"}}
	mountTestWidget(t, c, props)
	if _, err := TestEvent(c, c.EventURL(props), "captchaSolved", `"tok"`); err != nil {
		t.Fatal(err)
	}

	dark := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "abc", Theme: ThemeDark}}
	res, err := TestGet(c, c.RefreshURL(dark))
	if err != nil {
		t.Fatal(err)
	}
	if !res.HTMLContainsAll(`theme="dark"`, `value="tok"`, `data-state="solved"`) {
		t.Errorf("unexpected HTML:\n%s", res.HTML)
	}
	if attrs, _ := rt.Attributes("w1"); attrs[AttrTheme] != "dark" {
		t.Errorf("runtime attrs = %v", attrs)
	}
}

func TestCaptchaThroughRegistry(t *testing.T) {
	c, _, reg := newTestCaptcha(t)
	props := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "abc"}}
	mountTestWidget(t, c, props)
	handler := reg.Handler()

	post := func(htmx bool) *httptest.ResponseRecorder {
		form := url.Values{"type": {"captchaStarted"}}
		req := httptest.NewRequest(http.MethodPost, c.EventURL(props), strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if htmx {
			req.Header.Set("HX-Request", "true")
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := post(false); rec.Code != http.StatusForbidden {
		t.Errorf("non-htmx POST status = %d, want 403", rec.Code)
	}
	rec := post(true)
	if rec.Code != http.StatusOK {
		t.Fatalf("htmx POST status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("HX-Trigger"), "captcha:started") {
		t.Errorf("HX-Trigger = %q", rec.Header().Get("HX-Trigger"))
	}

	req := httptest.NewRequest(http.MethodGet, c.RefreshURL(props), nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `data-state="started"`) {
		t.Errorf("GET status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCaptchaEncryptedProps(t *testing.T) {
	c, _, reg := newTestCaptcha(t, WithEncryptedProps())
	props := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "abc", BypassToken: "secret-bypass"}}
	res := mountTestWidget(t, c, props)
	if !c.IsSensitive() {
		t.Fatal("IsSensitive() = false")
	}
	if c.Encoder() == nil || c.Encoder() != reg.Encoder() {
		t.Fatal("component does not share the registry encoder")
	}

	u, err := url.Parse(c.EventURL(props))
	if err != nil {
		t.Fatal(err)
	}
	encoded := u.Query().Get("p")
	if strings.Contains(encoded, "secret-bypass") {
		t.Errorf("bypass token readable in event URL: %s", encoded)
	}
	var decoded CaptchaProps
	if err := reg.Encoder().Decode(encoded, true, &decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.WidgetID != "w1" || decoded.Config.BypassToken != "secret-bypass" {
		t.Errorf("decoded props = %+v", decoded)
	}
	if !res.HTMLContains(`bypass-token="secret-bypass"`) {
		t.Errorf("bypass token missing from widget attrs:\n%s", res.HTML)
	}

	ev, err := TestEvent(c, c.EventURL(props), "captchaSolved", `"tok"`)
	if err != nil {
		t.Fatal(err)
	}
	if !ev.IsOK() {
		t.Errorf("status = %d", ev.StatusCode)
	}
}

func TestCaptchaUnmount(t *testing.T) {
	c, rt, _ := newTestCaptcha(t)
	props := CaptchaProps{WidgetID: "w1", Config: Config{Sitekey: "abc"}}
	mountTestWidget(t, c, props)

	if err := c.Unmount("w1"); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if rt.Live() != 0 {
		t.Errorf("Live() = %d", rt.Live())
	}
	if _, ok := c.Token("w1"); ok {
		t.Error("token still available")
	}
	if err := c.Unmount("w1"); err != nil {
		t.Errorf("second Unmount: %v", err)
	}
}

func TestCaptchaWidgetAndDeferred(t *testing.T) {
	c, _, _ := newTestCaptcha(t)

	html := renderString(t, c.Widget(Config{Sitekey: "abc"}, templ.Raw(`<span>loading</span>`)))
	if !strings.Contains(html, `<div id="tc-`) || !strings.Contains(html, `<span>loading</span></trustcaptcha-component>`) {
		t.Errorf("Widget HTML:\n%s", html)
	}

	html = renderString(t, c.Deferred(Config{Sitekey: "abc"}, nil))
	if !strings.Contains(html, `hx-get="`+c.Prefix()+`/?p=`) || !strings.Contains(html, `hx-trigger="load"`) {
		t.Errorf("Deferred HTML:\n%s", html)
	}
}

func TestCaptchaPrefixesDiffer(t *testing.T) {
	a := NewCaptcha()
	b := NewCaptcha()
	defer a.Close()
	defer b.Close()
	if a.Prefix() == b.Prefix() {
		t.Errorf("prefix collision: %s", a.Prefix())
	}
	if !strings.HasPrefix(a.Prefix(), "/_c/captcha-") {
		t.Errorf("Prefix() = %q", a.Prefix())
	}
}

func TestCaptchaPropsEncoding(t *testing.T) {
	props := CaptchaProps{WidgetID: "w1", Config: Config{
		Sitekey:            "abc",
		Width:              WidthFull,
		Language:           "de",
		Theme:              ThemeMedia,
		Autostart:          Bool(false),
		License:            "lic",
		HideBranding:       true,
		Invisible:          true,
		InvisibleHint:      HintRightBottom,
		Mode:               ModeMinimal,
		TokenFieldName:     "captcha",
		CustomTranslations: TranslationsJSON(`[{"language":"de","boxStart":"Start"}]`),
		CustomDesign:       DesignJSON(`{"rounding":{"box":"8px"}}`),
		PrivacyURL:         "https://example.com/privacy",
		Class:              "c",
	}}

	enc, err := NewEncoder(testKey)
	if err != nil {
		t.Fatal(err)
	}
	for _, sensitive := range []bool{false, true} {
		encoded, err := enc.Encode(props, sensitive)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		var got CaptchaProps
		if err := enc.Decode(encoded, sensitive, &got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.WidgetID != "w1" || got.Config.Class != "c" || got.Config.Autostart == nil || *got.Config.Autostart {
			t.Errorf("decoded props = %+v", got)
		}

		want, err := Normalize(props.Config)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		have, err := Normalize(got.Config)
		if err != nil {
			t.Fatalf("Normalize decoded: %v", err)
		}
		if !reflect.DeepEqual(want.Attrs, have.Attrs) {
			t.Errorf("attrs differ after round trip:\n got %v\nwant %v", have.Attrs, want.Attrs)
		}
	}
}

func TestCaptchaHydrateRequiresID(t *testing.T) {
	c, _, _ := newTestCaptcha(t)
	props := CaptchaProps{Config: Config{Sitekey: "abc"}}
	if err := c.Hydrate(context.Background(), &props); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Hydrate() = %v", err)
	}
}

func TestParseDetail(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"", nil},
		{"null", nil},
		{`"tok"`, "tok"},
		{`{"token":"t","n":1}`, map[string]any{"token": "t", "n": "1"}},
		{"not json", "not json"},
		{"42", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := parseDetail(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseDetail(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}
