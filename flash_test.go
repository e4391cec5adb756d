package hxcaptcha

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRenderFlashesOOB(t *testing.T) {
	tests := []struct {
		name     string
		flashes  []Flash
		want     []string
		deny     []string
		wantNone bool
	}{
		{name: "empty", wantNone: true},
		{
			name:    "single",
			flashes: []Flash{{Level: FlashError, Message: "Verification failed"}},
			want: []string{
				`<div id="toasts" hx-swap-oob="beforeend">`,
				`class="toast toast-error"`,
				`role="alert"`,
				`>Verification failed</div>`,
			},
		},
		{
			name:    "failure carries widget and code",
			flashes: []Flash{failureFlash("signup", &CaptchaError{Code: ErrorLocked})},
			want: []string{
				`data-widget="signup"`,
				`data-error-code="LOCKED"`,
				`>Verification failed (LOCKED)</div>`,
			},
			deny: []string{"data-auto-dismiss"},
		},
		{
			name:    "info auto dismisses",
			flashes: []Flash{{Level: FlashInfo, Message: "hi"}},
			want:    []string{`data-auto-dismiss="5000"`},
			deny:    []string{"data-widget", "data-error-code"},
		},
		{
			name:    "multiple keep order",
			flashes: []Flash{{Level: FlashError, Message: "first"}, {Level: FlashInfo, Message: "second"}},
			want:    []string{"first</div><div", "toast-info"},
		},
		{
			name:    "escapes message and level",
			flashes: []Flash{{Level: `x"y`, Message: `<script>alert(1)</script>`}},
			want:    []string{"&lt;script&gt;", `toast-x&#34;y`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderFlashesOOB(tt.flashes)
			if tt.wantNone {
				if got != "" {
					t.Errorf("RenderFlashesOOB() = %q, want empty", got)
				}
				return
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output missing %q:\n%s", w, got)
				}
			}
			for _, d := range tt.deny {
				if strings.Contains(got, d) {
					t.Errorf("output has %q:\n%s", d, got)
				}
			}
			if strings.Contains(got, "<script>") {
				t.Error("unescaped script tag")
			}
		})
	}
}

func TestFlashesRoundTripThroughTestHelpers(t *testing.T) {
	want := Flash{Level: FlashError, Message: `Code "LOCKED" & more`, Widget: "w<1>", Code: ErrorLocked}
	html := RenderFlashesOOB([]Flash{want})
	flashes := parseFlashesFromHTML(html)
	if len(flashes) != 1 {
		t.Fatalf("parsed %d flashes, want 1", len(flashes))
	}
	if flashes[0] != want {
		t.Errorf("parsed %+v", flashes[0])
	}
}

func TestToastContainer(t *testing.T) {
	var buf bytes.Buffer
	if err := ToastContainer().Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `id="toasts"`) {
		t.Errorf("container = %s", buf.String())
	}
}
