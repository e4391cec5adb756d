// Package hxcaptcha embeds TrustCaptcha widgets into server-rendered pages
// using Go, Templ templates and HTMX.
//
// The browser runs the real widget (the trustcaptcha-component custom
// element). This package owns everything around it: it turns a declarative
// Config into the widget's attribute surface, mounts one widget per mount
// point, translates the widget's loosely typed DOM events into typed host
// callbacks, and keeps a hidden form field holding the verification token.
//
// # Configuration
//
// Config is the host-facing configuration. Only Sitekey is required.
// Normalize validates it and produces Attributes:
//
//	norm, err := hxcaptcha.Normalize(hxcaptcha.Config{
//	    Sitekey:            "b1d4f2a8-...",
//	    Theme:              hxcaptcha.ThemeDark,
//	    CustomTranslations: hxcaptcha.TranslationsJSON(`[{"language":"de","boxStart":"Los"}]`),
//	})
//
// Custom translations and designs accept either a JSON string or structured
// values; both collapse to the same canonical form. Options that need a
// license (HideBranding, Invisible, InvisibleHint, CustomDesign, PrivacyURL)
// are dropped when License is empty and listed in Normalized.Gated.
// Configurations can also be loaded from TOML with LoadConfig.
//
// # Errors
//
// Every failure reaching the host carries an ErrorCode from a closed set of
// thirteen values. Codes reported by the widget runtime are mapped onto it
// by MapNativeError; unrecognized codes become UNKNOWN_ERROR. Local
// failures wrap sentinels (ErrMalformedConfig, ErrMissingSitekey, ...) so
// errors.Is works alongside CodeOf.
//
// # Mounting
//
// A Controller mounts widgets on a Runtime and returns a Handle:
//
//	h, err := hxcaptcha.NewController(rt).Mount(ctx, "signup", cfg, hxcaptcha.Callbacks{
//	    OnCaptchaSolved: func(ev hxcaptcha.Event) { log.Println(ev.Token) },
//	})
//
// Handle.Update applies a new Config. Sitekey, mode, license or token field
// changes destroy the widget before a new one is created; cosmetic changes
// are applied in place when the widget supports it. Unmount is idempotent
// and turns any pending mount into a no-op.
//
// # Events and the token field
//
// The Bridge updates the TokenSink before invoking callbacks, so a solved
// callback reading the field sees the new token. Failed and reset events
// clear it. A panicking callback does not keep other callbacks from
// running.
//
// # HTMX component
//
// Captcha packages all of the above as an htmx component. Register it and
// render widgets from templates:
//
//	captcha := hxcaptcha.NewCaptcha(hxcaptcha.WithCallbacks(cb))
//	reg := hxcaptcha.NewRegistry(key)
//	reg.Add(captcha)
//	http.Handle("/_c/", reg.Handler())
//
//	templ signupForm() {
//	    <form method="post" action="/submit">
//	        @captcha.Widget(hxcaptcha.Config{Sitekey: sitekey})
//	    </form>
//	}
//
// The widget's DOM events are posted back with signed (or, with
// WithEncryptedProps, encrypted) props. The response swaps the hidden
// field out of band and announces captcha:started, captcha:solved,
// captcha:failed or captcha:reset through HX-Trigger, with the token or
// error as event data. Mutating requests require the HX-Request header.
//
// # Testing
//
// TestRender, TestEvent and TestGet exercise components without a server:
//
//	res, _ := hxcaptcha.TestEvent(captcha, captcha.EventURL(props), "captchaSolved", `"tok"`)
//	if !res.HasEvent("captcha:solved") {
//	    t.Fatal("expected captcha:solved")
//	}
package hxcaptcha
