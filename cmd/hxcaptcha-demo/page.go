package main

import (
	"context"
	"html"
	"io"

	"github.com/a-h/templ"
	"github.com/pthm/hxcaptcha"
)

type pageAssets struct {
	htmxURL   string
	scriptURL string
}

func layout(assets pageAssets, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		head := `<!doctype html><html lang="en"><head><meta charset="utf-8"><title>hxcaptcha demo</title>`
		if assets.htmxURL != "" {
			head += `<script src="` + html.EscapeString(assets.htmxURL) + `"></script>`
		}
		if assets.scriptURL != "" {
			head += `<script type="module" src="` + html.EscapeString(assets.scriptURL) + `"></script>`
		}
		head += `</head><body>`
		if _, err := io.WriteString(w, head); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		if err := hxcaptcha.ToastContainer().Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func signupPage(assets pageAssets, widget templ.Component) templ.Component {
	return layout(assets, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<main><h1>Sign up</h1><form method="post" action="/submit">`+
			`<label>Email <input type="email" name="email" required></label>`); err != nil {
			return err
		}
		if err := widget.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `<button type="submit">Sign up</button></form></main>`)
		return err
	}))
}

func submittedPage(assets pageAssets) templ.Component {
	return layout(assets, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<main><h1>Thanks!</h1><p>Your submission carried a verification token.</p><a href="/">Back</a></main>`)
		return err
	}))
}

func loadingPlaceholder() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<span class="hxcaptcha-loading">Loading verification…</span>`)
		return err
	})
}
