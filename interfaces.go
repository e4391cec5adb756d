package hxcaptcha

import (
	"context"
	"net/http"

	"github.com/a-h/templ"
)

// Hydrater is implemented by components to rebuild server-side state from
// the serialized props carried in URLs. Called before any handler,
// including GET/render.
//
// For the Captcha component, hydration looks up the mounted widget for the
// props' widget ID and mounts (or updates) it when needed, so handlers
// always work with a live Handle.
type Hydrater[P any] interface {
	Hydrate(ctx context.Context, props *P) error
}

// Renderer is implemented by components to produce templ output.
//
// Render receives hydrated props and should be pure: it reads props and
// produces HTML without side effects.
type Renderer[P any] interface {
	Render(ctx context.Context, props P) templ.Component
}

// HXComponent lets the registry dispatch requests without reflection.
//
// HXPrefix returns the unique URL prefix for this component instance.
// HXServeHTTP handles all HTTP requests under that prefix.
type HXComponent interface {
	HXPrefix() string
	HXServeHTTP(w http.ResponseWriter, r *http.Request)
}
