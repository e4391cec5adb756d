// Package hxcaptchaecho provides Echo framework integration for hxcaptcha.
//
// Mount the component routes onto an Echo instance or group:
//
//	e := echo.New()
//	reg := hxcaptchaecho.Mount(e)
//	captcha := hxcaptcha.NewCaptcha()
//	reg.Add(captcha)
//
// and guard form handlers with RequireToken:
//
//	e.POST("/signup", signup, hxcaptchaecho.RequireToken(hxcaptcha.DefaultTokenFieldName))
package hxcaptchaecho

import (
	"crypto/rand"
	"fmt"
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/pthm/hxcaptcha"
	"go.uber.org/zap"
)

// TokenContextKey is the echo.Context key RequireToken stores the token under.
const TokenContextKey = "hxcaptcha.token"

// Option configures the Mount and MountGroup functions.
type Option func(*options)

type options struct {
	key  []byte
	path string
}

// WithKey sets the props signing key for the registry.
// If not provided, a random key is generated (suitable for development only).
func WithKey(key []byte) Option {
	return func(o *options) {
		o.key = key
	}
}

// WithPath sets the URL path prefix for component routes.
// Defaults to "/_c/".
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// Mount creates a registry and mounts the component handler on an Echo instance.
func Mount(e *echo.Echo, opts ...Option) *hxcaptcha.Registry {
	reg, path := newRegistry(opts)
	e.Any(path+"*", echo.WrapHandler(reg.Handler()))
	return reg
}

// MountGroup creates a registry and mounts the component handler on an Echo
// group, so component routes share the group's middleware.
func MountGroup(g *echo.Group, opts ...Option) *hxcaptcha.Registry {
	reg, path := newRegistry(opts)
	g.Any(path+"*", echo.WrapHandler(reg.Handler()))
	return reg
}

func newRegistry(opts []Option) (*hxcaptcha.Registry, string) {
	o := &options{path: "/_c/"}
	for _, opt := range opts {
		opt(o)
	}

	key := o.key
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("hxcaptchaecho: failed to generate random key: %v", err))
		}
		hxcaptcha.Logger().Warn("using a random props key; widget URLs will not survive a restart")
	}
	return hxcaptcha.NewRegistry(key), o.path
}

// Render writes a templ component to the Echo response.
func Render(c echo.Context, component templ.Component) error {
	return hxcaptcha.Render(c.Response(), c.Request(), component)
}

// RequireToken rejects requests whose form carries no verification token in
// field. The token is stored on the context under TokenContextKey for the
// handler to verify with the captcha backend.
func RequireToken(field string) echo.MiddlewareFunc {
	if field == "" {
		field = hxcaptcha.DefaultTokenFieldName
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.FormValue(field)
			if token == "" {
				hxcaptcha.Logger().Debug("request without captcha token",
					zap.String("path", c.Path()),
					zap.String("field", field),
				)
				return echo.NewHTTPError(http.StatusBadRequest, "captcha not solved")
			}
			c.Set(TokenContextKey, token)
			return next(c)
		}
	}
}

// Token returns the token stored by RequireToken.
func Token(c echo.Context) string {
	s, _ := c.Get(TokenContextKey).(string)
	return s
}
