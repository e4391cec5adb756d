package hxcaptcha

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// encoderSetter is implemented by components embedding *Component[P].
type encoderSetter interface {
	SetEncoder(*Encoder)
}

// Registry manages component registration and routing.
type Registry struct {
	mu         sync.RWMutex
	mux        *http.ServeMux
	encoder    *Encoder
	components map[string]HXComponent

	// OnError is called when a component returns an error.
	// Customize this to handle errors appropriately for your application.
	OnError func(http.ResponseWriter, *http.Request, error)
}

// NewRegistry creates a new component registry with the given key, used to
// sign or encrypt props.
func NewRegistry(key []byte) *Registry {
	enc, err := NewEncoder(key)
	if err != nil {
		panic(fmt.Sprintf("hxcaptcha: failed to create encoder: %v", err))
	}

	return &Registry{
		mux:        http.NewServeMux(),
		encoder:    enc,
		components: make(map[string]HXComponent),
		OnError:    DefaultErrorHandler,
	}
}

// DefaultErrorHandler maps errors onto HTTP statuses.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		Logger().Error("component request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		Logger().Debug("component request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	http.Error(w, http.StatusText(status), status)
}

// ErrorStatus returns the HTTP status for err.
func ErrorStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsDecryptionError(err), errors.Is(err, ErrInvalidFormat), errors.Is(err, ErrUnknownEvent), IsConfigError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrUnmounted):
		return http.StatusGone
	}
	switch CodeOf(err) {
	case ErrorUnauthorized, ErrorSiteKeyNotValid, ErrorLicenseInvalid:
		return http.StatusForbidden
	case ErrorPaymentRequired:
		return http.StatusPaymentRequired
	case ErrorLocked:
		return http.StatusLocked
	case ErrorCaptchaNotAccessible, ErrorCommunicationFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Encoder returns the registry's encoder.
func (reg *Registry) Encoder() *Encoder {
	return reg.encoder
}

// Add registers components with the registry.
// Panics on a prefix collision.
func (reg *Registry) Add(components ...HXComponent) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, comp := range components {
		prefix := comp.HXPrefix()
		if _, exists := reg.components[prefix]; exists {
			panic(fmt.Sprintf("hxcaptcha: prefix collision for %q", prefix))
		}
		if es, ok := comp.(encoderSetter); ok {
			es.SetEncoder(reg.encoder)
		}
		if eh, ok := comp.(errorHandlerSetter); ok {
			eh.setErrorHandler(reg.handleError)
		}
		reg.components[prefix] = comp
		reg.mux.HandleFunc(prefix+"/", comp.HXServeHTTP)
	}
}

func (reg *Registry) handleError(w http.ResponseWriter, r *http.Request, err error) {
	reg.mu.RLock()
	onError := reg.OnError
	reg.mu.RUnlock()
	if onError == nil {
		onError = DefaultErrorHandler
	}
	onError(w, r, err)
}

// Handler returns the HTTP handler for component routes.
// Mount this at "/_c/" in your application.
func (reg *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CSRF protection: mutating methods require HX-Request header
		if r.Method != http.MethodGet && r.Method != http.MethodHead && !IsHTMX(r) {
			http.Error(w, "Forbidden: htmx request required", http.StatusForbidden)
			return
		}
		reg.mux.ServeHTTP(w, r)
	})
}

type errorHandlerSetter interface {
	setErrorHandler(func(http.ResponseWriter, *http.Request, error))
}
