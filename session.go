package hxcaptcha

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

// DefaultSessionTTL is how long an idle widget handle is kept.
const DefaultSessionTTL = 30 * time.Minute

// sessionStore keeps mounted handles by widget ID. Idle handles expire and
// are unmounted.
type sessionStore struct {
	mu     sync.Mutex
	cache  *ttlcache.Cache[string, *Handle]
	closed bool
}

func newSessionStore(ttl time.Duration) *sessionStore {
	cache := ttlcache.New[string, *Handle](
		ttlcache.WithTTL[string, *Handle](ttl),
	)
	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Handle]) {
		if err := item.Value().Unmount(); err != nil {
			Logger().Warn("captcha session unmount failed", zap.String("widget", item.Key()), zap.Error(err))
			return
		}
		Logger().Debug("captcha session evicted", zap.String("widget", item.Key()), zap.Int("reason", int(reason)))
	})
	go cache.Start()
	return &sessionStore{cache: cache}
}

// acquire returns the live handle for id, mounting a new one when there is
// none. Lookups extend the handle's lifetime.
func (s *sessionStore) acquire(id string, mount func() *Handle) (h *Handle, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item := s.cache.Get(id); item != nil && item.Value().State() != StateDestroyed {
		return item.Value(), false
	}
	h = mount()
	s.cache.Set(id, h, ttlcache.DefaultTTL)
	return h, true
}

func (s *sessionStore) get(id string) (*Handle, bool) {
	item := s.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// remove unmounts and forgets id.
func (s *sessionStore) remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.get(id)
	if !ok {
		return nil
	}
	s.cache.Delete(id)
	return h.Unmount()
}

func (s *sessionStore) len() int {
	return s.cache.Len()
}

// close unmounts every handle and stops the expiry loop. Later calls are
// no-ops.
func (s *sessionStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, item := range s.cache.Items() {
		if err := item.Value().Unmount(); err != nil {
			Logger().Warn("captcha session unmount failed", zap.String("widget", id), zap.Error(err))
		}
	}
	s.cache.DeleteAll()
	s.cache.Stop()
}
