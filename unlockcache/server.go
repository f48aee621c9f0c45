package unlockcache

import (
	"context"
	"sync"
	"time"

	"github.com/ghost-auth/vaultcore/internal/corelog"
)

var log = corelog.New("unlockcache")

// DefaultTTL is how long a cached master key remains available after
// login before it is evicted, absent an explicit logout.
const DefaultTTL = 1 * time.Minute

// safeMap is a mutex-guarded map, adapted from vaultdaemon's generic
// helper of the same shape.
type safeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func newSafeMap[K comparable, V any]() *safeMap[K, V] {
	return &safeMap[K, V]{m: make(map[K]V)}
}

func (s *safeMap[K, V]) store(k K, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[k] = v
}

func (s *safeMap[K, V]) load(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.m[k]

	return v, ok
}

func (s *safeMap[K, V]) delete(k K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, k)
}

// session caches one vault path's master key until its TTL expires or
// it is explicitly logged out.
type session struct {
	key  []byte
	done chan struct{}
}

// Server implements [sessionServer], caching one master key per vault
// data directory path.
type Server struct {
	ttl      time.Duration
	sessions *safeMap[string, *session]
}

// NewServer constructs a Server whose cached keys expire after ttl
// (use [DefaultTTL] absent a reason to change it).
func NewServer(ttl time.Duration) *Server {
	return &Server{ttl: ttl, sessions: newSafeMap[string, *session]()}
}

func (s *Server) login(_ context.Context, path string, key []byte) error {
	if existing, ok := s.sessions.load(path); ok {
		close(existing.done)
	}

	done := make(chan struct{})
	cached := append([]byte(nil), key...)

	sess := &session{key: cached, done: done}
	s.sessions.store(path, sess)

	go func() {
		t := time.NewTimer(s.ttl)
		defer t.Stop()

		select {
		case <-t.C:
			s.sessions.delete(path)
			zero(cached)
		case <-done:
			zero(cached)
		}
	}()

	return nil
}

func (s *Server) logout(_ context.Context, path string) error {
	if sess, ok := s.sessions.load(path); ok {
		s.sessions.delete(path)
		close(sess.done)
	}

	return nil
}

func (s *Server) getSession(_ context.Context, path string) ([]byte, bool, error) {
	sess, ok := s.sessions.load(path)
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), sess.key...), true, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
