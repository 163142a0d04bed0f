package custody

import (
	"sync"

	"github.com/cognitechbridge/ctb-session/internal/broker"
	"github.com/cognitechbridge/ctb-session/internal/tokencheck"
)

// EmailSignal holds the signed-in account email and notifies subscribers
// when it changes.
type EmailSignal struct {
	mu    sync.Mutex
	value string
	next  int
	subs  map[int]func(string)
}

// NewEmailSignal returns an empty signal.
func NewEmailSignal() *EmailSignal {
	return &EmailSignal{subs: make(map[int]func(string))}
}

// Get returns the current value.
func (s *EmailSignal) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.value
}

// Set stores v and, if it differs from the current value, calls every
// subscriber with it.
func (s *EmailSignal) Set(v string) {
	s.mu.Lock()
	if s.value == v {
		s.mu.Unlock()
		return
	}

	s.value = v

	subs := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Subscribe calls fn with the current value and again on every change until
// the returned cancel func is called.
func (s *EmailSignal) Subscribe(fn func(string)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	cur := s.value
	s.mu.Unlock()

	fn(cur)

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// OnTokenChange publishes the email claim of ts's ID token. Pass it as
// broker.Config.OnTokenChange.
func (s *EmailSignal) OnTokenChange(ts broker.TokenSet) {
	s.Set(tokencheck.Email(ts.IDToken))
}
