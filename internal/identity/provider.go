package identity

import (
	"context"
	"sync"
	"time"
)

// ProviderSession is the opaque handle plus the profile attributes the
// external identity provider attaches to it. The core never depends on
// provider SDK types beyond this shape.
type ProviderSession struct {
	AccessToken string
	UserID      string
	Email       string
	Name        string
	Department  string
	Phone       string
}

// Profile carries registration attributes.
type Profile struct {
	Email      string
	Password   string
	Name       string
	Department string
	Phone      string
}

// Provider is the external identity boundary. Implementations return the
// normalized error taxonomy where it applies; anything else is treated as
// ErrProviderUnavailable by the adapter.
type Provider interface {
	// Authenticate exchanges credentials for a session.
	Authenticate(ctx context.Context, email, password string) (ProviderSession, error)
	// Register creates a pending account awaiting email verification.
	Register(ctx context.Context, profile Profile) error
	// ConfirmOTP completes verification and returns the first session.
	ConfirmOTP(ctx context.Context, email, code string) (ProviderSession, error)
	// ResendOTP issues a fresh verification code.
	ResendOTP(ctx context.Context, email string) error
}

// SessionEventType classifies a push-style session notification.
type SessionEventType string

const (
	SessionSignedIn  SessionEventType = "signed_in"
	SessionSignedOut SessionEventType = "signed_out"
	SessionExpired   SessionEventType = "expired"
)

// SessionEvent is delivered to subscribers on every session change, which
// is how reload/restore flows learn about the current session.
type SessionEvent struct {
	Type  SessionEventType
	Email string
	At    time.Time
}

// SessionEvents fan-outs session changes to all active subscribers.
type SessionEvents struct {
	mu   sync.RWMutex
	subs map[int]chan SessionEvent
	next int
}

// NewSessionEvents initialises an empty fan-out.
func NewSessionEvents() *SessionEvents {
	return &SessionEvents{subs: make(map[int]chan SessionEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *SessionEvents) Subscribe(ctx context.Context) <-chan SessionEvent {
	ch := make(chan SessionEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers the event to every subscriber, dropping it for any
// subscriber whose buffer is full.
func (s *SessionEvents) Publish(event SessionEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
