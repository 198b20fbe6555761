package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JakeFAU/rayin-translation/internal/activity"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/logging"
	"github.com/JakeFAU/rayin-translation/internal/metrics"
)

// Provider is the subset of Client the Store depends on.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*oauth2.Token, error)
	RefreshSession(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	SignUp(ctx context.Context, email, password, username string) (*oauth2.Token, User, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (User, error)
}

// State is the resolved identity of a caller. The zero value is signed out.
type State struct {
	User         *User            `json:"user"`
	Profile      *library.Profile `json:"profile"`
	IsSuperAdmin bool             `json:"is_superadmin"`
}

// SignedIn reports whether the state carries a user.
func (s State) SignedIn() bool {
	return s.User != nil
}

// EventKind names an auth state transition.
type EventKind string

// Auth state transitions delivered to listeners.
const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// Event is delivered to OnAuthStateChange listeners.
type Event struct {
	Kind    EventKind
	State   State
	Session *oauth2.Token
}

// StoreConfig configures Store.
type StoreConfig struct {
	// PrincipalTTL bounds how long a resolved access token is trusted without
	// asking the provider again.
	PrincipalTTL time.Duration
}

// Store resolves callers and broadcasts auth state changes.
type Store struct {
	provider Provider
	profiles library.ProfileRepository
	emitter  activity.Emitter
	logger   *zap.Logger
	clock    library.Clock

	principals *ttlcache.Cache[string, State]

	mu        sync.RWMutex
	listeners map[int]func(Event)
	nextID    int
}

// NewStore builds a Store.
func NewStore(
	provider Provider,
	profiles library.ProfileRepository,
	clock library.Clock,
	emitter activity.Emitter,
	logger *zap.Logger,
	cfg StoreConfig,
) *Store {
	ttl := cfg.PrincipalTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if emitter == nil {
		emitter = activity.Nop{}
	}
	return &Store{
		provider: provider,
		profiles: profiles,
		emitter:  emitter,
		clock:    clock,
		logger:   logging.For(logger, logging.CategoryAuth),
		principals: ttlcache.New[string, State](
			ttlcache.WithTTL[string, State](ttl),
			ttlcache.WithDisableTouchOnHit[string, State](),
			ttlcache.WithCapacity[string, State](10000),
		),
		listeners: make(map[int]func(Event)),
	}
}

func tokenKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}

// CheckUser resolves the caller behind accessToken. An empty, expired or
// revoked token yields the signed-out state and no error.
func (s *Store) CheckUser(ctx context.Context, accessToken string) (State, error) {
	if accessToken == "" {
		return State{}, nil
	}
	key := tokenKey(accessToken)
	if item := s.principals.Get(key); item != nil {
		metrics.ObserveCache("principal", "hit")
		return item.Value(), nil
	}
	metrics.ObserveCache("principal", "miss")

	user, err := s.provider.GetUser(ctx, accessToken)
	if err != nil {
		if errors.Is(err, library.ErrUnauthorized) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("check user: %w", err)
	}
	state := s.resolve(ctx, user)
	s.principals.Set(key, state, ttlcache.DefaultTTL)
	return state, nil
}

// resolve attaches the profile. A missing or unreadable profile leaves the
// user signed in without admin rights.
func (s *Store) resolve(ctx context.Context, user User) State {
	state := State{User: &user}
	profile, err := s.profiles.GetProfile(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, library.ErrNotFound) {
			s.logger.Warn("profile lookup failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		return state
	}
	state.Profile = &profile
	state.IsSuperAdmin = profile.IsSuperAdmin()
	return state
}

// SignIn authenticates with email and password.
func (s *Store) SignIn(ctx context.Context, email, password string) (*oauth2.Token, State, error) {
	tok, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.record(EventSignedIn, err)
		return nil, State{}, err
	}
	state := s.stateFromSession(ctx, tok)
	s.notify(Event{Kind: EventSignedIn, State: state, Session: tok})
	s.record(EventSignedIn, nil)
	return tok, state, nil
}

// SignUp registers an account. When the provider returns a session the
// caller is signed in immediately.
func (s *Store) SignUp(ctx context.Context, email, password, username string) (*oauth2.Token, State, error) {
	if email == "" || password == "" {
		return nil, State{}, library.Invalid("email and password are required")
	}
	tok, user, err := s.provider.SignUp(ctx, email, password, username)
	if err != nil {
		s.record(EventSignedIn, err)
		return nil, State{}, err
	}
	if tok == nil {
		return nil, State{User: &user}, nil
	}
	state := s.stateFromSession(ctx, tok)
	s.notify(Event{Kind: EventSignedIn, State: state, Session: tok})
	s.record(EventSignedIn, nil)
	return tok, state, nil
}

// SignOut revokes the session and forgets the cached principal. Listeners
// are told the caller signed out even when the provider call fails.
func (s *Store) SignOut(ctx context.Context, accessToken string) error {
	if accessToken != "" {
		s.principals.Delete(tokenKey(accessToken))
	}
	var err error
	if accessToken != "" {
		err = s.provider.SignOut(ctx, accessToken)
	}
	s.notify(Event{Kind: EventSignedOut})
	s.record(EventSignedOut, err)
	return err
}

// Refresh exchanges a refresh token for a new session.
func (s *Store) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, State, error) {
	tok, err := s.provider.RefreshSession(ctx, refreshToken)
	if err != nil {
		s.record(EventTokenRefreshed, err)
		return nil, State{}, err
	}
	state := s.stateFromSession(ctx, tok)
	s.notify(Event{Kind: EventTokenRefreshed, State: state, Session: tok})
	s.record(EventTokenRefreshed, nil)
	return tok, state, nil
}

func (s *Store) stateFromSession(ctx context.Context, tok *oauth2.Token) State {
	user, ok := SessionUser(tok)
	if !ok {
		fetched, err := s.provider.GetUser(ctx, tok.AccessToken)
		if err != nil {
			s.logger.Warn("session without user", zap.Error(err))
			return State{}
		}
		user = fetched
	}
	state := s.resolve(ctx, user)
	s.principals.Set(tokenKey(tok.AccessToken), state, ttlcache.DefaultTTL)
	return state
}

// OnAuthStateChange registers fn for every subsequent transition and returns
// a func that unregisters it.
func (s *Store) OnAuthStateChange(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(evt Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(evt)
	}
}

func (s *Store) record(kind EventKind, err error) {
	label := string(kind)
	evt := activity.Event{Kind: activity.KindAuth, TS: s.now(), Note: label}
	if err != nil {
		label += "_FAILED"
		evt.Failed = true
		evt.Note = fmt.Sprintf("%s: %v", kind, err)
	}
	metrics.ObserveAuthEvent(label)
	s.emitter.Emit(evt)
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

type ctxKey struct{}

// WithState returns a context carrying the caller's state.
func WithState(ctx context.Context, state State) context.Context {
	return context.WithValue(ctx, ctxKey{}, state)
}

// FromContext returns the state stored by WithState.
func FromContext(ctx context.Context) State {
	state, _ := ctx.Value(ctxKey{}).(State)
	return state
}
