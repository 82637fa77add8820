package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/civicsquare/server/internal/audit"
	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/config"
	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/civicsquare/server/internal/domain/registration"
	"github.com/civicsquare/server/internal/domain/users"
	"github.com/civicsquare/server/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// In-memory repositories backing the handler tests. They implement the same
// domain contracts as the postgres layer, including the sentinel errors.

type memUsers struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]users.User
	joined map[uuid.UUID][]catalog.Event
}

func newMemUsers() *memUsers {
	return &memUsers{
		byID:   make(map[uuid.UUID]users.User),
		joined: make(map[uuid.UUID][]catalog.Event),
	}
}

func (m *memUsers) Create(_ context.Context, params users.CreateParams) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, params.Email) {
			return users.User{}, users.ErrEmailTaken
		}
	}
	user := users.User{
		ID:           uuid.New(),
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Role:         params.Role,
		IsActive:     params.IsActive,
		CreatedAt:    time.Now(),
	}
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return &u, nil
	}
	return nil, users.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, users.ErrNotFound
}

func (m *memUsers) Activate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	u.IsActive = true
	m.byID[id] = u
	return nil
}

func (m *memUsers) JoinedEvents(_ context.Context, userID uuid.UUID) ([]catalog.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined[userID], nil
}

type memSessions struct {
	mu     sync.Mutex
	byHash map[string]users.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byHash: make(map[string]users.Session)}
}

func (m *memSessions) Create(_ context.Context, session users.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash[session.TokenHash] = session
	return nil
}

func (m *memSessions) GetByTokenHash(_ context.Context, tokenHash string) (*users.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.byHash[tokenHash]
	if !ok || session.ExpiresAt.Before(time.Now()) {
		return nil, users.ErrSessionNotFound
	}
	return &session, nil
}

func (m *memSessions) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHash[tokenHash]; !ok {
		return users.ErrSessionNotFound
	}
	delete(m.byHash, tokenHash)
	return nil
}

func (m *memSessions) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, session := range m.byHash {
		if session.ExpiresAt.Before(time.Now()) {
			delete(m.byHash, hash)
			n++
		}
	}
	return n, nil
}

type memCategories struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]catalog.Category
}

func newMemCategories() *memCategories {
	return &memCategories{nextID: 1, byID: make(map[int64]catalog.Category)}
}

func (m *memCategories) Create(_ context.Context, name string) (catalog.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if strings.EqualFold(c.Name, name) {
			return catalog.Category{}, catalog.ErrDuplicate
		}
	}
	category := catalog.Category{ID: m.nextID, Name: name}
	m.byID[category.ID] = category
	m.nextID++
	return category, nil
}

func (m *memCategories) List(_ context.Context) ([]catalog.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.Category, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memCategories) GetByID(_ context.Context, id int64) (*catalog.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byID[id]; ok {
		return &c, nil
	}
	return nil, catalog.ErrNotFound
}

func (m *memCategories) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memEvents struct {
	mu           sync.Mutex
	categories   *memCategories
	byPublicID   map[string]catalog.Event
	participants map[uuid.UUID]map[uuid.UUID]bool
}

func newMemEvents(categories *memCategories) *memEvents {
	return &memEvents{
		categories:   categories,
		byPublicID:   make(map[string]catalog.Event),
		participants: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (m *memEvents) Create(ctx context.Context, params catalog.EventCreateParams) (catalog.Event, error) {
	category, err := m.categories.GetByID(ctx, params.CategoryID)
	if err != nil {
		return catalog.Event{}, catalog.ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	event := catalog.Event{
		ID:                   uuid.New(),
		PublicID:             params.PublicID,
		Name:                 params.Name,
		Host:                 params.Host,
		Description:          params.Description,
		ImageURL:             params.ImageURL,
		EventDate:            params.EventDate,
		RegistrationDeadline: params.RegistrationDeadline,
		Location:             params.Location,
		Capacity:             params.Capacity,
		Status:               params.Status,
		CategoryID:           params.CategoryID,
		CategoryName:         category.Name,
		CreatedAt:            time.Now(),
	}
	m.byPublicID[event.PublicID] = event
	return event, nil
}

func (m *memEvents) GetByPublicID(_ context.Context, publicID string) (*catalog.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event, ok := m.byPublicID[publicID]; ok {
		event.ParticipantCount = len(m.participants[event.ID])
		return &event, nil
	}
	return nil, catalog.ErrNotFound
}

func (m *memEvents) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for publicID, event := range m.byPublicID {
		if event.ID == id {
			delete(m.byPublicID, publicID)
			return nil
		}
	}
	return catalog.ErrNotFound
}

func (m *memEvents) List(_ context.Context, filters catalog.Filters, limit, offset int) (catalog.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]catalog.Event, 0, len(m.byPublicID))
	for _, event := range m.byPublicID {
		if filters.Name != "" && !strings.Contains(strings.ToLower(event.Name), strings.ToLower(filters.Name)) {
			continue
		}
		if filters.Location != "" && !strings.Contains(strings.ToLower(event.Location), strings.ToLower(filters.Location)) {
			continue
		}
		event.ParticipantCount = len(m.participants[event.ID])
		matched = append(matched, event)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].PublicID < matched[j].PublicID })

	total := len(matched)
	if offset >= len(matched) {
		matched = nil
	} else {
		matched = matched[offset:]
		if limit < len(matched) {
			matched = matched[:limit]
		}
	}
	return catalog.ListResult{Events: matched, Total: total}, nil
}

func (m *memEvents) GetForUpdate(ctx context.Context, publicID string) (*catalog.Event, error) {
	return m.GetByPublicID(ctx, publicID)
}

func (m *memEvents) IsParticipant(_ context.Context, eventID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participants[eventID][userID], nil
}

func (m *memEvents) CountParticipants(_ context.Context, eventID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.participants[eventID]), nil
}

func (m *memEvents) AddParticipant(_ context.Context, eventID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.participants[eventID] == nil {
		m.participants[eventID] = make(map[uuid.UUID]bool)
	}
	if m.participants[eventID][userID] {
		return catalog.ErrDuplicate
	}
	m.participants[eventID][userID] = true
	return nil
}

type memStore struct {
	users      *memUsers
	sessions   *memSessions
	categories *memCategories
	events     *memEvents
}

func (s *memStore) Users() users.Repository               { return s.users }
func (s *memStore) Sessions() users.SessionRepository     { return s.sessions }
func (s *memStore) Categories() catalog.CategoryRepository { return s.categories }
func (s *memStore) Events() catalog.EventRepository       { return s.events }
func (s *memStore) APIKeys() storage.APIKeyRepository     { return nil }
func (s *memStore) Tokens() storage.TokenRepository       { return nil }

func (s *memStore) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	return fn(ctx, s)
}

type noopMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *noopMailer) EnqueueConfirmation(_ context.Context, _ uuid.UUID, email, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

// memRevocations satisfies auth.RevocationStore for the token endpoints.
type memRevocations struct {
	mu      sync.Mutex
	revoked map[uuid.UUID]bool
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: make(map[uuid.UUID]bool)}
}

func (m *memRevocations) IsRevoked(_ context.Context, jti uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

func (m *memRevocations) Revoke(_ context.Context, jti uuid.UUID, _ uuid.UUID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

// fixture bundles a full service stack over the in-memory repositories.
type fixture struct {
	store    *memStore
	mailer   *noopMailer
	users    *users.Service
	catalog  *catalog.Service
	registry *registration.Service
	session  config.SessionConfig
}

func newFixture() *fixture {
	logger := zerolog.Nop()
	auditLog := audit.NewLogger(logger)
	store := &memStore{
		users:      newMemUsers(),
		sessions:   newMemSessions(),
		categories: newMemCategories(),
	}
	store.events = newMemEvents(store.categories)

	mailer := &noopMailer{}
	sessionCfg := config.SessionConfig{
		TTL:        time.Hour,
		CookieName: "cs_session",
		Secure:     false,
	}

	return &fixture{
		store:    store,
		mailer:   mailer,
		users:    users.NewService(store.users, store.sessions, mailer, auditLog, "http://localhost:8080", sessionCfg.TTL, logger),
		catalog:  catalog.NewService(store.categories, store.events, auditLog, logger),
		registry: registration.NewService(store, logger),
		session:  sessionCfg,
	}
}

// activeUser creates a confirmed account and returns it with its password.
func (f *fixture) activeUser(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, email string) (users.User, string) {
	t.Helper()
	const password = "sup3r-secret-pw"
	user, err := f.users.Register(context.Background(), users.RegisterParams{
		Email:     email,
		Password:  password,
		FirstName: "Alex",
		LastName:  "Rivera",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.users.ConfirmEmail(context.Background(), user.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	user.IsActive = true
	return user, password
}

func registerFixtureParams(email string) users.RegisterParams {
	return users.RegisterParams{
		Email:     email,
		Password:  "sup3r-secret-pw",
		FirstName: "Alex",
		LastName:  "Rivera",
	}
}

var _ auth.RevocationStore = (*memRevocations)(nil)
var _ storage.Repository = (*memStore)(nil)
