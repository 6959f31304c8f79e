package rounds

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/donut/internal/models"
	"github.com/eldtechnologies/donut/internal/store"
)

type memStore struct {
	mu      sync.Mutex
	config  map[string]string
	users   map[string]*models.User
	avoid   []models.AvoidEntry
	rounds  []*models.Round
	matches []*models.Match

	createRoundErr error
	createMatchErr map[string]error // keyed by first participant
	setConvErr     error

	now       func() time.Time
	lastSince time.Time
}

func newMemStore() *memStore {
	return &memStore{
		config: map[string]string{},
		users:  map[string]*models.User{},
		now:    time.Now,
	}
}

func (m *memStore) GetConfig(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.config[key]
	return v, ok, nil
}

func (m *memStore) UpsertUser(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &models.User{ID: id, DisplayName: name, IsActive: true}
	return nil
}

func (m *memStore) DeactivateUsersExcept(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, u := range m.users {
		if u.IsActive && !slices.Contains(ids, id) {
			u.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetAvoidList(context.Context) ([]models.AvoidEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.avoid), nil
}

func (m *memStore) CreateRound(_ context.Context, date time.Time) (*models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createRoundErr != nil {
		return nil, m.createRoundErr
	}
	for _, r := range m.rounds {
		if r.RoundDate.Equal(date) {
			return nil, store.ErrConflict
		}
	}
	r := &models.Round{ID: uuid.New(), RoundDate: date, Status: models.RoundStatusActive, CreatedAt: m.now()}
	m.rounds = append(m.rounds, r)
	return r, nil
}

func (m *memStore) GetMostRecentRound(context.Context) (*models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rounds) == 0 {
		return nil, nil
	}
	r := *m.rounds[len(m.rounds)-1]
	return &r, nil
}

func (m *memStore) CreateMatch(_ context.Context, roundID uuid.UUID, ids []string) (*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createMatchErr[ids[0]]; err != nil {
		return nil, err
	}
	match := &models.Match{
		ID:             uuid.New(),
		RoundID:        roundID,
		ParticipantIDs: slices.Clone(ids),
		MetStatus:      models.MetStatusPending,
		CreatedAt:      m.now(),
	}
	m.matches = append(m.matches, match)
	c := *match
	return &c, nil
}

func (m *memStore) find(id uuid.UUID) *models.Match {
	for _, match := range m.matches {
		if match.ID == id {
			return match
		}
	}
	return nil
}

func (m *memStore) SetMatchConversation(_ context.Context, id uuid.UUID, conv string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setConvErr != nil {
		return m.setConvErr
	}
	match := m.find(id)
	if match == nil {
		return store.ErrNotFound
	}
	match.ConversationID = conv
	return nil
}

func (m *memStore) SetMatchStatus(_ context.Context, id uuid.UUID, status models.MetStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := m.find(id)
	if match == nil {
		return store.ErrNotFound
	}
	match.MetStatus = status
	return nil
}

func (m *memStore) GetMatchesForRound(_ context.Context, roundID uuid.UUID) ([]models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Match
	for _, match := range m.matches {
		if match.RoundID == roundID {
			out = append(out, *match)
		}
	}
	return out, nil
}

func (m *memStore) GetPriorPairings(_ context.Context, since time.Time) ([]models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSince = since
	var out []models.Match
	for _, match := range m.matches {
		if match.CreatedAt.After(since) {
			out = append(out, *match)
		}
	}
	return out, nil
}

// addRound seeds a round with the given date.
func (m *memStore) addRound(date time.Time) *models.Round {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &models.Round{ID: uuid.New(), RoundDate: models.DateOnly(date), Status: models.RoundStatusActive, CreatedAt: date}
	m.rounds = append(m.rounds, r)
	return r
}

// addMatch seeds a match in round r.
func (m *memStore) addMatch(r *models.Round, conv string, status models.MetStatus, ids ...string) *models.Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := &models.Match{ID: uuid.New(), RoundID: r.ID, ParticipantIDs: ids, ConversationID: conv, MetStatus: status, CreatedAt: r.CreatedAt}
	m.matches = append(m.matches, match)
	return match
}

type posted struct {
	conv   string
	text   string
	prompt *Prompt
}

type fakeGateway struct {
	mu        sync.Mutex
	opened    [][]string
	posts     []posted
	responses []string
	openErr   map[string]error // keyed by first user
	postErr   error
	respErr   error
}

func (g *fakeGateway) OpenConversation(_ context.Context, ids []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.openErr[ids[0]]; err != nil {
		return "", err
	}
	g.opened = append(g.opened, slices.Clone(ids))
	return "G-" + strings.Join(ids, "-"), nil
}

func (g *fakeGateway) PostMessage(_ context.Context, conv, text string, p *Prompt) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.postErr != nil {
		return g.postErr
	}
	g.posts = append(g.posts, posted{conv: conv, text: text, prompt: p})
	return nil
}

func (g *fakeGateway) Respond(_ context.Context, url, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.respErr != nil {
		return g.respErr
	}
	g.responses = append(g.responses, url+"|"+text)
	return nil
}

type fakeDirectory struct {
	members    []string
	bots       map[string]bool
	lookupErr  map[string]bool
	membersErr error
}

func (d *fakeDirectory) ChannelMembers(context.Context, string) ([]string, error) {
	if d.membersErr != nil {
		return nil, d.membersErr
	}
	return slices.Clone(d.members), nil
}

func (d *fakeDirectory) UserInfo(_ context.Context, id string) (*Member, error) {
	if d.lookupErr[id] {
		return nil, fmt.Errorf("user_not_found: %s", id)
	}
	return &Member{ID: id, DisplayName: strings.ToLower(id), IsBot: d.bots[id]}, nil
}

type fakeLocker struct {
	held       map[string]string
	acquireErr error
	released   int
}

func (l *fakeLocker) AcquireRoundLock(_ context.Context, date time.Time, owner string) (bool, error) {
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.held == nil {
		l.held = map[string]string{}
	}
	key := date.Format("2006-01-02")
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = owner
	return true, nil
}

func (l *fakeLocker) ReleaseRoundLock(_ context.Context, date time.Time, owner string) error {
	key := date.Format("2006-01-02")
	if l.held[key] == owner {
		delete(l.held, key)
		l.released++
	}
	return nil
}

var errBoom = errors.New("boom")

type harness struct {
	store *memStore
	gw    *fakeGateway
	dir   *fakeDirectory
	svc   *Service
}

func newHarness(members ...string) *harness {
	h := &harness{
		store: newMemStore(),
		gw:    &fakeGateway{},
		dir:   &fakeDirectory{members: members},
	}
	h.store.config[models.ConfigRoundChannelID] = "C123"
	h.svc = NewService(Deps{
		Store:     h.store,
		Gateway:   h.gw,
		Directory: h.dir,
		Logger:    zerolog.Nop(),
		Seed:      func() int64 { return 42 },
	}, Config{CallTimeout: time.Second, AnnounceConcurrency: 4})
	return h
}
