package donut

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/donut/internal/api"
	"github.com/eldtechnologies/donut/internal/rounds"
	"github.com/eldtechnologies/donut/internal/store"
)

type nopGateway struct{}

func (nopGateway) OpenConversation(context.Context, []string) (string, error) { return "G1", nil }
func (nopGateway) PostMessage(context.Context, string, string, *rounds.Prompt) error {
	return nil
}
func (nopGateway) Respond(context.Context, string, string) error { return nil }

type nopDirectory struct{}

func (nopDirectory) ChannelMembers(context.Context, string) ([]string, error) {
	return []string{"U1", "U2"}, nil
}

func (nopDirectory) UserInfo(_ context.Context, id string) (*rounds.Member, error) {
	return &rounds.Member{ID: id}, nil
}

func newServer(t *testing.T) (*httptest.Server, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "donut.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	svc := rounds.NewService(rounds.Deps{
		Store:     db,
		Gateway:   nopGateway{},
		Directory: nopDirectory{},
		Logger:    zerolog.Nop(),
	}, rounds.Config{CallTimeout: time.Second})

	srv := httptest.NewServer(api.NewRouter(api.Options{
		Logger:      zerolog.Nop(),
		Store:       db,
		Rounds:      svc,
		OperatorKey: pub,
	}))
	t.Cleanup(srv.Close)
	return srv, priv
}

func TestClientRoundLifecycle(t *testing.T) {
	srv, priv := newServer(t)
	c := NewClient(srv.URL, priv)
	ctx := context.Background()

	out, err := c.StartRound(ctx)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}
	if out.Status != rounds.StatusMisconfigured {
		t.Fatalf("expected misconfigured before channel is set, got %s", out.Status)
	}

	if err := c.SetChannel(ctx, "C0123"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	if err := c.SetInterval(ctx, 14); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	cfg, err := c.GetConfig(ctx)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.RoundChannelID != "C0123" || cfg.PairingIntervalDays != 14 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	out, err = c.StartRound(ctx)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}
	if out.Status != rounds.StatusCreated || out.Groups.Count != 1 {
		t.Fatalf("expected created round, got %+v", out)
	}

	rem, err := c.SendReminders(ctx)
	if err != nil {
		t.Fatalf("remind: %v", err)
	}
	if rem.PendingCount != 1 || rem.Sent != 1 {
		t.Fatalf("unexpected reminders %+v", rem)
	}

	sum, err := c.RoundSummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Counts.Total != 1 || sum.Counts.Pending != 1 {
		t.Fatalf("unexpected summary %+v", sum.Counts)
	}
}

func TestClientRejectedWithoutKey(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL, nil)

	_, err := c.StartRound(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestClientRejectedWithWrongKey(t *testing.T) {
	srv, _ := newServer(t)
	_, other, _ := ed25519.GenerateKey(rand.Reader)
	c := NewClient(srv.URL, other)

	if err := c.SetInterval(context.Background(), 3); err == nil {
		t.Fatal("expected error for wrong key")
	}
}

func TestClientHealth(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL, nil)

	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %+v", resp)
	}
}
