package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/donut/internal/rounds"
)

type fakeAPI struct {
	mu       sync.Mutex
	calls    map[string][]url.Values
	webhooks []map[string]any
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{calls: map[string][]url.Values{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/")
	w.Header().Set("Content-Type", "application/json")

	if method == "hook" {
		var msg map[string]any
		_ = json.NewDecoder(r.Body).Decode(&msg)
		f.mu.Lock()
		f.webhooks = append(f.webhooks, msg)
		f.mu.Unlock()
		w.Write([]byte("ok"))
		return
	}

	_ = r.ParseForm()
	f.mu.Lock()
	f.calls[method] = append(f.calls[method], r.Form)
	f.mu.Unlock()

	switch method {
	case "conversations.open":
		fmt.Fprint(w, `{"ok":true,"channel":{"id":"G123"}}`)
	case "chat.postMessage":
		fmt.Fprint(w, `{"ok":true,"channel":"G123","ts":"1.0"}`)
	case "conversations.members":
		if r.Form.Get("cursor") == "" {
			fmt.Fprint(w, `{"ok":true,"members":["U1","U2"],"response_metadata":{"next_cursor":"page2"}}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"members":["U3"],"response_metadata":{"next_cursor":""}}`)
	case "users.info":
		switch r.Form.Get("user") {
		case "UBOT":
			fmt.Fprint(w, `{"ok":true,"user":{"id":"UBOT","name":"bot","is_bot":true}}`)
		case "USLACKBOT":
			fmt.Fprint(w, `{"ok":true,"user":{"id":"USLACKBOT","name":"slackbot"}}`)
		case "UGONE":
			fmt.Fprint(w, `{"ok":false,"error":"user_not_found"}`)
		default:
			fmt.Fprintf(w, `{"ok":true,"user":{"id":%q,"name":"ana","real_name":"Ana Lopez","profile":{"display_name":""}}}`, r.Form.Get("user"))
		}
	default:
		fmt.Fprint(w, `{"ok":false,"error":"unknown_method"}`)
	}
}

func TestOpenConversation(t *testing.T) {
	f, srv := newFakeAPI(t)
	c := NewClient("xoxb-test", WithAPIURL(srv.URL))

	id, err := c.OpenConversation(context.Background(), []string{"U1", "U2", "U3"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if id != "G123" {
		t.Fatalf("expected G123, got %s", id)
	}
	if got := f.calls["conversations.open"][0].Get("users"); got != "U1,U2,U3" {
		t.Fatalf("expected users U1,U2,U3, got %q", got)
	}
}

func TestPostMessageWithPrompt(t *testing.T) {
	f, srv := newFakeAPI(t)
	c := NewClient("xoxb-test", WithAPIURL(srv.URL))
	matchID := uuid.New()

	err := c.PostMessage(context.Background(), "G123", rounds.ReminderFallback, &rounds.Prompt{MatchID: matchID, Text: rounds.ReminderQuestion})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	form := f.calls["chat.postMessage"][0]
	if form.Get("channel") != "G123" || form.Get("text") != rounds.ReminderFallback {
		t.Fatalf("unexpected form %v", form)
	}
	blocks := form.Get("blocks")
	for _, want := range []string{PromptBlockID, ActionMetYes, ActionMetNo, matchID.String()} {
		if !strings.Contains(blocks, want) {
			t.Fatalf("blocks missing %q: %s", want, blocks)
		}
	}
}

func TestPostMessagePlain(t *testing.T) {
	f, srv := newFakeAPI(t)
	c := NewClient("xoxb-test", WithAPIURL(srv.URL))

	if err := c.PostMessage(context.Background(), "G123", rounds.MatchIntro, nil); err != nil {
		t.Fatalf("post: %v", err)
	}
	if blocks := f.calls["chat.postMessage"][0].Get("blocks"); blocks != "" {
		t.Fatalf("expected no blocks, got %s", blocks)
	}
}

func TestRespondReplacesOriginal(t *testing.T) {
	f, srv := newFakeAPI(t)
	c := NewClient("xoxb-test", WithAPIURL(srv.URL))

	if err := c.Respond(context.Background(), srv.URL+"/hook", rounds.ResponseYes); err != nil {
		t.Fatalf("respond: %v", err)
	}
	msg := f.webhooks[0]
	if msg["text"] != rounds.ResponseYes || msg["replace_original"] != true {
		t.Fatalf("unexpected webhook %v", msg)
	}
}

func TestChannelMembersPaginates(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := NewClient("xoxb-test", WithAPIURL(srv.URL))

	members, err := c.ChannelMembers(context.Background(), "C1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if strings.Join(members, ",") != "U1,U2,U3" {
		t.Fatalf("expected U1,U2,U3, got %v", members)
	}
}

func TestUserInfo(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := NewClient("xoxb-test", WithAPIURL(srv.URL))
	ctx := context.Background()

	m, err := c.UserInfo(ctx, "U1")
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if m.IsBot || m.DisplayName != "Ana Lopez" {
		t.Fatalf("unexpected member %+v", m)
	}

	for _, id := range []string{"UBOT", "USLACKBOT"} {
		m, err := c.UserInfo(ctx, id)
		if err != nil {
			t.Fatalf("user info %s: %v", id, err)
		}
		if !m.IsBot {
			t.Fatalf("expected %s to be treated as a bot", id)
		}
	}

	if _, err := c.UserInfo(ctx, "UGONE"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	io.WriteString(mac, "v0:"+ts+":")
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func signedHeader(secret string, at time.Time, body []byte) http.Header {
	ts := strconv.FormatInt(at.Unix(), 10)
	h := http.Header{}
	h.Set("X-Slack-Request-Timestamp", ts)
	h.Set("X-Slack-Signature", sign(secret, ts, body))
	return h
}

func TestVerify(t *testing.T) {
	const secret = "shh"
	body := []byte("payload=%7B%7D")

	if err := Verify(signedHeader(secret, time.Now(), body), body, secret); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
	if err := Verify(signedHeader("other", time.Now(), body), body, secret); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected bad signature, got %v", err)
	}
	if err := Verify(signedHeader(secret, time.Now().Add(-10*time.Minute), body), body, secret); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected stale request rejected, got %v", err)
	}
	if err := Verify(http.Header{}, body, secret); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected missing headers rejected, got %v", err)
	}
	if err := Verify(signedHeader("", time.Now(), body), body, ""); !errors.Is(err, ErrNoSigningSecret) {
		t.Fatalf("expected empty secret to reject everything, got %v", err)
	}
}

func interactionBody(t *testing.T, payload map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return []byte(url.Values{"payload": {string(raw)}}.Encode())
}

func TestParseInteraction(t *testing.T) {
	matchID := uuid.New()
	body := interactionBody(t, map[string]any{
		"type":         "block_actions",
		"response_url": "https://hooks.slack.com/actions/1",
		"user":         map[string]any{"id": "U1"},
		"actions": []map[string]any{
			{"action_id": ActionMetNo, "block_id": PromptBlockID, "value": matchID.String(), "type": "button"},
		},
	})

	ev, err := ParseInteraction(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.MatchID != matchID || ev.Met || ev.ResponseURL != "https://hooks.slack.com/actions/1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestParseInteractionIgnoresOtherActions(t *testing.T) {
	body := interactionBody(t, map[string]any{
		"type":    "block_actions",
		"actions": []map[string]any{{"action_id": "something_else", "value": "x"}},
	})
	if _, err := ParseInteraction(body); !errors.Is(err, ErrIgnored) {
		t.Fatalf("expected ErrIgnored, got %v", err)
	}

	body = interactionBody(t, map[string]any{"type": "view_submission"})
	if _, err := ParseInteraction(body); !errors.Is(err, ErrIgnored) {
		t.Fatalf("expected ErrIgnored, got %v", err)
	}
}

func TestParseInteractionRejectsMalformed(t *testing.T) {
	if _, err := ParseInteraction([]byte("nothing=here")); err == nil {
		t.Fatal("expected error for missing payload")
	}
	if _, err := ParseInteraction([]byte("payload=not-json")); err == nil {
		t.Fatal("expected error for invalid json")
	}
	body := interactionBody(t, map[string]any{
		"type":    "block_actions",
		"actions": []map[string]any{{"action_id": ActionMetYes, "value": "not-a-uuid"}},
	})
	if _, err := ParseInteraction(body); err == nil || errors.Is(err, ErrIgnored) {
		t.Fatalf("expected invalid match id error, got %v", err)
	}
}
