package slack

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"github.com/eldtechnologies/donut/internal/rounds"
)

var (
	// ErrBadSignature means the request was not signed with the signing secret.
	ErrBadSignature = errors.New("invalid slack signature")
	// ErrIgnored means the payload is valid but carries no did-you-meet answer.
	ErrIgnored = errors.New("interaction ignored")
	// ErrNoSigningSecret means no secret is configured, so nothing can verify.
	ErrNoSigningSecret = errors.New("slack signing secret not configured")
)

// Verify checks the v0 request signature over body. Requests older than
// five minutes are rejected, as is everything when signingSecret is empty.
func Verify(header http.Header, body []byte, signingSecret string) error {
	if signingSecret == "" {
		return fmt.Errorf("%w: %w", ErrBadSignature, ErrNoSigningSecret)
	}
	sv, err := slack.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if _, err := sv.Write(body); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// VerifyRequest reads and verifies the request body, then restores it so
// later handlers can parse the form.
func VerifyRequest(r *http.Request, signingSecret string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err := Verify(r.Header, body, signingSecret); err != nil {
		return nil, err
	}
	return body, nil
}

// ParseInteraction decodes a form-encoded interaction body into an
// outcome event. Anything other than a did-you-meet button press yields
// ErrIgnored.
func ParseInteraction(body []byte) (rounds.OutcomeEvent, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return rounds.OutcomeEvent{}, fmt.Errorf("parse form: %w", err)
	}
	raw := form.Get("payload")
	if raw == "" {
		return rounds.OutcomeEvent{}, errors.New("missing payload")
	}

	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(raw), &cb); err != nil {
		return rounds.OutcomeEvent{}, fmt.Errorf("decode payload: %w", err)
	}
	if cb.Type != slack.InteractionTypeBlockActions {
		return rounds.OutcomeEvent{}, ErrIgnored
	}

	for _, action := range cb.ActionCallback.BlockActions {
		var met bool
		switch action.ActionID {
		case ActionMetYes:
			met = true
		case ActionMetNo:
		default:
			continue
		}
		matchID, err := uuid.Parse(action.Value)
		if err != nil {
			return rounds.OutcomeEvent{}, fmt.Errorf("invalid match id %q: %w", action.Value, err)
		}
		return rounds.OutcomeEvent{MatchID: matchID, Met: met, ResponseURL: cb.ResponseURL}, nil
	}
	return rounds.OutcomeEvent{}, ErrIgnored
}
