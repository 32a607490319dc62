package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dkazlouski/obedbot/internal/models"
)

// cardAction is what the renderer does to reconcile the existing card
// with the desired content.
type cardAction int

const (
	actionSend    cardAction = iota // no live card yet, send fresh
	actionEdit                      // same kind, edit in place
	actionReplace                   // kind changes, delete and resend
)

// renderPlan is the (existing kind × desired kind) decision table.
var renderPlan = map[string]map[string]cardAction{
	models.CardNone:  {models.CardPlain: actionSend, models.CardPhoto: actionSend},
	models.CardPlain: {models.CardPlain: actionEdit, models.CardPhoto: actionReplace},
	models.CardPhoto: {models.CardPlain: actionReplace, models.CardPhoto: actionEdit},
}

// CardContent is the desired state of the card for the current step.
type CardContent struct {
	Text     string
	PhotoURL string
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

func (c CardContent) kind() string {
	if c.PhotoURL != "" {
		return models.CardPhoto
	}
	return models.CardPlain
}

// CardState identifies the live card message.
type CardState struct {
	MessageID int
	Kind      string
}

// CardRenderer keeps a single evolving chat message consistent across
// step transitions, choosing edit-in-place versus delete-and-resend from
// the decision table, with a URL → bytes → plain-text fallback chain for
// photos. Every render leaves exactly one live message.
type CardRenderer struct {
	transport ChatTransport
	fetch     func(ctx context.Context, url string) ([]byte, error)
}

// NewCardRenderer creates a renderer over the given transport.
func NewCardRenderer(transport ChatTransport) *CardRenderer {
	client := &http.Client{Timeout: 20 * time.Second}
	return &CardRenderer{
		transport: transport,
		fetch: func(ctx context.Context, url string) ([]byte, error) {
			return fetchImage(ctx, client, url)
		},
	}
}

var driveLinkRe = regexp.MustCompile(`drive\.google\.com/(?:file/d/|uc\?id=)([^/&#?]+)`)

// NormalizePhotoURL rewrites Drive share links to their direct-download
// form; anything else passes through unchanged.
func NormalizePhotoURL(url string) string {
	if m := driveLinkRe.FindStringSubmatch(url); m != nil {
		return "https://drive.google.com/uc?export=download&id=" + m[1]
	}
	return url
}

func fetchImage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching image", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Render reconciles the card with the desired content and returns the new
// card state.
func (r *CardRenderer) Render(ctx context.Context, chatID int64, prev CardState, content CardContent) (CardState, error) {
	existing := prev.Kind
	if prev.MessageID == 0 {
		existing = models.CardNone
	}

	switch renderPlan[existing][content.kind()] {
	case actionEdit:
		if content.kind() == models.CardPlain {
			err := r.transport.EditText(chatID, prev.MessageID, content.Text, content.Keyboard)
			switch {
			case err == nil, errors.Is(err, ErrNotModified):
				return prev, nil
			case errors.Is(err, ErrEditRejected):
				return r.replace(ctx, chatID, prev, content)
			default:
				return prev, err
			}
		}
		if r.editPhoto(ctx, chatID, prev.MessageID, content) {
			return prev, nil
		}
		return r.replace(ctx, chatID, prev, content)

	case actionReplace:
		return r.replace(ctx, chatID, prev, content)

	default:
		return r.send(ctx, chatID, content)
	}
}

// replace deletes the existing card and sends a fresh one. A failed
// delete is ignored: the message may already be gone, and sending is the
// half that keeps the conversation alive.
func (r *CardRenderer) replace(ctx context.Context, chatID int64, prev CardState, content CardContent) (CardState, error) {
	if prev.MessageID != 0 {
		_ = r.transport.DeleteMessage(chatID, prev.MessageID)
	}
	return r.send(ctx, chatID, content)
}

// send delivers a fresh card. Photos go URL first, then raw bytes, then
// degrade to a plain message noting the image is unavailable.
func (r *CardRenderer) send(ctx context.Context, chatID int64, content CardContent) (CardState, error) {
	if content.kind() == models.CardPlain {
		id, err := r.transport.SendText(chatID, content.Text, content.Keyboard)
		if err != nil {
			return CardState{}, err
		}
		return CardState{MessageID: id, Kind: models.CardPlain}, nil
	}

	url := NormalizePhotoURL(content.PhotoURL)
	if id, err := r.transport.SendPhotoURL(chatID, url, content.Text, content.Keyboard); err == nil {
		return CardState{MessageID: id, Kind: models.CardPhoto}, nil
	}

	if data, err := r.fetch(ctx, url); err == nil {
		if id, err := r.transport.SendPhotoBytes(chatID, data, content.Text, content.Keyboard); err == nil {
			return CardState{MessageID: id, Kind: models.CardPhoto}, nil
		}
	}

	id, err := r.transport.SendText(chatID, content.Text+"\n(Фото недоступно по ссылке)", content.Keyboard)
	if err != nil {
		return CardState{}, err
	}
	return CardState{MessageID: id, Kind: models.CardPlain}, nil
}

// editPhoto tries to edit the media of an existing photo card, URL first
// and then raw bytes. Reports whether any attempt landed; a "not
// modified" refusal counts as landed.
func (r *CardRenderer) editPhoto(ctx context.Context, chatID int64, messageID int, content CardContent) bool {
	url := NormalizePhotoURL(content.PhotoURL)

	err := r.transport.EditMediaURL(chatID, messageID, url, content.Text, content.Keyboard)
	if err == nil || errors.Is(err, ErrNotModified) {
		return true
	}

	data, fetchErr := r.fetch(ctx, url)
	if fetchErr != nil {
		return false
	}
	err = r.transport.EditMediaBytes(chatID, messageID, data, content.Text, content.Keyboard)
	return err == nil || errors.Is(err, ErrNotModified)
}
