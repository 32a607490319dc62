package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Failure classes the card renderer branches on. Everything else from the
// transport is passed through as-is.
var (
	// ErrEditRejected means the platform refused to edit this message
	// with this content; the caller should delete and resend.
	ErrEditRejected = errors.New("edit rejected for this message")
	// ErrNotModified means the edit was a no-op: same content.
	ErrNotModified = errors.New("message is not modified")
)

// ChatTransport is the chat-platform contract the flow and the card
// renderer consume. Message ids are returned so the caller can track the
// live card.
type ChatTransport interface {
	SendText(chatID int64, text string, markup interface{}) (int, error)
	SendPhotoURL(chatID int64, url, caption string, kb *tgbotapi.InlineKeyboardMarkup) (int, error)
	SendPhotoBytes(chatID int64, data []byte, caption string, kb *tgbotapi.InlineKeyboardMarkup) (int, error)
	EditText(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error
	EditCaption(chatID int64, messageID int, caption string, kb *tgbotapi.InlineKeyboardMarkup) error
	EditMediaURL(chatID int64, messageID int, url, caption string, kb *tgbotapi.InlineKeyboardMarkup) error
	EditMediaBytes(chatID int64, messageID int, data []byte, caption string, kb *tgbotapi.InlineKeyboardMarkup) error
	DeleteMessage(chatID int64, messageID int) error
	AnswerCallback(callbackID, text string, alert bool) error
}

// TelegramService implements ChatTransport over the Bot API.
type TelegramService struct {
	api *tgbotapi.BotAPI
}

// NewTelegramService creates the transport from TELEGRAM_BOT_TOKEN.
func NewTelegramService() (*TelegramService, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("missing TELEGRAM_BOT_TOKEN in environment variables")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api: %w", err)
	}

	log.Printf("✅ Telegram bot authorized as @%s", api.Self.UserName)
	return &TelegramService{api: api}, nil
}

// classifyEditErr folds the Bot API's edit refusals into the two classes
// the renderer distinguishes.
func classifyEditErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "message is not modified") {
		return ErrNotModified
	}
	for _, reject := range []string{
		"message can't be edited",
		"there is no text in the message to edit",
		"there is no caption in the message to edit",
		"message to edit not found",
		"wrong type of the web page content",
		"wrong file identifier",
	} {
		if strings.Contains(msg, reject) {
			return ErrEditRejected
		}
	}
	return err
}

func (t *TelegramService) SendText(chatID int64, text string, markup interface{}) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}

	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *TelegramService) SendPhotoURL(chatID int64, url, caption string, kb *tgbotapi.InlineKeyboardMarkup) (int, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if kb != nil {
		photo.ReplyMarkup = kb
	}

	sent, err := t.api.Send(photo)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *TelegramService) SendPhotoBytes(chatID int64, data []byte, caption string, kb *tgbotapi.InlineKeyboardMarkup) (int, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "dish.jpg", Bytes: data})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if kb != nil {
		photo.ReplyMarkup = kb
	}

	sent, err := t.api.Send(photo)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *TelegramService) EditText(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = kb

	_, err := t.api.Request(edit)
	return classifyEditErr(err)
}

func (t *TelegramService) EditCaption(chatID int64, messageID int, caption string, kb *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageCaption(chatID, messageID, caption)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = kb

	_, err := t.api.Request(edit)
	return classifyEditErr(err)
}

func (t *TelegramService) EditMediaURL(chatID int64, messageID int, url, caption string, kb *tgbotapi.InlineKeyboardMarkup) error {
	media := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(url))
	media.Caption = caption
	media.ParseMode = tgbotapi.ModeHTML

	edit := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{ChatID: chatID, MessageID: messageID, ReplyMarkup: kb},
		Media:    media,
	}

	_, err := t.api.Request(edit)
	return classifyEditErr(err)
}

func (t *TelegramService) EditMediaBytes(chatID int64, messageID int, data []byte, caption string, kb *tgbotapi.InlineKeyboardMarkup) error {
	media := tgbotapi.NewInputMediaPhoto(tgbotapi.FileBytes{Name: "dish.jpg", Bytes: data})
	media.Caption = caption
	media.ParseMode = tgbotapi.ModeHTML

	edit := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{ChatID: chatID, MessageID: messageID, ReplyMarkup: kb},
		Media:    media,
	}

	_, err := t.api.Request(edit)
	return classifyEditErr(err)
}

func (t *TelegramService) DeleteMessage(chatID int64, messageID int) error {
	_, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func (t *TelegramService) AnswerCallback(callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert

	_, err := t.api.Request(cb)
	return err
}
