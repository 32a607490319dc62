package models

import (
	"encoding/json"
	"time"
)

// Conversation states for the order flow machine
const (
	StateAwaitingName          = "awaiting_name"
	StateAwaitingPhone         = "awaiting_phone"
	StateMenu                  = "menu"
	StateChooseAddress         = "choose_address"
	StateAwaitingCustomAddress = "awaiting_custom_address"
	StateChooseTime            = "choose_time"
	StateChooseQty             = "choose_qty"
	StateAwaitingQtyManual     = "awaiting_qty_manual"
	StateConfirm               = "confirm"
)

// Card kinds as displayed in the chat
const (
	CardNone  = ""
	CardPlain = "plain"
	CardPhoto = "photo"
)

// FlowContext holds everything the conversation collects between steps.
// Downstream selections are overwritten on the next forward pass, so back
// navigation never needs to discard anything.
type FlowContext struct {
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Username   string `json:"username,omitempty"`
	Registered bool   `json:"registered,omitempty"`

	// Menu snapshot cached for cursor navigation
	Menu    []MenuItem `json:"menu,omitempty"`
	MenuIdx int        `json:"menu_idx,omitempty"`

	ChosenDish    string `json:"chosen_dish,omitempty"`
	ChosenTariff  string `json:"chosen_tariff,omitempty"`
	ChosenAddress string `json:"chosen_address,omitempty"`
	ChosenTime    string `json:"chosen_time,omitempty"`
	ChosenQty     int    `json:"chosen_qty,omitempty"`

	// The single evolving message representing the current step
	CardMessageID int    `json:"card_message_id,omitempty"`
	CardKind      string `json:"card_kind,omitempty"`
}

// Session is the persisted per-user conversation record. Exactly one row
// per Telegram user id; absence is equivalent to the initial state.
type Session struct {
	UserID    int64     `gorm:"primaryKey" json:"user_id"`
	ChatID    int64     `json:"chat_id"`
	State     string    `json:"state"`
	Context   string    `gorm:"type:text" json:"context"` // FlowContext as JSON
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FlowContext decodes the stored context blob. An empty or corrupt blob
// decodes to the zero context so a session never becomes unrecoverable.
func (s *Session) FlowContext() FlowContext {
	var fc FlowContext
	if s.Context == "" {
		return fc
	}
	if err := json.Unmarshal([]byte(s.Context), &fc); err != nil {
		return FlowContext{}
	}
	return fc
}

// SetFlowContext encodes and stores the context blob.
func (s *Session) SetFlowContext(fc FlowContext) error {
	raw, err := json.Marshal(fc)
	if err != nil {
		return err
	}
	s.Context = string(raw)
	return nil
}
