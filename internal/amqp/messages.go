package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Reasons carried by LedgerChangedMessage.
const (
	ReasonEntryAdded    = "entry_added"
	ReasonEntryRemoved  = "entry_removed"
	ReasonIncomeSet     = "income_set"
	ReasonSetup         = "setup_completed"
	ReasonFixedExpenses = "fixed_expenses_replaced"
	ReasonDebts         = "debts_replaced"
	ReasonReserve       = "reserve_added"
	ReasonReset         = "account_reset"
	ReasonRollover      = "month_rolled_over"
)

// LedgerChangedMessage tells consumers that one user's month changed. It
// carries no amounts; consumers reload the document.
type LedgerChangedMessage struct {
	UserID    string    `json:"userId"`
	Month     string    `json:"month"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(userID, month, reason string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		UserID:    userID,
		Month:     month,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes a message and rejects one without a user id.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("ledger changed message without user id")
	}
	return &msg, nil
}
