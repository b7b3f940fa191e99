package callbacks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Notifier delivers mint events to user-defined callbacks.
type Notifier interface {
	MintSucceeded(ctx context.Context, event MintEvent)
}

// NoopNotifier ignores all events.
type NoopNotifier struct{}

func (NoopNotifier) MintSucceeded(context.Context, MintEvent) {}

// MintEvent describes a reward mint that confirmed on-chain.
// EventID is the idempotency key - callback consumers MUST use it to prevent
// duplicate processing.
type MintEvent struct {
	EventID        string    `json:"eventId"`
	EventType      string    `json:"eventType"` // Always "mint.succeeded"
	EventTimestamp time.Time `json:"eventTimestamp"`

	Wallet          string            `json:"wallet"`          // Staker who received the reward tokens
	StakeSignature  string            `json:"stakeSignature"`  // Deposit transaction that triggered the mint
	MintSignature   string            `json:"mintSignature"`   // Confirmed mint transaction
	Lamports        uint64            `json:"lamports"`        // Staked amount
	RewardBaseUnits uint64            `json:"rewardBaseUnits"` // Reward tokens minted, in base units
	Network         string            `json:"network"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	MintedAt        time.Time         `json:"mintedAt"`
}

// ErrCallbackDisabled is returned when callbacks are not configured.
var ErrCallbackDisabled = errors.New("callbacks: disabled")

// generateEventID creates a unique event identifier for idempotency.
// Format: "evt_" + 24 hex characters (12 random bytes)
func generateEventID() string {
	randomBytes := make([]byte, 12)
	if _, err := rand.Read(randomBytes); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails (extremely rare)
		return fmt.Sprintf("evt_%d", time.Now().UnixNano())
	}
	return "evt_" + hex.EncodeToString(randomBytes)
}

// PrepareMintEvent ensures a MintEvent has required idempotency fields set.
// An existing EventID is preserved so retries reuse the same key.
func PrepareMintEvent(event *MintEvent) {
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	if event.EventType == "" {
		event.EventType = "mint.succeeded"
	}
	if event.EventTimestamp.IsZero() {
		event.EventTimestamp = time.Now().UTC()
	}
	if event.MintedAt.IsZero() {
		event.MintedAt = time.Now().UTC()
	}
}
