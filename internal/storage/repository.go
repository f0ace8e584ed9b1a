package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrClientNotFound is returned by ClientDirectory.Lookup when no client row
// exists for the given identifier.
var ErrClientNotFound = errors.New("client not found")

// ErrAggregateNotFound is returned by AggregateStore.Get when no aggregate row
// exists for the given (appKey, date).
var ErrAggregateNotFound = errors.New("aggregate not found")

// Client is one publisher integration's configuration. Read-only to this
// service; ownership sits with external configuration management.
type Client struct {
	ClientID string `yaml:"client_id"`

	// CallbackUrl, when set, is where verified reward events are forwarded.
	CallbackURL string `yaml:"callback_url"`

	// Secret is the legacy shared secret, used only by the eCPM read endpoint.
	Secret string `yaml:"secret"`

	// SignatureSecret, when set, selects the per-client HMAC variant for
	// signing outbound forwards.
	SignatureSecret string `yaml:"signature_secret"`
}

// HasSignatureSecret reports whether outbound forwards to this client are
// signed rather than flagged with success=true.
func (c *Client) HasSignatureSecret() bool {
	return c.SignatureSecret != ""
}

// RewardEvent is the persisted slice of a verified callback.
// (ClientID, EventID) is the idempotency key.
type RewardEvent struct {
	ClientID  string
	EventID   string
	Rewards   string
	Timestamp string
	UserID    string
}

// DailyAggregate is the per-(appKey, date) output of the reporting job.
// Re-running the job for the same day overwrites the prior row.
type DailyAggregate struct {
	AppKey  string
	Date    string // calendar day, 2006-01-02
	ECPM    decimal.Decimal
	Revenue decimal.Decimal
}

// ClientDirectory is the read-only lookup of publisher configuration.
type ClientDirectory interface {
	// Lookup returns the client for clientID, or ErrClientNotFound.
	Lookup(ctx context.Context, clientID string) (*Client, error)
}

// EventLedger is the idempotency store for reward events. The dispatcher calls
// Exists before Record; two concurrent requests for the same event may both
// pass the check and both call Record, which must behave as a harmless
// overwrite rather than fail.
type EventLedger interface {
	Exists(ctx context.Context, clientID, eventID string) (bool, error)
	Record(ctx context.Context, event RewardEvent) error
}

// AggregateStore persists daily per-app aggregates with last-writer-wins
// overwrite semantics.
type AggregateStore interface {
	Upsert(ctx context.Context, agg DailyAggregate) error

	// Get returns the aggregate for (appKey, date), or ErrAggregateNotFound.
	Get(ctx context.Context, appKey, date string) (*DailyAggregate, error)
}
