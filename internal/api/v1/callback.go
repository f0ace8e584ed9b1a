package v1

import (
	"fmt"
	"net/url"
	"strings"
)

// Field names of the inbound reward callback. The app identifier arrives either
// as custom_clientId (older integrations) or as appKey; both map onto the single
// logical ClientID field.
const (
	ParamAppKey         = "appKey"
	ParamCustomClientID = "custom_clientId"
	ParamEventID        = "eventId"
	ParamRewards        = "rewards"
	ParamSignature      = "signature"
	ParamTimestamp      = "timestamp"
	ParamUserID         = "userId"

	// CustomPrefix marks publisher-defined parameters that must be passed
	// through to the outbound forward unchanged and in order.
	CustomPrefix = "custom_"
)

// Param is a single decoded query parameter. Params are kept as a slice rather
// than a map so the original encounter order and key casing survive until the
// outbound forward is built.
type Param struct {
	Key   string
	Value string
}

// CallbackEvent is the envelope of one inbound reward callback.
// It is transient: only (ClientID, EventID, Rewards, Timestamp, UserID) is ever
// persisted, and (ClientID, EventID) is the idempotency key.
type CallbackEvent struct {
	ClientID  string
	EventID   string
	Rewards   string
	Timestamp string
	UserID    string
	Signature string

	// Params holds every inbound query parameter in encounter order.
	Params []Param
}

// ParseCallbackQuery decodes a raw query string into a CallbackEvent.
// It does not use url.ParseQuery because url.Values is an unordered map and the
// forward contract requires custom_ parameters in their original order.
func ParseCallbackQuery(rawQuery string) (*CallbackEvent, error) {
	evt := &CallbackEvent{}

	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("malformed query key %q: %w", key, err)
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("malformed query value for %q: %w", decodedKey, err)
		}
		evt.Params = append(evt.Params, Param{Key: decodedKey, Value: decodedValue})

		switch decodedKey {
		case ParamCustomClientID:
			evt.ClientID = decodedValue
		case ParamAppKey:
			// custom_clientId wins when both are present.
			if evt.ClientID == "" {
				evt.ClientID = decodedValue
			}
		case ParamEventID:
			evt.EventID = decodedValue
		case ParamRewards:
			evt.Rewards = decodedValue
		case ParamSignature:
			evt.Signature = decodedValue
		case ParamTimestamp:
			evt.Timestamp = decodedValue
		case ParamUserID:
			evt.UserID = decodedValue
		}
	}

	return evt, nil
}

// Validate ensures the envelope carries every field the verification pipeline
// needs. ClientID is checked separately so the missing-client log line can name
// the identifier field.
func (e *CallbackEvent) Validate() error {
	if e.ClientID == "" {
		return fmt.Errorf("client identifier (%s or %s) is required", ParamCustomClientID, ParamAppKey)
	}
	if e.EventID == "" {
		return fmt.Errorf("%s is required", ParamEventID)
	}
	if e.Rewards == "" {
		return fmt.Errorf("%s is required", ParamRewards)
	}
	if e.Timestamp == "" {
		return fmt.Errorf("%s is required", ParamTimestamp)
	}
	if e.UserID == "" {
		return fmt.Errorf("%s is required", ParamUserID)
	}
	return nil
}

// CustomParams returns the inbound parameters whose key carries the custom_
// prefix, in encounter order and original casing. The client identifier carrier
// custom_clientId is excluded: it addresses this service, not the publisher.
func (e *CallbackEvent) CustomParams() []Param {
	var out []Param
	for _, p := range e.Params {
		if strings.HasPrefix(p.Key, CustomPrefix) && p.Key != ParamCustomClientID {
			out = append(out, p)
		}
	}
	return out
}

// AckBody is the fixed acknowledgement body the ad network expects. Every
// branch of the callback pipeline returns exactly this, whatever happened
// internally, so the network never retries.
func AckBody(eventID string) string {
	return eventID + ":OK"
}
