// Package callback implements the inbound S2S reward-callback pipeline:
// source-IP allow-listing, client resolution, signature verification, duplicate
// suppression, persistence, and outbound forwarding to the publisher. Whatever
// happens inside the pipeline, the ad network always receives the same 200
// acknowledgement; divergence is visible only in side effects and logs.
package callback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	v1 "github.com/adbridge-lab/adbridge/internal/api/v1"
	"github.com/adbridge-lab/adbridge/internal/signature"
	"github.com/adbridge-lab/adbridge/internal/storage"
)

// Pipeline stages, used as the stage field of rejection logs.
const (
	stageIPCheck   = "ip_check"
	stageEnvelope  = "envelope"
	stageClient    = "client_lookup"
	stageSignature = "signature"
	stageDuplicate = "duplicate"
	stagePersist   = "persist"
	stageForward   = "forward"
)

// rejection is a terminal pipeline outcome. It never crosses the transport
// boundary: the handler logs it and returns the fixed acknowledgement anyway.
type rejection struct {
	stage  string
	reason string
}

func (r *rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.stage, r.reason)
}

func reject(stage, format string, args ...any) *rejection {
	return &rejection{stage: stage, reason: fmt.Sprintf(format, args...)}
}

// Forwarder issues the outbound GET to the publisher's callback URL.
type Forwarder interface {
	Forward(ctx context.Context, callbackURL, query string) error
}

// Options carries the static verification material and the network allow-list.
type Options struct {
	// PrivateKey is the process-wide legacy signing key the network uses for
	// inbound callbacks. Per-client secrets never apply to this direction.
	PrivateKey string

	// EnforceIPAllowList enables the source-address check. Older network
	// variants did not publish egress addresses, so the check is optional.
	EnforceIPAllowList bool

	// AllowedIPs is the fixed set of network egress addresses.
	AllowedIPs []string
}

// Service is the callback dispatcher.
type Service struct {
	directory storage.ClientDirectory
	ledger    storage.EventLedger
	forwarder Forwarder
	opts      Options
	allowed   map[string]struct{}
}

// NewService wires the dispatcher over its collaborators.
func NewService(directory storage.ClientDirectory, ledger storage.EventLedger, forwarder Forwarder, opts Options) *Service {
	if directory == nil {
		panic("callback: directory must not be nil")
	}
	if ledger == nil {
		panic("callback: ledger must not be nil")
	}
	if forwarder == nil {
		panic("callback: forwarder must not be nil")
	}

	allowed := make(map[string]struct{}, len(opts.AllowedIPs))
	for _, ip := range opts.AllowedIPs {
		allowed[strings.TrimSpace(ip)] = struct{}{}
	}

	return &Service{
		directory: directory,
		ledger:    ledger,
		forwarder: forwarder,
		opts:      opts,
		allowed:   allowed,
	}
}

// process runs the verification pipeline for one callback. sourceIP is the
// first hop of the forwarded-for chain (or the peer address when no header is
// present). The returned rejection, if any, is terminal and already fully
// describes why the pipeline stopped; a nil return means the event was
// recorded and, when the client has a callback URL, forwarded.
func (s *Service) process(ctx context.Context, evt *v1.CallbackEvent, sourceIP string) *rejection {
	if s.opts.EnforceIPAllowList {
		ip := strings.TrimSpace(sourceIP)
		if _, ok := s.allowed[ip]; !ok {
			return reject(stageIPCheck, "source address %q is not a known network egress", ip)
		}
	}

	if err := evt.Validate(); err != nil {
		return reject(stageEnvelope, "%v", err)
	}

	client, err := s.directory.Lookup(ctx, evt.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return reject(stageClient, "no client configured for ID %q", evt.ClientID)
		}
		return reject(stageClient, "directory lookup failed: %v", err)
	}

	if !signature.VerifyLegacy(evt.Timestamp, evt.EventID, evt.UserID, evt.Rewards, s.opts.PrivateKey, evt.Signature) {
		return reject(stageSignature, "signature mismatch for event %q", evt.EventID)
	}

	exists, err := s.ledger.Exists(ctx, evt.ClientID, evt.EventID)
	if err != nil {
		return reject(stageDuplicate, "ledger check failed: %v", err)
	}
	if exists {
		return reject(stageDuplicate, "event %q already processed for client %q", evt.EventID, evt.ClientID)
	}

	if err := s.ledger.Record(ctx, storage.RewardEvent{
		ClientID:  evt.ClientID,
		EventID:   evt.EventID,
		Rewards:   evt.Rewards,
		Timestamp: evt.Timestamp,
		UserID:    evt.UserID,
	}); err != nil {
		return reject(stagePersist, "failed to record event: %v", err)
	}

	if client.CallbackURL == "" {
		return nil
	}

	query := buildForwardQuery(evt, client)
	if err := s.forwarder.Forward(ctx, client.CallbackURL, query); err != nil {
		// The event is already recorded; the publisher missed the forward.
		// Still a terminal, logged condition rather than a retry loop.
		return reject(stageForward, "forward to %q failed: %v", client.CallbackURL, err)
	}

	return nil
}
