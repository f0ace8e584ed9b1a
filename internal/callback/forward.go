package callback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "github.com/adbridge-lab/adbridge/internal/api/v1"
	"github.com/adbridge-lab/adbridge/internal/signature"
	"github.com/adbridge-lab/adbridge/internal/storage"
)

// buildForwardQuery assembles the outbound query string: the reward fields,
// then either the per-client HMAC signature or the legacy success flag, then
// every custom_ parameter in its original encounter order and casing.
func buildForwardQuery(evt *v1.CallbackEvent, client *storage.Client) string {
	var b strings.Builder

	writePair := func(key, value string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
	}

	writePair(v1.ParamEventID, evt.EventID)
	writePair(v1.ParamRewards, evt.Rewards)
	writePair(v1.ParamTimestamp, evt.Timestamp)
	writePair(v1.ParamUserID, evt.UserID)

	if client.HasSignatureSecret() {
		writePair(v1.ParamSignature, signature.SignResponse(
			client.ClientID, evt.EventID, evt.UserID, evt.Timestamp, client.SignatureSecret))
	} else {
		writePair("success", "true")
	}

	for _, p := range evt.CustomParams() {
		writePair(p.Key, p.Value)
	}

	return b.String()
}

// HTTPForwarder delivers outbound callbacks with a plain GET, matching the
// publisher-side contract. A non-2xx publisher response is an error so the
// pipeline can log it; nothing retries at this layer.
type HTTPForwarder struct {
	client *http.Client
}

// NewHTTPForwarder creates a forwarder with the given per-request timeout.
func NewHTTPForwarder(timeout time.Duration) *HTTPForwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPForwarder{client: &http.Client{Timeout: timeout}}
}

// Forward issues GET <callbackURL>?<query>.
func (f *HTTPForwarder) Forward(ctx context.Context, callbackURL, query string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callbackURL+"?"+query, nil)
	if err != nil {
		return fmt.Errorf("failed to build forward request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("publisher returned status %d", resp.StatusCode)
	}
	return nil
}
