package callback

import (
	"log/slog"
	"net/http"
	"strings"

	v1 "github.com/adbridge-lab/adbridge/internal/api/v1"
	"github.com/gin-gonic/gin"
)

// CallbackHandler handles the inbound S2S reward callback. Per the network's
// contract the response is always 200 "<eventId>:OK" — the network only wants
// an acknowledgement and must never be given a reason to retry. Every internal
// outcome other than success is logged here and discarded.
func (s *Service) CallbackHandler(c *gin.Context) {
	evt, err := v1.ParseCallbackQuery(c.Request.URL.RawQuery)
	if err != nil {
		slog.Warn("Callback rejected", "stage", stageEnvelope, "reason", err.Error())
		c.String(http.StatusOK, v1.AckBody(""))
		return
	}

	if rej := s.process(c.Request.Context(), evt, sourceIP(c)); rej != nil {
		slog.Warn("Callback rejected",
			"stage", rej.stage,
			"reason", rej.reason,
			"client_id", evt.ClientID,
			"event_id", evt.EventID)
	} else {
		slog.Info("Callback processed",
			"client_id", evt.ClientID,
			"event_id", evt.EventID,
			"rewards", evt.Rewards)
	}

	c.String(http.StatusOK, v1.AckBody(evt.EventID))
}

// sourceIP extracts the caller's address: the first hop of the forwarded-for
// chain when present (the network's egress sits at the front), otherwise the
// direct peer address.
func sourceIP(c *gin.Context) string {
	if chain := c.GetHeader("X-Forwarded-For"); chain != "" {
		first, _, _ := strings.Cut(chain, ",")
		return strings.TrimSpace(first)
	}
	return c.ClientIP()
}

// RegisterRoutes registers the callback endpoint.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	// Canonical endpoint plus the path older integrations still call.
	r.GET("/v1/callback", s.CallbackHandler)
	r.GET("/callback", s.CallbackHandler)
}
