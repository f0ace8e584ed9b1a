// Package ecpm serves the read-only eCPM lookup for publishers: a keyed read
// of the daily aggregate, gated by the client's legacy shared secret.
package ecpm

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/adbridge-lab/adbridge/internal/httperr"
	"github.com/adbridge-lab/adbridge/internal/storage"
	"github.com/gin-gonic/gin"
)

type Service struct {
	directory storage.ClientDirectory
	aggStore  storage.AggregateStore
}

func NewService(directory storage.ClientDirectory, aggStore storage.AggregateStore) *Service {
	if directory == nil {
		panic("ecpm: directory must not be nil")
	}
	if aggStore == nil {
		panic("ecpm: aggregate store must not be nil")
	}
	return &Service{directory: directory, aggStore: aggStore}
}

// LookupHandler handles GET /v1/ecpm?appKey=&date=&secret=.
// Unlike the callback endpoint this one reports real errors: it is called by
// publishers, not by the ad network, so 400s are safe and useful.
func (s *Service) LookupHandler(c *gin.Context) {
	appKey := c.Query("appKey")
	date := c.Query("date")
	secret := c.Query("secret")

	client, err := s.directory.Lookup(c.Request.Context(), appKey)
	if err != nil {
		if !errors.Is(err, storage.ErrClientNotFound) {
			slog.Error("eCPM lookup: directory failure", "app_key", appKey, "error", err)
		}
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{Error: httperr.MsgIncorrectClient})
		return
	}

	if client.Secret != secret {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{Error: httperr.MsgIncorrectSecret})
		return
	}

	agg, err := s.aggStore.Get(c.Request.Context(), appKey, date)
	if err != nil {
		if !errors.Is(err, storage.ErrAggregateNotFound) {
			slog.Error("eCPM lookup: aggregate store failure", "app_key", appKey, "date", date, "error", err)
		}
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{Error: httperr.MsgRecordNotFound})
		return
	}

	// Emitted as a JSON number; decimal's own MarshalJSON would quote it.
	c.JSON(http.StatusOK, gin.H{"eCPM": agg.ECPM.InexactFloat64()})
}

// RegisterRoutes registers the read API routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/ecpm", s.LookupHandler)
}
