package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ingestservice "github.com/streamcred/streamcred/internal/ingest/service"
)

// maxWebhookBody bounds a single delivery. Providers cap their payloads
// well below this.
const maxWebhookBody = 1 << 20

func (s *Server) HandleWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	outcome, err := s.ingestSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if outcome.Status == ingestservice.OutcomeChallenge {
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(outcome.Challenge))
		return
	}

	body := gin.H{"status": outcome.Status}
	if outcome.Status == ingestservice.OutcomeApplied {
		body["coins"] = outcome.Coins
		body["experience"] = outcome.Experience
	}
	c.JSON(http.StatusOK, body)
}

// HandleWebhookInfo lists the event types handled for a provider, for
// subscription setup tooling.
func (s *Server) HandleWebhookInfo(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	eventTypes, err := s.ingestSvc.EventTypes(provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":    strings.ToLower(provider),
		"event_types": eventTypes,
	})
}
