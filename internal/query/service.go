// Package query is the read/notify facade over the fleet aggregate: point
// queries for the current statistics, and fan-out of refreshed statistics to
// bus subscribers after each commit.
package query

import (
	"log/slog"
	"net/http"

	httperr "github.com/fleet-lab/fleet-reporter/internal/core/errors"
	"github.com/fleet-lab/fleet-reporter/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// Service serves the current fleet statistics to the query gateway.
type Service struct {
	statsStore storage.StatsStore
}

// NewService creates the query service.
func NewService(statsStore storage.StatsStore) *Service {
	if statsStore == nil {
		panic("query: stats store must not be nil")
	}
	return &Service{statsStore: statsStore}
}

// RegisterRoutes registers the query API routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/fleet-statistics", s.HandleGetStatistics)
}

// HandleGetStatistics handles GET /v1/fleet-statistics.
// Before the first commit it returns the zero-valued shape, never an error.
func (s *Service) HandleGetStatistics(c *gin.Context) {
	current, err := s.statsStore.GetFleetStatistics(c.Request.Context())
	if err != nil {
		slog.Error("[Query] Failed to read fleet statistics", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to read fleet statistics",
		})
		return
	}

	current.Normalize()
	c.JSON(http.StatusOK, current)
}
