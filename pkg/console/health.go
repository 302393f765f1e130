package console

import (
	"context"
	"time"

	"github.com/morezero/standards-console/pkg/commsutil"
)

// Health checks the console service health.
func (s *Service) Health(ctx context.Context) *commsutil.HealthOutput {
	dbOk := s.store != nil && s.store.Ping(ctx) == nil
	_, _, err := s.loadCatalog(ctx)
	catalogOk := err == nil

	status := "healthy"
	if !dbOk || !catalogOk {
		status = "unhealthy"
	}

	return &commsutil.HealthOutput{
		Status: status,
		Checks: commsutil.HealthChecks{
			Database: dbOk,
			Catalog:  catalogOk,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
