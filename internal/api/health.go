package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 5 * time.Second

// health reports every registered dependency. Any failure makes the whole
// report unhealthy and the status 503.
func (s *Server) health(*http.Request) *async.Future[reply] {
	return async.Go(func() (reply, error) {
		report := wire.Health{Healthy: true, Details: make(map[string]string, len(s.healthChecks))}
		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		for name, check := range s.healthChecks {
			g.Go(func() error {
				ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
				defer cancel()
				err := check.HealthCheck(ctx)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Healthy = false
					report.Details[name] = err.Error()
					return nil
				}
				report.Details[name] = "ok"
				return nil
			})
		}
		g.Wait() //nolint:errcheck // Checks record their own failures

		if !report.Healthy {
			return reply{status: http.StatusServiceUnavailable, body: report}, nil
		}
		return ok(report), nil
	})
}
