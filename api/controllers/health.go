package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

const (
	envHeader    = "X-MarketLedger-Env"
	readyTimeout = 2 * time.Second
)

// Pinger is a dependency the readiness probe must reach.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthLive reports that the process is serving.
func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency concurrently. The first failure
// cancels the rest and is reported as CodeDependency.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			checks = make(map[string]string, len(deps))
		)
		g, gctx := errgroup.WithContext(ctx)
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			g.Go(func() error {
				if err := dep.Ping(gctx); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable").
						WithDetails(map[string]any{"dependency": name})
				}
				mu.Lock()
				checks[name] = "ok"
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
