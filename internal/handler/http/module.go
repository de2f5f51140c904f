package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/gamenight/scheduler/config"
	"github.com/gamenight/scheduler/infra/redis"
	"github.com/gamenight/scheduler/internal/handler/interactions"
	"github.com/gamenight/scheduler/internal/service"
	"github.com/gamenight/scheduler/internal/store"
)

const shutdownTimeout = 15 * time.Second

// NewRouter assembles the full HTTP surface: health, metrics, the signed
// interaction webhook, and the cookie-authenticated API.
func NewRouter(
	cfg *config.Config,
	api *API,
	clicks *interactions.Handler,
	st *store.Store,
	cache *redis.Cache,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) (chi.Router, error) {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		if err := st.Health(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := cache.Health(ctx); err != nil {
			http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if cfg.Chat.PublicKey != "" {
		key, err := interactions.ParsePublicKey(cfg.Chat.PublicKey)
		if err != nil {
			return nil, err
		}
		r.With(interactions.Verify(key)).Post("/interactions", clicks.ServeHTTP)
	} else {
		// Local development without a signing key.
		logger.Warn("INTERACTIONS_UNSIGNED")
		r.Post("/interactions", clicks.ServeHTTP)
	}

	api.Mount(r)
	return r, nil
}

var Module = fx.Module("http",
	fx.Provide(
		func(s *service.SessionService) interactions.RosterService { return s },
		interactions.NewHandler,
		NewAPI,
		NewRouter,
	),

	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, router chi.Router, logger *slog.Logger) {
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					logger.Info("HTTP_LISTENING", slog.String("addr", srv.Addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("HTTP_SERVER_FAILED", slog.Any("error", err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
				defer cancel()
				return srv.Shutdown(ctx)
			},
		})
	}),
)
