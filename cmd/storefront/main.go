// Copyright (c) 2024 Bryan Frimin <bryan@frimin.fr>.
//
// Permission to use, copy, modify, and/or distribute this software
// for any purpose with or without fee is hereby granted, provided
// that the above copyright notice and this permission notice appear
// in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL
// WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED
// WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE
// AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR
// CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS
// OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT,
// NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN
// CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"go.tevex.dev/storefront/api"
	"go.tevex.dev/storefront/config"
	"go.tevex.dev/storefront/httpserver"
	"go.tevex.dev/storefront/log"
	"go.tevex.dev/storefront/migrator"
	"go.tevex.dev/storefront/order"
	"go.tevex.dev/storefront/pg"
	"go.tevex.dev/storefront/ratelimit"
	"go.tevex.dev/storefront/renderer"
	"go.tevex.dev/storefront/token"
	"go.tevex.dev/storefront/unit"
)

var version = "devel"

type (
	service struct {
		cfg *config.Config
	}
)

func main() {
	environment := os.Getenv("STOREFRONT_ENV")
	if environment == "" {
		environment = "development"
	}

	svc := &service{cfg: config.DefaultConfig()}
	svc.cfg.Environment = environment

	u := unit.NewUnit("storefront", version, environment, svc)
	if err := u.Run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (s *service) GetConfiguration() any {
	return s.cfg
}

func (s *service) Run(
	ctx context.Context,
	logger *log.Logger,
	registerer prometheus.Registerer,
	tp trace.TracerProvider,
) error {
	cfg := s.cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pgClient, err := pg.NewClient(
		pg.WithLogger(logger),
		pg.WithAddr(cfg.Postgres.Addr),
		pg.WithUser(cfg.Postgres.User),
		pg.WithPassword(cfg.Postgres.Password),
		pg.WithDatabase(cfg.Postgres.Database),
		pg.WithPoolSize(int32(cfg.Postgres.PoolSize)),
		pg.WithTracerProvider(tp),
		pg.WithRegisterer(registerer),
	)
	if err != nil {
		return fmt.Errorf("cannot create pg client: %w", err)
	}
	defer pgClient.Close()

	m := migrator.NewMigrator(pgClient, cfg.Migrations, migrator.WithLogger(logger))
	if err := m.Run(ctx); err != nil {
		return fmt.Errorf("cannot run migrations: %w", err)
	}

	limiterStore, err := s.newLimiterStore(ctx, pgClient)
	if err != nil {
		return fmt.Errorf("cannot create rate limit store: %w", err)
	}

	limiter := ratelimit.NewLimiter(
		limiterStore,
		ratelimit.Policy{
			ratelimit.CategoryPublic: {Limit: cfg.RateLimit.Public.Limit, Window: cfg.RateLimit.Public.Window()},
			ratelimit.CategoryLogin:  {Limit: cfg.RateLimit.Login.Limit, Window: cfg.RateLimit.Login.Window()},
			ratelimit.CategoryAdmin:  {Limit: cfg.RateLimit.Admin.Limit, Window: cfg.RateLimit.Admin.Window()},
		},
		ratelimit.WithLogger(logger),
		ratelimit.WithTracerProvider(tp),
		ratelimit.WithRegisterer(registerer),
	)
	limiter.StartCleanup(ctx, 5*time.Minute)

	orders := order.NewPGStore(pgClient)
	tokens := token.NewService(
		token.NewPGStore(pgClient),
		orders,
		token.WithLogger(logger),
		token.WithTracerProvider(tp),
		token.WithRegisterer(registerer),
	)

	receipts := renderer.NewClient(
		cfg.Renderer.BaseURL,
		renderer.WithLogger(logger),
		renderer.WithTracerProvider(tp),
		renderer.WithRegisterer(registerer),
	)

	handler := api.NewHandler(
		orders,
		tokens,
		limiter,
		receipts,
		api.WithLogger(logger),
		api.WithAllowedOrigins(cfg.CORS.AllowedOrigins),
		api.WithAdminToken(cfg.Admin.BearerToken),
		api.WithSecureCookies(cfg.IsProduction()),
		api.WithTrustProxy(cfg.IsProduction()),
	)

	server := httpserver.NewServer(
		cfg.HTTP.Addr,
		handler.Router(),
		httpserver.WithLogger(logger),
		httpserver.WithTracerProvider(tp),
		httpserver.WithRegisterer(registerer),
	)

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("cannot listen on %q: %w", server.Addr, err)
	}
	defer listener.Close()

	logger.InfoCtx(ctx, "http server started", log.String("addr", server.Addr))

	serverErrCh := make(chan error, 1)
	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("cannot serve http request: %w", err)
		}
		close(serverErrCh)
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-ctx.Done():
	}

	logger.InfoCtx(ctx, "shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("cannot shutdown http server: %w", err)
	}

	return ctx.Err()
}

func (s *service) newLimiterStore(ctx context.Context, pgClient *pg.Client) (ratelimit.Store, error) {
	switch s.cfg.RateLimit.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
		})

		return ratelimit.NewRedisStore(client), nil
	case "postgres":
		return ratelimit.NewPGStore(ctx, pgClient)
	default:
		return ratelimit.NewMemoryStore(), nil
	}
}
