package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jsa498/digitalmarketing/internal/app"
	"github.com/jsa498/digitalmarketing/internal/config"
	"github.com/jsa498/digitalmarketing/internal/consumer"
	"github.com/jsa498/digitalmarketing/internal/handler"
	"github.com/jsa498/digitalmarketing/internal/logger"
	"github.com/jsa498/digitalmarketing/internal/middleware"
	"github.com/jsa498/digitalmarketing/internal/router"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.MustLoad()

	log := logger.New(logger.Options{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDevelopment(),
	})
	log.WithField("env", cfg.App.Environment).Infof("Starting %s %s", cfg.App.Name, cfg.App.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to build cart agent")
	}
	defer a.Close()

	a.Engine.OnError(func(err error) {
		log.WithError(err).Warn("Cart sync error")
	})

	r := router.New(router.Config{
		Handler:            handler.New(a.Service, a.Repo, cfg.App.Name, cfg.App.Version),
		CartHandler:        handler.NewCartHandler(a.Service),
		SessionHandler:     handler.NewSessionHandler(a.Service),
		CheckoutHandler:    handler.NewCheckoutHandler(a.Service),
		IdentityMiddleware: middleware.NewIdentityMiddleware(a.Resolver, logger.Component(log, "identity")),
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		Logger:             logger.Component(log, "http"),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server error")
		}
		return nil
	})

	if cfg.Checkout.Enabled() {
		groupID := consumer.AgentGroupID(cfg.Checkout.GroupID, a.Service.SessionID())
		c := consumer.NewCheckoutConsumer(
			consumer.NewCheckoutReader(cfg.Checkout.Brokers, cfg.Checkout.Topic, groupID),
			a.Service,
			logger.Component(log, "checkout_consumer"),
		)
		g.Go(func() error {
			defer c.Close()
			return c.Run(gctx)
		})
		log.WithFields(logrus.Fields{"topic": cfg.Checkout.Topic, "group_id": groupID}).Info("Checkout consumer enabled")
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Server shutdown error")
		}

		// Let queued cart writes reach the remote store before the stores close
		if err := a.Service.Flush(shutdownCtx); err != nil {
			log.WithError(err).Warn("Pending cart writes were not flushed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Cart agent stopped with error")
		a.Close()
		os.Exit(1)
	}

	log.Info("Server stopped")
}
