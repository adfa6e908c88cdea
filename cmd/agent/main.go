package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-redis/redis/v8"
	"github.com/msniranjan18/chhavinity/config"
	"github.com/msniranjan18/chhavinity/pkg/account"
	"github.com/msniranjan18/chhavinity/pkg/activity"
	"github.com/msniranjan18/chhavinity/pkg/gateway"
	"github.com/msniranjan18/chhavinity/pkg/localstore"
	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/notify"
	"github.com/msniranjan18/chhavinity/pkg/presence"
	"github.com/msniranjan18/chhavinity/pkg/session"
	"github.com/msniranjan18/chhavinity/pkg/transport"
	"go.uber.org/multierr"
)

// runner is a transport with a connection loop.
type runner interface {
	transport.Client
	Run(ctx context.Context) error
}

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.Log, os.Stdout)

	if cfg.Agent.UserID == "" {
		logger.Error("AGENT_USER_ID is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	self := models.User{ID: cfg.Agent.UserID, FullName: cfg.Agent.UserName, ProfilePic: cfg.Agent.UserAvatar}
	logger.Info("Starting Chhavinity agent", "user_id", self.ID, "transport", cfg.Agent.Transport)

	store, err := localstore.Open(cfg.Agent.StorePath)
	if err != nil {
		logger.Error("Failed to open local store", "path", cfg.Agent.StorePath, "error", err)
		os.Exit(1)
	}

	var closers []func() error
	closers = append(closers, store.Close)

	var client runner
	switch cfg.Agent.Transport {
	case "redis":
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("Invalid Redis URL", "error", err)
			store.Close()
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		closers = append(closers, rdb.Close)
		client = transport.NewRedisClient(rdb,
			transport.User{ID: self.ID, Name: self.FullName, Image: self.ProfilePic},
			logger.With("component", "transport"))
	default:
		client = transport.NewWSClient(cfg.Agent.TransportURL, cfg.Agent.Token, transport.WSOptions{
			WriteWait:      cfg.WebSocket.WriteWait,
			PongWait:       cfg.WebSocket.PongWait,
			PingPeriod:     cfg.WebSocket.PingPeriod,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
			MaxRetries:     cfg.Agent.ConnectRetries,
			RetryDelay:     2 * time.Second,
		}, logger.With("component", "transport"))
	}

	input := activity.NewInputBus()
	gw := gateway.New(input, logger.With("component", "gateway"))

	notifyOpts := notify.DefaultOptions()
	notifyOpts.CallTTL = cfg.Notify.CallTTL
	notifyOpts.TypingTimeout = cfg.Notify.TypingTimeout
	notifyOpts.DefaultIcon = cfg.Notify.DefaultIcon

	presenceOpts := presence.DefaultOptions()
	presenceOpts.HeartbeatInterval = cfg.Presence.HeartbeatInterval
	presenceOpts.ActiveWindow = cfg.Presence.ActivityWindow
	presenceOpts.IdleTimeout = cfg.Presence.IdleTimeout
	presenceOpts.HiddenTimeout = cfg.Presence.HiddenTimeout
	presenceOpts.CallTimeout = cfg.Agent.RequestTimeout

	sess := session.New(session.Options{
		Origin:          cfg.Agent.Origin,
		ActivityWindow:  cfg.Presence.ActivityWindow,
		SettleDelay:     cfg.Watch.SettleDelay,
		RefreshInterval: cfg.Watch.RefreshInterval,
		DedupeSize:      cfg.Notify.DedupeSize,
		Presence:        presenceOpts,
		Notify:          notifyOpts,
	}, session.Deps{
		Clock:     clock.New(),
		Account:   account.NewClient(cfg.Agent.AccountURL, cfg.Agent.Token, cfg.Agent.RequestTimeout, logger.With("component", "account")),
		Transport: client,
		Input:     input,
		Notifier:  gw,
		Player:    gw,
		Store:     store,
	}, logger)

	gw.Attach(sess)
	gw.Start(ctx)

	server := &http.Server{
		Addr:    cfg.Agent.GatewayAddr,
		Handler: gw.Handler(cfg.Server.AllowedOrigins),
	}
	failed := make(chan error, 2)
	go func() {
		logger.Info("UI gateway listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()
	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			failed <- err
		}
	}()

	if err := sess.Login(ctx, self); err != nil {
		logger.Error("Login failed", "error", err)
		stop()
	}

	select {
	case <-ctx.Done():
	case err := <-failed:
		logger.Error("Agent component failed", "error", err)
	}

	logger.Info("Shutting down agent")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = multierr.Combine(sess.Logout(shutdownCtx), server.Shutdown(shutdownCtx))
	for _, c := range closers {
		err = multierr.Append(err, c())
	}
	if err != nil {
		logger.Error("Agent stopped with errors", "error", err)
		os.Exit(1)
	}
	logger.Info("Agent stopped")
}
