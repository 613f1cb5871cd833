// Command server runs the Boardly realtime board-game backend.
package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KovalDenys1/boardly/internal/alerts"
	"github.com/KovalDenys1/boardly/internal/auth"
	"github.com/KovalDenys1/boardly/internal/bot"
	"github.com/KovalDenys1/boardly/internal/bus"
	"github.com/KovalDenys1/boardly/internal/config"
	"github.com/KovalDenys1/boardly/internal/database"
	"github.com/KovalDenys1/boardly/internal/handlers"
	"github.com/KovalDenys1/boardly/internal/identity"
	"github.com/KovalDenys1/boardly/internal/lobby"
	"github.com/KovalDenys1/boardly/internal/match"
	"github.com/KovalDenys1/boardly/internal/presence"
	"github.com/KovalDenys1/boardly/internal/rules"
	"github.com/KovalDenys1/boardly/internal/rules/rps"
	"github.com/KovalDenys1/boardly/internal/rules/spy"
	"github.com/KovalDenys1/boardly/internal/rules/tictactoe"
	"github.com/KovalDenys1/boardly/internal/rules/yahtzee"
	"github.com/KovalDenys1/boardly/internal/telemetry"
	"github.com/KovalDenys1/boardly/internal/ws"
)

func main() {
	root := &cobra.Command{
		Use:   "boardly-server",
		Short: "Realtime multiplayer board-game backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	sinks := telemetry.MultiSink{telemetry.NewLogrusSink(logger)}
	if cfg.RedisAddr != "" {
		redisSink, err := telemetry.NewRedisSink(cfg.RedisAddr, "", cfg.RedisDB, logger)
		if err != nil {
			logger.Warnf("redis telemetry disabled: %v", err)
		} else {
			defer redisSink.Close()
			sinks = append(sinks, redisSink)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *database.Store
	if cfg.DatabaseDSN != "" {
		store, err = database.Connect(ctx, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("connected to postgres")
	} else {
		logger.Warn("no database configured; running in-memory only")
	}

	tokens, err := auth.NewTokenService(cfg.TokenSecret)
	if err != nil {
		return err
	}

	registry := rules.NewRegistry()
	registry.Register(tictactoe.New())
	registry.Register(yahtzee.New())
	registry.Register(rps.New())
	registry.Register(spy.New())

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	tictactoe.RegisterStrategies(registry, rng)
	yahtzee.RegisterStrategies(registry, rng)
	rps.RegisterStrategies(registry, rng)
	spy.RegisterStrategies(registry, rng)

	events := bus.New()

	var userStore identity.UserStore
	var lobbyStore lobby.Store
	var gameRepo match.Repo
	var alertStore alerts.Store
	if store != nil {
		userStore = store
		lobbyStore = store
		gameRepo = store
		if store.HasAlertTable(ctx) {
			alertStore = store
		} else {
			logger.Warn("operational_alert_states table missing; alert evaluator runs stateless")
		}
	}

	baseSink := telemetry.NewLogrusSink(logger)
	var notifier alerts.Notifier
	if cfg.AlertWebhookURL != "" {
		notifier = alerts.NewWebhookNotifier(cfg.AlertWebhookURL, cfg.RunbookBaseURL, baseSink)
	}
	evaluator := alerts.NewEvaluator(alerts.DefaultRules(), alertStore, notifier, baseSink)

	// Transport-side telemetry feeds the evaluator via the sample bridge;
	// move timing samples arrive through the runtime's recorder instead.
	sinks = append(sinks, alerts.NewSampleSink(evaluator, "auth_refresh_failure", "rejoin_timeout"))
	var sink telemetry.Sink = sinks

	resolver := identity.NewResolver(tokens, userStore, sink)
	lobbies := lobby.NewRegistry(lobbyStore, events, resolver, sink)
	runtime := match.NewRuntime(registry, lobbies, resolver, gameRepo, events, sink)
	runtime.SetApplyTarget(time.Duration(cfg.MoveApplyTargetMS) * time.Millisecond)
	runtime.SetRecorder(evaluator)

	executor := bot.NewExecutor(runtime, registry, events, sink)

	pres := presence.NewManager(lobbies, runtime, events, sink)
	pres.SetGrace(time.Duration(cfg.DisconnectGraceS) * time.Second)

	adapter := ws.NewAdapter(resolver, lobbies, runtime, pres, events, sink, logger)

	api := &handlers.API{
		Tokens:        tokens,
		Resolver:      resolver,
		Lobbies:       lobbies,
		Runtime:       runtime,
		Bots:          executor,
		Events:        events,
		Adapter:       adapter,
		Sink:          sink,
		Logger:        logger,
		PublicBaseURL: cfg.PublicBaseURL,
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.Router(),
		ReadTimeout:  0, // websocket handshakes may be slow; auth has its own deadline
		WriteTimeout: 0,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := evaluator.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := resolver.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
