package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/auditlog"
	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/dispatch"
	"github.com/swaffX/neuroviabot-website-sub003/automod/engine"
	"github.com/swaffX/neuroviabot-website-sub003/automod/ledger"
	"github.com/swaffX/neuroviabot-website-sub003/automod/rules"
	"github.com/swaffX/neuroviabot-website-sub003/automod/violationstore"

	"github.com/bwmarrin/discordgo"
	"github.com/labstack/echo/v4"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type Server struct {
	logger  *slog.Logger
	engine  *engine.Engine
	audit   *engine.AuditQueue
	session *discordgo.Session
	// set when guild configs come from a local file, for reloads
	fileConfigs *config.FileProvider

	echo          *echo.Echo
	httpd         *http.Server
	metricsListen string

	workers     int64
	sem         *semaphore.Weighted
	consumerCtx context.Context
	userWorkers *xsync.MapOf[string, *userWorker]
	inflight    sync.WaitGroup
	closers     []func() error
}

type Config struct {
	Logger           *slog.Logger
	DiscordToken     string
	GuildConfigFile  string
	RedisURL         string
	DatabaseURL      string
	MaxDBConnections int
	DryRun           bool
	Bind             string
	MetricsListen    string
	AdminPassword    string
	SlackWebhookURL  string
	Workers          int
	DispatchRate     float64
	QuotaKickDay     int
	QuotaBanDay      int
	LedgerIdleTTL    time.Duration
	ConfigCacheTTL   time.Duration
	DispatchTimeout  time.Duration
}

func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	s := &Server{
		logger:        logger,
		metricsListen: cfg.MetricsListen,
		userWorkers:   xsync.NewMapOf[string, *userWorker](),
	}

	configs, err := s.setupConfigProvider(cfg)
	if err != nil {
		return nil, err
	}

	store, err := s.setupViolationStore(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.DiscordToken != "" {
		sess, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return nil, fmt.Errorf("creating discord session: %w", err)
		}
		sess.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
		// handlers run on the gateway goroutine, so messages reach the per-user queues in order
		sess.SyncEvents = true
		sess.AddHandler(s.handleMessageCreate)
		s.session = sess
	} else {
		logger.Warn("no discord token configured, not connecting to gateway")
	}

	var dispatcher engine.Dispatcher
	if cfg.DryRun || s.session == nil {
		logger.Info("punishments will be logged, not applied")
		dispatcher = &dispatch.LogDispatcher{Logger: logger}
	} else {
		dispatcher = dispatch.NewDiscordDispatcher(s.session, dispatch.DiscordConfig{
			Logger:            logger,
			RequestsPerSecond: cfg.DispatchRate,
			QuotaKickDay:      cfg.QuotaKickDay,
			QuotaBanDay:       cfg.QuotaBanDay,
		})
	}

	sinks := engine.MultiSink{&auditlog.LogSink{Logger: logger}}
	if s.session != nil {
		sinks = append(sinks, &auditlog.ChannelWriter{Session: s.session})
	}
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, &auditlog.SlackNotifier{SlackWebhookURL: cfg.SlackWebhookURL})
	}
	s.audit = engine.NewAuditQueue(sinks, 1000, logger)

	s.engine = &engine.Engine{
		Logger: logger,
		Config: configs,
		Ledger: ledger.New(ledger.Config{
			Store:   store,
			IdleTTL: cfg.LedgerIdleTTL,
			Logger:  logger,
		}),
		Rules:           rules.DefaultRules(),
		Dispatcher:      dispatcher,
		Audit:           s.audit,
		DispatchTimeout: cfg.DispatchTimeout,
	}

	s.workers = int64(cfg.Workers)
	if s.workers <= 0 {
		s.workers = 64
	}
	s.sem = semaphore.NewWeighted(s.workers)

	if cfg.Bind != "" {
		s.echo = s.newAdminAPI(cfg.AdminPassword)
		s.httpd = &http.Server{
			Handler:        s.echo,
			Addr:           cfg.Bind,
			WriteTimeout:   time.Minute,
			ReadTimeout:    time.Minute,
			MaxHeaderBytes: 1 * (1024 * 1024),
		}
	}
	return s, nil
}

func (s *Server) setupConfigProvider(cfg Config) (config.Provider, error) {
	switch {
	case cfg.GuildConfigFile != "":
		fp, err := config.NewFileProvider(cfg.GuildConfigFile)
		if err != nil {
			return nil, fmt.Errorf("loading guild config file: %w", err)
		}
		s.logger.Info("loaded guild configs from JSON", "path", cfg.GuildConfigFile)
		s.fileConfigs = fp
		return fp, nil
	case cfg.RedisURL != "":
		rp, err := config.NewRedisProvider(cfg.RedisURL, cfg.ConfigCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis config provider: %w", err)
		}
		// keeps prepared snapshots, so lookup tables are not rebuilt per message
		return config.NewCachingProvider(rp, 10_000, cfg.ConfigCacheTTL), nil
	default:
		s.logger.Warn("no guild config source configured, automod is disabled for every guild")
		return config.NewMemProvider(), nil
	}
}

func (s *Server) setupViolationStore(cfg Config) (violationstore.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		db, err := violationstore.OpenDatabase(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return nil, fmt.Errorf("opening violation database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			s.closers = append(s.closers, sqlDB.Close)
		}
		return violationstore.NewGormStore(db)
	case cfg.RedisURL != "":
		rs, err := violationstore.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis violation store: %w", err)
		}
		s.closers = append(s.closers, rs.Client.Close)
		return rs, nil
	default:
		s.logger.Warn("no violation store configured, violation counts are lost on restart")
		return nil, nil
	}
}

// Runs every service component until ctx is cancelled, then drains in-flight work and persists ledger state.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.engine.Run(gctx, 0, 0)
	})
	if s.metricsListen != "" {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			return serveUntilDone(gctx, s.logger, &http.Server{Addr: s.metricsListen, Handler: mux})
		})
	}
	if s.httpd != nil {
		g.Go(func() error {
			return serveUntilDone(gctx, s.logger, s.httpd)
		})
	}
	if s.session != nil {
		g.Go(func() error {
			return s.RunConsumer(gctx)
		})
	}

	err := g.Wait()
	if shutdownErr := s.Shutdown(); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}
	return err
}

// Waits for in-flight evaluations, flushes the ledger, and drains the audit queue.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := s.waitForWorkers(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for in-flight evaluations: %w", err))
	}
	if err := s.engine.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("persisting ledger: %w", err))
	}
	if err := s.audit.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("draining audit queue: %w", err))
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Waits until every per-user queue has drained.
func (s *Server) waitForWorkers(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func serveUntilDone(ctx context.Context, logger *slog.Logger, httpd *http.Server) error {
	logger.Info("starting server", "bind", httpd.Addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpd.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server (%s) shutting down unexpectedly: %w", httpd.Addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpd.Shutdown(shutdownCtx)
	}
}
