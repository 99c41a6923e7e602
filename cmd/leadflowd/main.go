package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/h1v3-io/leadflow/internal/agent"
	apiPkg "github.com/h1v3-io/leadflow/internal/api"
	"github.com/h1v3-io/leadflow/internal/availability"
	"github.com/h1v3-io/leadflow/internal/booking"
	"github.com/h1v3-io/leadflow/internal/calendar"
	"github.com/h1v3-io/leadflow/internal/config"
	"github.com/h1v3-io/leadflow/internal/connector"
	slackconn "github.com/h1v3-io/leadflow/internal/connector/slack"
	"github.com/h1v3-io/leadflow/internal/connector/telegram"
	"github.com/h1v3-io/leadflow/internal/connector/webhook"
	"github.com/h1v3-io/leadflow/internal/crm"
	"github.com/h1v3-io/leadflow/internal/lock"
	"github.com/h1v3-io/leadflow/internal/logbuf"
	"github.com/h1v3-io/leadflow/internal/metrics"
	"github.com/h1v3-io/leadflow/internal/provider"
	"github.com/h1v3-io/leadflow/internal/scheduler"
	"github.com/h1v3-io/leadflow/internal/session"
	"github.com/h1v3-io/leadflow/internal/tool"
)

// sweepBatch caps how many pending bookings one sweep retries.
const sweepBatch = 50

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config JSON file")
	configURL := flag.String("config-url", os.Getenv("LEADFLOW_CONFIG_URL"), "URL of a remote config document")
	configToken := flag.String("config-token", os.Getenv("LEADFLOW_CONFIG_TOKEN"), "Bearer token for -config-url")
	dataDir := flag.String("data-dir", os.Getenv("LEADFLOW_DATA_DIR"), "Overrides service.data_dir for remote config")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Load config (3 modes: file, remote, env)
	var cfg *config.Config
	var err error
	switch {
	case *configPath != "":
		cfg, err = config.Load(*configPath)
	case *configURL != "":
		cfg, err = config.LoadRemote(context.Background(), config.RemoteOptions{
			URL:     *configURL,
			Token:   *configToken,
			DataDir: *dataDir,
		})
	default:
		cfg, err = config.LoadFromEnv()
		if err == nil {
			err = cfg.Validate()
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "leadflowd: %v\n", err)
		os.Exit(1)
	}

	// Set up logging
	logLevel := logbuf.ParseLevel(cfg.Log.Level)
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(cfg.Log.BufferSize)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	logger.Info("leadflowd starting", "company", cfg.Service.Company, "provider", cfg.Provider.Type)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Session store
	if err := os.MkdirAll(cfg.Service.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "path", cfg.Service.DataDir, "error", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(cfg.Service.DataDir, "leadflow.db")
	store, err := session.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("failed to open session store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 2. Provider
	modelTimeout := time.Duration(cfg.Service.ModelTimeout) * time.Second
	prov := newProvider(cfg.Provider, modelTimeout)
	logger.Info("provider initialized", "type", cfg.Provider.Type, "model", cfg.Provider.Model)

	// 3. Calendar, availability and CRM
	cal, err := calendar.NewGoogle(ctx, calendar.Options{
		CalendarID:      cfg.Calendar.CalendarID,
		Timeout:         time.Duration(cfg.Calendar.Timeout) * time.Second,
		InviteAttendees: cfg.Calendar.InviteAttendees,
	}, option.WithCredentialsFile(cfg.Calendar.CredentialsFile))
	if err != nil {
		logger.Error("failed to init calendar", "credentials", cfg.Calendar.CredentialsFile, "error", err)
		os.Exit(1)
	}

	meeting := time.Duration(cfg.Calendar.MeetingMinutes) * time.Minute
	hours := availability.DefaultWorkingHours()
	hours.StartHour, hours.EndHour = cfg.Calendar.WorkStartHour, cfg.Calendar.WorkEndHour
	finder := availability.NewFinder(cal,
		availability.WithHorizon(time.Duration(cfg.Calendar.HorizonDays)*24*time.Hour),
		availability.WithLeadTime(time.Duration(cfg.Calendar.LeadTimeMinutes)*time.Minute),
		availability.WithMeetingLength(meeting),
		availability.WithLimit(cfg.Calendar.SlotLimit),
		availability.WithWorkingHours(hours),
	)

	crmOpts := []crm.Option{crm.WithPhase(cfg.CRM.PhaseID)}
	if cfg.CRM.Endpoint != "" {
		crmOpts = append(crmOpts, crm.WithEndpoint(cfg.CRM.Endpoint))
	}
	crmClient := crm.New(cfg.CRM.APIKey, cfg.CRM.PipeID, crmOpts...)

	booker := booking.New(store, cal, crmClient,
		booking.WithLogger(logger.With("component", "booking")),
		booking.WithCompany(cfg.Service.Company),
		booking.WithCardFields(cfg.CRM.CardFields),
		booking.WithMoveToPhase(cfg.CRM.MoveToPhase),
		booking.WithMeetingLength(meeting),
		booking.WithInvites(cfg.Calendar.InviteAttendees),
	)

	// 4. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// 5. Engine
	tools := tool.NewLeadRegistry(store, finder, logger.With("component", "tool"))
	engine := agent.New(store, prov, tools, booker)
	engine.Logger = logger.With("component", "engine")
	engine.Metrics = m
	engine.Model = cfg.Provider.Model
	engine.MaxSteps = cfg.Service.MaxSteps
	engine.ModelTimeout = modelTimeout
	if cfg.Service.Instructions != "" {
		engine.Instructions = cfg.Service.Instructions
	}

	if cfg.Lock.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to reach redis", "addr", cfg.Lock.RedisAddr, "error", err)
			os.Exit(1)
		}
		lockOpts := []lock.RedisOption{lock.WithLogger(logger)}
		if cfg.Lock.TTL > 0 {
			lockOpts = append(lockOpts, lock.WithTTL(time.Duration(cfg.Lock.TTL)*time.Second))
		}
		engine.Locker = lock.NewRedis(rdb, lockOpts...)
		logger.Info("using redis session lock", "addr", cfg.Lock.RedisAddr)
	}

	// 6. Background jobs
	if !cfg.Scheduler.Disabled {
		sched := scheduler.New(logger.With("component", "scheduler"))
		sweeper := scheduler.NewSweeper(store, engine, sweepBatch, logger.With("component", "sweeper"))
		if err := sweeper.Register(sched, cfg.Scheduler.BookingRetry); err != nil {
			logger.Error("failed to register booking retry", "schedule", cfg.Scheduler.BookingRetry, "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "scheduler", func() { sched.Start(ctx) })
	}

	// 7. Connectors
	inbound := connector.Reply(engine)
	var conns []connector.Connector

	if tc := cfg.Connectors.Telegram; tc != nil {
		tgConn, err := telegram.New(
			telegram.Config{Token: tc.Token, AllowFrom: tc.AllowFrom},
			inbound,
			logger.With("connector", "telegram"),
		)
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		conns = append(conns, tgConn)
	}

	if sc := cfg.Connectors.Slack; sc != nil {
		slackConn, err := slackconn.New(
			slackconn.Config{BotToken: sc.BotToken, AppToken: sc.AppToken, Channels: sc.Channels},
			inbound,
			logger.With("connector", "slack"),
		)
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		conns = append(conns, slackConn)
	}

	for _, c := range conns {
		go safeGo(logger, c.Name(), func() {
			if err := c.Start(ctx); err != nil {
				logger.Error("connector stopped", "connector", c.Name(), "error", err)
			}
		})
		defer c.Stop()
		logger.Info("connector started", "connector", c.Name())
	}

	apiOpts := []apiPkg.Option{
		apiPkg.WithLogger(logger.With("component", "api")),
		apiPkg.WithLogs(logBuf),
		apiPkg.WithMetrics(metrics.Handler(reg)),
	}
	if len(cfg.Connectors.Webhooks) > 0 {
		endpoints := make(map[string]webhook.EndpointConfig, len(cfg.Connectors.Webhooks))
		for name, w := range cfg.Connectors.Webhooks {
			endpoints[name] = webhook.EndpointConfig{Secret: w.Secret, BearerToken: w.BearerToken}
		}
		var wh http.Handler = webhook.New(webhook.Config{Endpoints: endpoints}, inbound, logger.With("connector", "webhook"))
		apiOpts = append(apiOpts, apiPkg.WithWebhooks(wh))
		logger.Info("webhook endpoints enabled", "count", len(endpoints))
	}

	// 8. API server
	apiSrv := apiPkg.NewServer(engine, store, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, apiOpts...)

	go safeGo(logger, "api-server", func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server failed", "error", err)
			stop()
		}
	})

	<-ctx.Done()
	logger.Info("shutting down")
	// Let in-flight handlers observe the cancellation before the store closes.
	time.Sleep(500 * time.Millisecond)
	logger.Info("leadflowd stopped")
}

func newProvider(pcfg config.ProviderConfig, timeout time.Duration) provider.Provider {
	switch pcfg.Type {
	case "anthropic":
		opts := []provider.AnthropicOption{provider.WithAnthropicTimeout(timeout)}
		if pcfg.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(pcfg.BaseURL))
		}
		if pcfg.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(pcfg.Model))
		}
		return provider.NewAnthropic(pcfg.APIKey, opts...)
	default: // "openai" or empty
		opts := []provider.OpenAIOption{provider.WithTimeout(timeout)}
		if pcfg.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(pcfg.BaseURL))
		}
		if pcfg.Model != "" {
			opts = append(opts, provider.WithModel(pcfg.Model))
		}
		return provider.NewOpenAI(pcfg.APIKey, opts...)
	}
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
