package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/iliyamo/event-gate/internal/audit"
	"github.com/iliyamo/event-gate/internal/auth"
	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/config"
	"github.com/iliyamo/event-gate/internal/database"
	"github.com/iliyamo/event-gate/internal/handler"
	"github.com/iliyamo/event-gate/internal/jobs"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/middleware"
	"github.com/iliyamo/event-gate/internal/queue"
	"github.com/iliyamo/event-gate/internal/ratelimit"
	"github.com/iliyamo/event-gate/internal/repository"
	"github.com/iliyamo/event-gate/internal/revocation"
	"github.com/iliyamo/event-gate/internal/router"
	"github.com/iliyamo/event-gate/internal/ticket"
	"github.com/iliyamo/event-gate/internal/token"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.New(0).Fatal("config", "error", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB.Options())
	if err != nil {
		log.Fatal("database", "error", err)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db); err != nil {
		log.Fatal("migrations", "error", err)
	}
	if *migrateOnly {
		log.Info("migrations applied")
		return
	}

	var rdb *redis.Client
	if cfg.RateLimit.Store == "redis" || cfg.Revocation.Store == "redis" {
		rdb = config.NewRedisClient(cfg.Redis)
		if rdb == nil {
			log.Warn("redis unreachable, using in-process stores", "addr", cfg.Redis.Address())
		} else {
			defer func() { _ = rdb.Close() }()
		}
	}

	revocations := revocation.NewRegistry(revocationStore(cfg, db, rdb, log), log)
	limiter := rateLimiter(cfg, rdb, log)
	codec := token.NewCodec(cfg.JWT.Secret, cfg.JWT.AccessTTL)

	users := repository.NewUserRepo(db)
	tickets := repository.NewTicketRepo(db)
	auditor := audit.Multi{audit.NewLogAuditor(log), repository.NewAuditRepo(db)}

	var (
		checkedIn checkin.Publisher
		paid      ticket.PaidPublisher
	)
	if cfg.AMQP.Enabled {
		pub := queue.NewPublisher(cfg.AMQP.URL, log)
		checkedIn, paid = pub, pub
		go queue.NewCheckInConsumer(cfg.AMQP.URL, cfg.CheckIn.LogPath, log).Run(ctx)
	}

	gate := auth.NewGate(codec, revocations, users, auditor, log)
	coordinator := checkin.NewCoordinator(tickets, auditor, checkedIn, log, cfg.CheckIn.QRPrefix)
	ticketService := ticket.NewService(tickets, paid, log, cfg.CheckIn.QRPrefix, cfg.CheckIn.HoldTTL)

	refreshTokens := repository.NewTokenRepo(db)
	runner := startJobs(ctx, cfg, rdb, jobs.NewHandlers(revocations, ticketService, refreshTokens, log), log)
	if runner != nil {
		defer runner.Shutdown()
	}

	e := echo.New()
	e.HideBanner = true
	if e.IPExtractor, err = middleware.IPExtractor(cfg.TrustedProxies); err != nil {
		log.Fatal("TRUSTED_PROXIES", "error", err)
	}
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "remote_ip", v.RemoteIP)
			return nil
		},
	}))

	router.Register(e, router.Deps{
		Limiter: limiter,
		Tokens:  codec,
		Gate:    gate,
		Logger:  log,
		DB:      db,
		Auth: handler.NewAuthHandler(users, refreshTokens, codec, revocations,
			cfg.JWT.RefreshTTL, cfg.BcryptCost, log),
		Tickets: handler.NewTicketHandler(ticketService, log),
		CheckIn: handler.NewCheckInHandler(coordinator),
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
}

func revocationStore(cfg config.Config, db *sql.DB, rdb *redis.Client, log *logger.Logger) revocation.Store {
	switch cfg.Revocation.Store {
	case "redis":
		if rdb != nil {
			return revocation.NewRedisStore(rdb, cfg.Revocation.Prefix)
		}
		log.Warn("revocation store falls back to mysql")
		return repository.NewRevocationRepo(db)
	case "memory":
		return revocation.NewMemoryStore()
	default:
		return repository.NewRevocationRepo(db)
	}
}

func rateLimiter(cfg config.Config, rdb *redis.Client, log *logger.Logger) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	rules, err := cfg.RateLimit.Parse()
	if err != nil {
		log.Fatal("rate limit rules", "error", err)
	}
	var store ratelimit.CounterStore = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Store == "redis" && rdb != nil {
		store = ratelimit.NewRedisStore(rdb)
	}
	return ratelimit.NewLimiter(rules, store, cfg.RateLimit.Prefix)
}

// startJobs schedules maintenance through asynq when Redis is up and
// otherwise runs it on local tickers. It returns nil in the local case.
func startJobs(ctx context.Context, cfg config.Config, rdb *redis.Client, h *jobs.Handlers, log *logger.Logger) *jobs.Runner {
	every := jobs.Intervals{Sweep: cfg.Revocation.SweepInterval, Expire: cfg.CheckIn.ExpireInterval}
	reachable := rdb != nil
	if !reachable {
		if probe := config.NewRedisClient(cfg.Redis); probe != nil {
			_ = probe.Close()
			reachable = true
		}
	}
	if reachable {
		opt := asynq.RedisClientOpt{
			Addr:      cfg.Redis.Address(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			TLSConfig: cfg.Redis.Options().TLSConfig,
		}
		runner, err := jobs.Start(opt, h, every)
		if err == nil {
			return runner
		}
		log.Warn("asynq unavailable, running maintenance locally", "error", err)
	}
	go jobs.RunLocal(ctx, h, every)
	return nil
}
