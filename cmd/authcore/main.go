package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/cache"
	"github.com/dropDatabas3/authcore/internal/config"
	httpx "github.com/dropDatabas3/authcore/internal/http"
	"github.com/dropDatabas3/authcore/internal/http/handlers"
	jwtx "github.com/dropDatabas3/authcore/internal/jwt"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/rate"
	"github.com/dropDatabas3/authcore/internal/security/cipher"
	"github.com/dropDatabas3/authcore/internal/security/password"
	"github.com/dropDatabas3/authcore/internal/store/memory"
	"github.com/dropDatabas3/authcore/internal/store/pg"
)

var version = "dev"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "ruta del YAML de configuración")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       os.Getenv("LOG_LEVEL"),
		ServiceName: "authcore",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Storage ───
	var pgStore *pg.Store
	var memStore *memory.Store

	switch cfg.Storage.Driver {
	case "postgres":
		lifetime, _ := time.ParseDuration(cfg.Storage.Postgres.ConnMaxLifetime)
		pgStore, err = pg.New(ctx, cfg.Storage.DSN, pg.Options{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			ConnMaxLifetime: lifetime,
		})
		if err != nil {
			log.Fatal("postgres connect failed", logger.Err(err))
		}
		defer pgStore.Close()
	case "memory":
		memStore = memory.New()
		log.Warn("using in-memory storage, data will not survive restarts")
	default:
		log.Fatal("unknown storage driver", logger.String("driver", cfg.Storage.Driver))
	}

	// ─── Cache ───
	cacheClient, err := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.CacheMemoryTTL(),
	})
	if err != nil {
		log.Fatal("cache init failed", logger.Err(err))
	}
	defer func() { _ = cacheClient.Close() }()

	// ─── Crypto + tokens ───
	secretCipher, err := cipher.New(cfg.Crypto.SecretKey, cfg.Crypto.SecretIV)
	if err != nil {
		log.Fatal("cipher init failed", logger.Err(err))
	}

	issuer := jwtx.NewIssuer(cfg.JWT.Issuer, cfg.JWT.Audience, []byte(cfg.JWT.SigningKey))
	issuer.AccessTTL = cfg.AccessTTL()

	// ─── Rate limiting ───
	var loginLimiter rate.Limiter
	if cfg.Rate.Enabled {
		if cfg.Cache.Kind == "redis" {
			client := rdb.NewClient(&rdb.Options{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
			})
			defer func() { _ = client.Close() }()
			loginLimiter = rate.NewRedisLimiter(client, "rate", cfg.Rate.Login.Limit, cfg.LoginRateWindow())
		} else {
			loginLimiter = rate.NewMemoryLimiter(cfg.Rate.Login.Limit, cfg.LoginRateWindow())
		}
	}

	// ─── Service ───
	deps := auth.Deps{
		Issuer: issuer,
		Cipher: secretCipher,
		Cache:  cacheClient,
		Policy: password.Policy{
			MinLength:     cfg.Security.PasswordPolicy.MinLength,
			RequireUpper:  cfg.Security.PasswordPolicy.RequireUpper,
			RequireLower:  cfg.Security.PasswordPolicy.RequireLower,
			RequireDigit:  cfg.Security.PasswordPolicy.RequireDigit,
			RequireSymbol: cfg.Security.PasswordPolicy.RequireSymbol,
		},
		TotpIssuer:      cfg.TOTP.Issuer,
		TotpWindowSteps: cfg.TOTP.WindowSteps,
		RefreshTTL:      cfg.RefreshTTL(),
		ChallengeTTL:    cfg.ChallengeTTL(),
	}
	if pgStore != nil {
		deps.Principals = pgStore.Principals()
		deps.Refresh = pgStore.Refresh()
	} else {
		deps.Principals = memStore.Principals()
		deps.Refresh = memStore.Refresh()
	}
	svc := auth.NewService(deps)

	// ─── HTTP ───
	var poolFn func() *pgxpool.Pool
	if pgStore != nil {
		poolFn = pgStore.Pool
	}
	metricsHandler, err := httpx.RegisterMetrics(httpx.MetricsConfig{Pool: poolFn})
	if err != nil {
		log.Fatal("metrics init failed", logger.Err(err))
	}

	router := httpx.NewRouter(httpx.RouterDeps{
		Issuer:       issuer,
		LoginLimiter: loginLimiter,
		Metrics:      metricsHandler,
		Ready: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if pgStore != nil {
				if err := pgStore.Pool().Ping(pingCtx); err != nil {
					return fmt.Errorf("postgres: %w", err)
				}
			}
			if err := cacheClient.Ping(pingCtx); err != nil {
				return fmt.Errorf("cache: %w", err)
			}
			return nil
		},
		Register:      handlers.NewRegisterHandler(svc),
		Login:         handlers.NewLoginHandler(svc),
		LoginWithTotp: handlers.NewLoginWithTotpHandler(svc),
		Refresh:       handlers.NewRefreshHandler(svc),
		TotpEnable:    handlers.NewTotpEnableHandler(svc),
		TotpVerify:    handlers.NewTotpVerifyHandler(svc),
		TotpDisable:   handlers.NewTotpDisableHandler(svc),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpx.Serve(gctx, cfg.Server.Addr, router)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server exited", logger.Err(err))
	}
	log.Info("shutdown complete")
}
