package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/aziz-dev/backend-kassa/internal/auth"
	"github.com/aziz-dev/backend-kassa/internal/catalog"
	"github.com/aziz-dev/backend-kassa/internal/common"
	"github.com/aziz-dev/backend-kassa/internal/config"
	"github.com/aziz-dev/backend-kassa/internal/customer"
	"github.com/aziz-dev/backend-kassa/internal/db"
	"github.com/aziz-dev/backend-kassa/internal/debt"
	"github.com/aziz-dev/backend-kassa/internal/events"
	"github.com/aziz-dev/backend-kassa/internal/health"
	"github.com/aziz-dev/backend-kassa/internal/kassa"
	"github.com/aziz-dev/backend-kassa/internal/lock"
	"github.com/aziz-dev/backend-kassa/internal/obs"
	"github.com/aziz-dev/backend-kassa/internal/ratelimit"
	"github.com/aziz-dev/backend-kassa/internal/receipt"
	"github.com/aziz-dev/backend-kassa/internal/security"
	"github.com/aziz-dev/backend-kassa/internal/settlement"
	"github.com/aziz-dev/backend-kassa/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsEnabled := envBool("OBS_ENABLE_METRICS", true)
	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "kassa")
	if metricsEnabled {
		obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   envOrDefault("OBS_SERVICE_NAME", "kassa-api"),
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", "localhost:4318"),
			Exporter:      envOrDefault("OBS_TRACE_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACE_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise tracing")
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	if envBool("DB_AUTO_MIGRATE", true) {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()
	queries := db.New(pool)

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	asynqClient := asynq.NewClient(asynqOpt)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	bus := &events.Bus{Store: queries, Enqueuer: tasks.Enqueuer{Client: asynqClient}}

	validate := validator.New()

	authService, err := auth.NewService(auth.Config{
		Queries:        queries,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{Service: authService}
	authMiddleware := auth.Middleware{Service: authService}

	catalogSvc := &catalog.Service{
		Q:     queries,
		DB:    pool,
		Cache: catalog.NewCache(redisClient, envDurationMillis("CATALOG_CACHE_TTL_MS", 60_000)),
	}
	catalogHandler := &catalog.Handler{Service: catalogSvc, Validate: validate}

	customerHandler := &customer.Handler{Service: &customer.Service{Q: queries}, Validate: validate}

	settleSvc := &settlement.Service{
		DB:       pool,
		Q:        queries,
		Events:   bus,
		DebtTerm: cfg.DebtTerm(),
	}

	kassaSvc := &kassa.Service{
		Q:       queries,
		Settler: settleSvc,
		Lock:    lock.Locker{R: redisClient, RetryBackoff: 50 * time.Millisecond},
		LockTTL: envDurationMillis("CHECKOUT_LOCK_TTL_MS", 10_000),
	}
	kassaHandler := &kassa.Handler{Service: kassaSvc, Validate: validate}

	debtSvc := &debt.Service{Q: queries, DB: pool, Events: bus, DebtTerm: cfg.DebtTerm()}
	debtHandler := &debt.Handler{Service: debtSvc, Validate: validate}

	receiptHandler := &receipt.Handler{Service: &receipt.Service{Q: queries, Reverser: settleSvc}}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	loginLimiter := mustInitLoginLimiter(cfg, redisClient, logger)

	checkoutLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "kassa:rl:checkout:"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return clientKey(r) },
			Window: time.Second,
			Max:    cfg.CheckoutRPS,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("checkout rate limit") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: envBool("SECURE_HEADERS", true)}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("HTTP_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		r.Mount("/debug/pprof", newPprofMux())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.With(loginLimiter.Handler).Post("/auth/login", authHandler.Login)

		v.Group(func(g chi.Router) {
			g.Use(authMiddleware.RequireAuth)

			g.Get("/auth/me", authHandler.Me)

			g.Post("/kassa/preview", kassaHandler.Preview)
			g.With(idem.Middleware, checkoutLimit.Middleware).Post("/kassa/checkout", kassaHandler.Checkout)

			g.Get("/products", catalogHandler.Products)
			g.Get("/products/{id}", catalogHandler.Product)

			g.Get("/customers", customerHandler.Customers)
			g.Get("/customers/{id}", customerHandler.Customer)
			g.Post("/customers", customerHandler.CreateCustomer)
			g.Put("/customers/{id}", customerHandler.UpdateCustomer)

			g.Get("/customers/{id}/debts", debtHandler.CustomerDebts)
			g.Post("/customers/{id}/debt-payments", debtHandler.PayCustomerDebts)
			g.Get("/debts", debtHandler.Debts)
			g.Get("/debts/{id}", debtHandler.Debt)
			g.Post("/debts", debtHandler.CreateDebt)
			g.Post("/debts/{id}/payments", debtHandler.PayDebt)

			g.Get("/receipts", receiptHandler.Receipts)
			g.Get("/receipts/{id}", receiptHandler.Receipt)
		})

		v.Group(func(admin chi.Router) {
			admin.Use(authMiddleware.RequireRole(auth.RoleAdmin))

			admin.Post("/auth/staff", authHandler.CreateStaff)
			admin.Post("/products", catalogHandler.CreateProduct)
			admin.Put("/products/{id}", catalogHandler.UpdateProduct)
			admin.Post("/debts/{id}/approve", debtHandler.ApproveDebt)
			admin.Post("/debts/{id}/reject", debtHandler.RejectDebt)
			admin.Delete("/receipts/{id}", receiptHandler.DeleteReceipt)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	health.SetReady(true)
	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "kassa-api"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func mustInitLoginLimiter(cfg *config.Config, redisClient *redis.Client, logger zerolog.Logger) *limiterstdlib.Middleware {
	rate, err := limiter.NewRateFromFormatted(cfg.LoginRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse login rate limit")
	}
	store, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
		Prefix: "kassa:rl:login",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise login rate limit store")
	}
	return limiterstdlib.NewMiddleware(limiter.New(store, rate))
}

// clientKey prefers the authenticated staff id over the remote address so a
// shared shop IP does not throttle all registers at once.
func clientKey(r *http.Request) string {
	if staffID, ok := common.StaffID(r.Context()); ok && staffID != "" {
		return staffID
	}
	return common.ClientIP(r)
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/allocs", pprof.Handler("allocs"))
	return mux
}
