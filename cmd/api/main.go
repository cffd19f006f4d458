package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-streamshop/internal/analytics"
	"github.com/noah-isme/backend-streamshop/internal/app"
	"github.com/noah-isme/backend-streamshop/internal/audit"
	"github.com/noah-isme/backend-streamshop/internal/auth"
	"github.com/noah-isme/backend-streamshop/internal/cart"
	"github.com/noah-isme/backend-streamshop/internal/catalog"
	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/config"
	"github.com/noah-isme/backend-streamshop/internal/db"
	"github.com/noah-isme/backend-streamshop/internal/events"
	"github.com/noah-isme/backend-streamshop/internal/health"
	"github.com/noah-isme/backend-streamshop/internal/notify"
	"github.com/noah-isme/backend-streamshop/internal/obs"
	"github.com/noah-isme/backend-streamshop/internal/order"
	"github.com/noah-isme/backend-streamshop/internal/queue"
	"github.com/noah-isme/backend-streamshop/internal/ratelimit"
	"github.com/noah-isme/backend-streamshop/internal/security"
	"github.com/noah-isme/backend-streamshop/internal/trial"
)

const (
	accessCookieName  = "ss_access"
	refreshCookieName = "ss_refresh"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "streamshop")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "streamshop-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if envBool("DB_AUTO_MIGRATE", true) {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, "streamshop-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	validate := validator.New()

	catalogStore := catalog.NewStore(pool)
	catalogCache := catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Queries:      catalogStore,
		Cache:        catalogCache,
		DefaultPage:  cfg.CatalogDefaultPage,
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})
	catalogAdmin := &catalog.AdminHandler{Store: catalogStore, Cache: catalogCache, Validate: validate}

	authService, err := auth.NewService(auth.Config{
		Queries:         auth.NewStore(pool),
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{
		Service:           authService,
		AccessCookieName:  accessCookieName,
		RefreshCookieName: refreshCookieName,
		CookieDomain:      cfg.CookieDomain,
		CookieSecure:      cfg.CookieSecure,
		CookieSameSite:    cfg.CookieSameSite,
	}
	authMiddleware := auth.Middleware{Service: authService, AccessCookie: accessCookieName}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	cartSvc := &cart.Service{
		Q:        cart.NewStore(pool),
		Products: catalogStore,
		Engine:   catalogService.Engine(),
		Currency: cfg.CurrencyCode,
		TTL:      cfg.CartTTL,
	}
	cartHandler := &cart.Handler{Svc: cartSvc, Validate: validate}

	taskQueue := queue.Enqueuer{
		R:        redisClient,
		Prefix:   envOrDefault("QUEUE_REDIS_PREFIX", "streamshop"),
		DedupTTL: cfg.IdempotencyTTL,
	}
	dispatcher := notify.Dispatcher{
		Queue:              taskQueue,
		DefaultMaxAttempts: envInt("NOTIFY_EMAIL_MAX_ATTEMPTS", 6),
	}
	bus := &events.Bus{
		Store:     events.NewStore(pool),
		Notifiers: []events.Notifier{dispatcher},
	}

	orderSvc := &order.Service{Store: order.NewStore(pool), Carts: cartSvc, Events: bus}
	orderHandler := &order.Handler{
		Svc:                 orderSvc,
		Validate:            validate,
		PaymentInstructions: envOrDefault("PAYMENT_INSTRUCTIONS", ""),
	}
	orderAdmin := &order.AdminHandler{Svc: orderSvc}

	analyticsSvc := &analytics.Service{
		Q:            analytics.NewStore(pool),
		R:            redisClient,
		TTL:          cfg.AnalyticsCacheTTL,
		DefaultRange: envInt("ANALYTICS_DEFAULT_RANGE_DAYS", 7),
	}
	analyticsHandler := &analytics.Handler{Svc: analyticsSvc}

	auditSvc := &audit.Service{
		Store:        audit.NewStore(pool),
		Enabled:      envBool("AUDIT_ENABLED", true),
		SamplingRate: envFloat("AUDIT_SAMPLING_RATE", 1.0),
	}
	auditRecorder := audit.HTTPRecorder{
		Service: auditSvc,
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
	}
	auditHandler := audit.Handler{Store: auditSvc.Store}

	queueAdmin := &queue.AdminHandler{
		Store:  queue.NewStore(pool),
		Queue:  taskQueue,
		Logger: logger,
	}

	var trialHandler *trial.Handler
	if strings.TrimSpace(cfg.TrialFunctionURL) != "" {
		trialSvc, err := trial.NewService(trial.Config{
			URL: cfg.TrialFunctionURL,
			Key: cfg.TrialFunctionKey,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise trial service")
		}
		limiterStore, err := app.NewLimiterStore(redisClient)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise trial limiter store")
		}
		rate, err := limiter.NewRateFromFormatted(cfg.TrialRateLimit)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse trial rate limit")
		}
		trialHandler = &trial.Handler{
			Svc:      trialSvc,
			Limiter:  limiter.New(limiterStore, rate),
			Validate: validate,
		}
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
	r.Use(security.Headers{Enable: envBool("SECURE_HEADERS_ENABLE", true)}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", true) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	quoteLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:quote"},
		Config: ratelimit.Config{
			Key:    func(req *http.Request) string { return common.ClientIP(req) },
			Window: time.Minute,
			Max:    envInt("QUOTE_RATE_LIMIT_PER_MINUTE", 120),
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("quote rate limiter") },
	}

	// Double-submit protection for writes that ride the auth cookies.
	// Bearer-token admin clients pass through untouched.
	csrf := security.CSRF{}

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{slug}", catalogHandler.ProductDetail)
		v.With(quoteLimiter.Middleware).Get("/products/{slug}/quote", catalogHandler.ProductQuote)
		v.Get("/plans", catalogHandler.Plans)
		v.With(quoteLimiter.Middleware).Get("/plans/{slug}/price", catalogHandler.PlanPrice)

		v.Post("/track", analyticsHandler.Track)

		if trialHandler != nil {
			v.Post("/trial", trialHandler.Provision)
		}

		v.Route("/auth", func(a chi.Router) {
			a.Post("/register", authHandler.Register)
			a.Post("/login", authHandler.Login)
			a.With(csrf.Middleware).Post("/refresh", authHandler.Refresh)
			a.With(csrf.Middleware).Post("/logout", authHandler.Logout)

			a.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Get("/me", authHandler.Me)
			})
		})

		v.Route("/carts", func(c chi.Router) {
			c.Get("/{id}", cartHandler.Get)
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", cartHandler.Create)
				g.Post("/{id}/items", cartHandler.AddItem)
				g.Patch("/{id}/items/{itemId}", cartHandler.UpdateItem)
				g.Delete("/{id}/items/{itemId}", cartHandler.RemoveItem)
			})
		})

		v.With(idem.Middleware).Post("/checkout", orderHandler.Checkout)
		v.Get("/orders/{id}", orderHandler.Get)
		v.Post("/orders/{id}/cancel", orderHandler.Cancel)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(csrf.Middleware)
			admin.Use(authMiddleware.RequireAuth)
			admin.Use(authMiddleware.RequireRole(auth.RoleAdmin))

			admin.With(auditRecorder.Middleware(audit.HTTPConfig{
				ResourceType: "product",
			})).Post("/products", catalogAdmin.CreateProduct)
			admin.With(auditRecorder.Middleware(audit.HTTPConfig{
				ResourceType:    "product",
				ResourceIDParam: "id",
			})).Patch("/products/{id}/price", catalogAdmin.UpdateProductPrice)
			admin.With(auditRecorder.Middleware(audit.HTTPConfig{
				ResourceType:    "plan",
				ResourceIDParam: "id",
			})).Put("/plans/{id}/prices/{devices}", catalogAdmin.UpsertPlanPrice)

			admin.Get("/orders", orderAdmin.List)
			admin.Get("/orders/{id}", orderAdmin.Get)
			admin.With(auditRecorder.Middleware(audit.HTTPConfig{
				ResourceType:    "order",
				ResourceIDParam: "id",
			})).Patch("/orders/{id}/status", orderAdmin.PatchStatus)

			admin.Get("/analytics/overview", analyticsHandler.Overview)
			admin.Get("/audit-logs", auditHandler.List)

			admin.Get("/queue/dlq", queueAdmin.ListDLQ)
			admin.Post("/queue/dlq/replay", queueAdmin.ReplayDLQ)
			admin.Get("/queue/stats", queueAdmin.Stats)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
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
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
