package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-streamshop/internal/analytics"
	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/config"
	"github.com/noah-isme/backend-streamshop/internal/db"
	"github.com/noah-isme/backend-streamshop/internal/lock"
	"github.com/noah-isme/backend-streamshop/internal/notify"
	"github.com/noah-isme/backend-streamshop/internal/obs"
	"github.com/noah-isme/backend-streamshop/internal/queue"
)

const taskAnalyticsRollup = "analytics:rollup"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "streamshop"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, "streamshop-worker")
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
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	analyticsSvc := &analytics.Service{Q: analytics.NewStore(pool), R: redisClient}
	locker := lock.Locker{R: redisClient}

	asynqOpt := asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskAnalyticsRollup, func(jobCtx context.Context, _ *asynq.Task) error {
		return locker.WithLock(jobCtx, "lock:analytics:rollup", 2*time.Minute, func(lockCtx context.Context) error {
			now := time.Now().UTC()
			for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
				flushed, err := analyticsSvc.Rollup(lockCtx, day)
				if err != nil {
					return err
				}
				if flushed > 0 {
					logger.Info().Str("day", day.Format("2006-01-02")).Int("paths", flushed).Msg("page views rolled up")
				}
			}
			return nil
		})
	})

	srv := asynq.NewServer(asynqOpt, asynq.Config{
		Concurrency: 2,
		Logger:      asynqLogger{logger},
	})

	scheduler := asynq.NewScheduler(asynqOpt, &asynq.SchedulerOpts{
		Logger: asynqLogger{logger},
	})
	rollupCron := envOrDefault("ANALYTICS_ROLLUP_CRON", "*/10 * * * *")
	if _, err := scheduler.Register(rollupCron, asynq.NewTask(taskAnalyticsRollup, nil)); err != nil {
		logger.Fatal().Err(err).Msg("register rollup schedule")
	}

	emailWorker := queue.Worker{
		R:           redisClient,
		Prefix:      envOrDefault("QUEUE_REDIS_PREFIX", "streamshop"),
		Kind:        notify.EmailSendTask(),
		Concurrency: 4,
		Store:       queue.NewStore(pool),
		Handler:     notify.HandleEmailTask(emailSender(logger)),
	}

	errCh := make(chan error, 3)
	go func() { errCh <- srv.Run(mux) }()
	go func() { errCh <- scheduler.Run() }()
	go func() { errCh <- emailWorker.Run(ctx) }()

	logger.Info().Msg("worker starting")
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("worker stopped with error")
		}
	}

	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// emailSender returns the outbound mail implementation. Delivery integration
// is environment-specific, so the default logs the message instead.
func emailSender(logger zerolog.Logger) common.EmailSender {
	return logSender{logger: logger}
}

type logSender struct {
	logger zerolog.Logger
}

func (s logSender) Send(to, subject, _ string) error {
	s.logger.Info().Str("to", to).Str("subject", subject).Msg("email dispatched")
	return nil
}

type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msgf("%v", args) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msgf("%v", args) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msgf("%v", args) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msgf("%v", args) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msgf("%v", args) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
