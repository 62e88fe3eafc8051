package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"novelverse/internal/adapters/repo"
	"novelverse/internal/domain"
	"novelverse/internal/infra/cache"
	"novelverse/internal/infra/config"
	"novelverse/internal/infra/db"
	applog "novelverse/internal/infra/log"
	"novelverse/internal/infra/metrics"
	"novelverse/internal/infra/queue"
	"novelverse/internal/usecase/activity"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("activity-worker: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	redisCache := cache.NewRedis(redisClient)

	var openQueue domain.OpenEventQueue
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.NewAMQPOpenQueue(cfg.AMQPURL, cfg.Queues.Opens)
		if err != nil {
			logger.Fatal().Err(err).Msg("activity-worker: нет подключения к RabbitMQ")
		}
		defer amqpQueue.Close()
		openQueue = amqpQueue
	} else {
		openQueue = queue.NewRedisOpenQueue(redisClient, cfg.Queues.Opens)
	}

	repoAdapter := repo.NewPostgres(pool)
	service := activity.NewService(repoAdapter, repoAdapter, redisCache, logger)

	logger.Info().Msg("activity-worker: запуск обработки очереди")
	if err := service.Run(ctx, openQueue); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("activity-worker: цикл завершился с ошибкой")
	}
	logger.Info().Msg("activity-worker: остановлен")
}
