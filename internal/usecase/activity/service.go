package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"novelverse/internal/domain"
	"novelverse/internal/infra/metrics"
)

const eventDedupTTL = 24 * time.Hour

// Service обрабатывает события открытия книг из очереди и ведёт посуточные
// агрегаты активности.
type Service struct {
	activity     domain.ActivityRepo
	businessRepo domain.BusinessMetricRepo
	cache        domain.Cache
	log          zerolog.Logger
}

// NewService создаёт обработчик событий активности.
func NewService(activity domain.ActivityRepo, businessRepo domain.BusinessMetricRepo, cache domain.Cache, logger zerolog.Logger) *Service {
	return &Service{activity: activity, businessRepo: businessRepo, cache: cache, log: logger}
}

// HandleOpen фиксирует открытие книги. Повторная доставка того же события
// очередью не задваивает агрегат: идентификатор события дедуплицируется.
func (s *Service) HandleOpen(ctx context.Context, event domain.OpenEvent) error {
	apply := func() error {
		if event.OpenedAt.IsZero() {
			event.OpenedAt = time.Now().UTC()
		}
		if err := s.activity.RecordOpen(event.UserID, event.BookID, event.OpenedAt); err != nil {
			return fmt.Errorf("запись открытия: %w", err)
		}
		metrics.BookOpens.Inc()
		if s.businessRepo != nil {
			uid, bid := event.UserID, event.BookID
			_ = s.businessRepo.RecordBusinessMetric(ctx, domain.BusinessMetric{
				Event:      domain.BusinessMetricEventBookOpened,
				UserID:     &uid,
				BookID:     &bid,
				OccurredAt: event.OpenedAt,
			})
		}
		return nil
	}

	if s.cache != nil && event.ID != "" {
		return s.cache.Once("open_event:"+event.ID, eventDedupTTL, apply)
	}
	return apply()
}

// Run крутит цикл обработки очереди до отмены контекста.
func (s *Service) Run(ctx context.Context, queue domain.OpenEventQueue) error {
	for {
		event, ack, err := queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error().Err(err).Msg("activity: ошибка чтения очереди")
			continue
		}

		handleErr := s.HandleOpen(ctx, event)
		if ack != nil {
			if err := ack(handleErr == nil); err != nil {
				s.log.Warn().Err(err).Str("event_id", event.ID).Msg("activity: подтверждение не доставлено")
			}
		}
		if handleErr != nil {
			s.log.Error().Err(handleErr).Str("event_id", event.ID).Msg("activity: событие не обработано")
		}
	}
}
