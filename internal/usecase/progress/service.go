package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"novelverse/internal/domain"
	"novelverse/internal/infra/metrics"
)

// ErrInvalidPage возвращается при выходе страницы за пределы книги.
var ErrInvalidPage = errors.New("страница вне диапазона книги")

// Service — серверная сторона прогресса чтения: валидация, запись позиции,
// посуточные агрегаты для тепловой карты и счётчик дочитанных книг.
type Service struct {
	progress     domain.ProgressRepo
	activity     domain.ActivityRepo
	users        domain.UserRepo
	businessRepo domain.BusinessMetricRepo
}

// NewService создаёт сервис прогресса.
func NewService(progress domain.ProgressRepo, activity domain.ActivityRepo, users domain.UserRepo, businessRepo domain.BusinessMetricRepo) *Service {
	return &Service{progress: progress, activity: activity, users: users, businessRepo: businessRepo}
}

// Get возвращает сохранённый прогресс пары (user, book).
func (s *Service) Get(userID int64, bookSlug string) (domain.ReadingProgress, error) {
	return s.progress.GetProgress(userID, bookSlug)
}

// Save сохраняет позицию чтения. Положительная разница страниц относительно
// прошлой записи попадает в посуточный агрегат; первый переход к последней
// странице увеличивает счётчик дочитанных книг.
func (s *Service) Save(ctx context.Context, userID int64, bookSlug string, currentPage, totalPages int) (domain.UpsertResult, error) {
	if totalPages < 1 || currentPage < 1 || currentPage > totalPages {
		return domain.UpsertResult{}, ErrInvalidPage
	}

	previousPage := 0
	wasCompleted := false
	prev, err := s.progress.GetProgress(userID, bookSlug)
	switch {
	case err == nil:
		previousPage = prev.CurrentPage
		wasCompleted = prev.IsCompleted
	case errors.Is(err, domain.ErrProgressNotFound):
	default:
		return domain.UpsertResult{}, fmt.Errorf("чтение прошлой позиции: %w", err)
	}

	result, err := s.progress.UpsertProgress(userID, bookSlug, currentPage, totalPages)
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("запись позиции: %w", err)
	}
	metrics.ProgressSaves.Inc()

	if delta := currentPage - previousPage; delta > 0 {
		day := time.Now().UTC()
		if err := s.activity.AddPagesRead(userID, day, delta); err != nil {
			// агрегат не критичен для сохранения позиции
			s.recordMetric(ctx, domain.BusinessMetricEventProgressSaved, userID, map[string]any{"activity_error": err.Error()})
		}
	}

	if result.Completed && !wasCompleted {
		if err := s.users.IncrementBooksRead(userID); err != nil {
			return result, fmt.Errorf("обновление счётчика дочитанных: %w", err)
		}
		s.recordMetric(ctx, domain.BusinessMetricEventBookCompleted, userID, map[string]any{"book_slug": bookSlug})
	}

	return result, nil
}

// ContinueReading возвращает книги с незавершённым прогрессом, свежие сверху.
func (s *Service) ContinueReading(userID int64, limit int) ([]domain.ContinueReadingItem, error) {
	if limit <= 0 {
		limit = 5
	}
	items, err := s.progress.ListContinueReading(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("выборка незавершённых книг: %w", err)
	}
	return items, nil
}

func (s *Service) recordMetric(ctx context.Context, event string, userID int64, meta map[string]any) {
	if s.businessRepo == nil {
		return
	}
	uid := userID
	_ = s.businessRepo.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:      event,
		UserID:     &uid,
		Metadata:   meta,
		OccurredAt: time.Now().UTC(),
	})
}
