package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает продуктовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	UserID     *int64
	BookID     *int64
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventUserRegistered фиксирует регистрацию нового читателя.
	BusinessMetricEventUserRegistered = "user_registered"
	// BusinessMetricEventBookOpened фиксирует открытие книги в читалке.
	BusinessMetricEventBookOpened = "book_opened"
	// BusinessMetricEventProgressSaved фиксирует сохранение позиции чтения.
	BusinessMetricEventProgressSaved = "progress_saved"
	// BusinessMetricEventBookCompleted фиксирует дочитывание книги до конца.
	BusinessMetricEventBookCompleted = "book_completed"
	// BusinessMetricEventFavoriteAdded фиксирует добавление книги в избранное.
	BusinessMetricEventFavoriteAdded = "favorite_added"
)

// BusinessMetricRepo сохраняет продуктовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
