// Package events публикует продуктовые события платформы в очередь.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"novelverse/internal/domain"
)

// QueueOpenTracker реализует domain.OpenTracker публикацией события в очередь.
// Агрегаты обновляет отдельный воркер, поэтому открытие книги не ждёт БД.
type QueueOpenTracker struct {
	queue domain.OpenEventQueue
}

// NewQueueOpenTracker создаёт трекер открытий.
func NewQueueOpenTracker(queue domain.OpenEventQueue) *QueueOpenTracker {
	return &QueueOpenTracker{queue: queue}
}

var _ domain.OpenTracker = (*QueueOpenTracker)(nil)

// TrackOpen публикует событие «книга открыта».
func (t *QueueOpenTracker) TrackOpen(ctx context.Context, userID int64, book domain.Book) error {
	event := domain.OpenEvent{
		ID:       uuid.NewString(),
		UserID:   userID,
		BookID:   book.ID,
		OpenedAt: time.Now().UTC(),
	}
	if err := t.queue.Enqueue(ctx, event); err != nil {
		return fmt.Errorf("публикация события открытия: %w", err)
	}
	return nil
}
