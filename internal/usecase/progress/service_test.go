package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"novelverse/internal/domain"
)

type stubProgress struct {
	records map[string]domain.ReadingProgress
}

func (s *stubProgress) GetProgress(userID int64, bookSlug string) (domain.ReadingProgress, error) {
	rec, ok := s.records[bookSlug]
	if !ok {
		return domain.ReadingProgress{}, domain.ErrProgressNotFound
	}
	return rec, nil
}

func (s *stubProgress) UpsertProgress(userID int64, bookSlug string, currentPage, totalPages int) (domain.UpsertResult, error) {
	if s.records == nil {
		s.records = map[string]domain.ReadingProgress{}
	}
	rec := s.records[bookSlug]
	rec.UserID = userID
	rec.BookSlug = bookSlug
	rec.CurrentPage = currentPage
	rec.TotalPages = totalPages
	rec.IsCompleted = rec.IsCompleted || currentPage >= totalPages
	s.records[bookSlug] = rec
	return domain.UpsertResult{Completed: currentPage >= totalPages}, nil
}

func (s *stubProgress) ListContinueReading(int64, int) ([]domain.ContinueReadingItem, error) {
	return nil, nil
}

type stubActivity struct {
	pages []int
}

func (s *stubActivity) AddPagesRead(_ int64, _ time.Time, pages int) error {
	s.pages = append(s.pages, pages)
	return nil
}

func (s *stubActivity) RecordOpen(int64, int64, time.Time) error            { return nil }
func (s *stubActivity) ListYear(int64, int) ([]domain.HeatmapSample, error) { return nil, nil }

type stubUsers struct {
	booksRead int
}

func (s *stubUsers) CreateUser(user domain.User) (domain.User, error) { return user, nil }
func (s *stubUsers) GetUserByEmail(string) (domain.User, error)       { return domain.User{}, nil }
func (s *stubUsers) GetUserByID(int64) (domain.User, error)           { return domain.User{}, nil }
func (s *stubUsers) IncrementBooksRead(int64) error {
	s.booksRead++
	return nil
}

func TestSaveValidatesRange(t *testing.T) {
	service := NewService(&stubProgress{}, &stubActivity{}, &stubUsers{}, nil)
	for _, tc := range []struct{ page, total int }{{0, 100}, {101, 100}, {1, 0}, {-3, 100}} {
		if _, err := service.Save(context.Background(), 1, "dune", tc.page, tc.total); !errors.Is(err, ErrInvalidPage) {
			t.Fatalf("ожидали ErrInvalidPage для %d/%d, получили %v", tc.page, tc.total, err)
		}
	}
}

func TestSaveAggregatesPositiveDelta(t *testing.T) {
	repo := &stubProgress{}
	activity := &stubActivity{}
	service := NewService(repo, activity, &stubUsers{}, nil)

	if _, err := service.Save(context.Background(), 1, "dune", 10, 100); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := service.Save(context.Background(), 1, "dune", 25, 100); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// откат назад не уменьшает агрегат
	if _, err := service.Save(context.Background(), 1, "dune", 5, 100); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(activity.pages) != 2 || activity.pages[0] != 10 || activity.pages[1] != 15 {
		t.Fatalf("ожидали агрегаты [10 15], получили %v", activity.pages)
	}
}

func TestSaveCountsCompletionOnce(t *testing.T) {
	repo := &stubProgress{}
	users := &stubUsers{}
	service := NewService(repo, &stubActivity{}, users, nil)

	result, err := service.Save(context.Background(), 1, "dune", 100, 100)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.Completed {
		t.Fatalf("ожидали completed=true")
	}
	// повторное сохранение последней страницы не задваивает счётчик
	if _, err := service.Save(context.Background(), 1, "dune", 100, 100); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if users.booksRead != 1 {
		t.Fatalf("счётчик дочитанных должен вырасти один раз, получили %d", users.booksRead)
	}
}
