package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"novelverse/internal/domain"
)

type stubFavorites struct {
	byBook map[int64]bool
}

func (s *stubFavorites) AddFavorite(_ int64, bookID int64) error {
	if s.byBook == nil {
		s.byBook = map[int64]bool{}
	}
	s.byBook[bookID] = true
	return nil
}

func (s *stubFavorites) RemoveFavorite(_ int64, bookID int64) error {
	delete(s.byBook, bookID)
	return nil
}

func (s *stubFavorites) ListFavorites(int64) ([]domain.Book, error) { return nil, nil }

func (s *stubFavorites) IsFavorite(_ int64, bookID int64) (bool, error) {
	return s.byBook[bookID], nil
}

type stubBooks struct{}

func (stubBooks) ListBooks(domain.CatalogFilter) ([]domain.Book, int, error) { return nil, 0, nil }

func (stubBooks) GetBookBySlug(slug string) (domain.Book, error) {
	if slug != "dune" {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return domain.Book{ID: 11, Slug: "dune"}, nil
}

func (stubBooks) GetManifest(string) (domain.Manifest, error) { return domain.Manifest{}, nil }

type stubActivity struct {
	samples []domain.HeatmapSample
	calls   int
}

func (s *stubActivity) AddPagesRead(int64, time.Time, int) error { return nil }
func (s *stubActivity) RecordOpen(int64, int64, time.Time) error { return nil }
func (s *stubActivity) ListYear(int64, int) ([]domain.HeatmapSample, error) {
	s.calls++
	return s.samples, nil
}

type stubUsers struct {
	user domain.User
}

func (s *stubUsers) CreateUser(user domain.User) (domain.User, error) { return user, nil }
func (s *stubUsers) GetUserByEmail(string) (domain.User, error)       { return s.user, nil }
func (s *stubUsers) GetUserByID(int64) (domain.User, error)           { return s.user, nil }
func (s *stubUsers) IncrementBooksRead(int64) error                   { return nil }

type memCache struct {
	data map[string][]byte
}

func (c *memCache) Once(_ string, _ time.Duration, fn func() error) error { return fn() }

func (c *memCache) Set(key string, value []byte, _ time.Duration) error {
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Get(key string) ([]byte, error) { return c.data[key], nil }

func TestFavoritesBySlug(t *testing.T) {
	favorites := &stubFavorites{}
	service := NewService(favorites, &stubActivity{}, &stubUsers{}, stubBooks{}, nil, nil)

	if err := service.AddFavorite(context.Background(), 1, "dune"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, err := service.IsFavorite(1, "dune")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !got {
		t.Fatalf("книга должна быть в избранном")
	}
	if err := service.RemoveFavorite(1, "dune"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got, _ := service.IsFavorite(1, "dune"); got {
		t.Fatalf("книга должна уйти из избранного")
	}
	if err := service.AddFavorite(context.Background(), 1, "нет-такой"); !errors.Is(err, domain.ErrBookNotFound) {
		t.Fatalf("ожидали ErrBookNotFound, получили %v", err)
	}
}

func TestHeatmapYearCached(t *testing.T) {
	activity := &stubActivity{samples: []domain.HeatmapSample{{Date: "2024-03-15", PagesRead: 12}}}
	service := NewService(&stubFavorites{}, activity, &stubUsers{}, stubBooks{}, &memCache{}, nil)

	first, err := service.HeatmapYear(1, 2024)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := service.HeatmapYear(1, 2024)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if activity.calls != 1 {
		t.Fatalf("второй запрос должен идти из кэша, обращений %d", activity.calls)
	}
	if len(first) != 1 || len(second) != 1 || second[0].PagesRead != 12 {
		t.Fatalf("кэш вернул не те данные: %v", second)
	}
}

func TestStats(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)
	activity := &stubActivity{samples: []domain.HeatmapSample{
		{Date: "2024-06-10", PagesRead: 20},
		{Date: "2024-06-09", PagesRead: 30},
		{Date: "2024-06-07", PagesRead: 5},
	}}
	users := &stubUsers{user: domain.User{ID: 1, BooksRead: 4}}
	service := NewService(&stubFavorites{}, activity, users, stubBooks{}, nil, nil)

	stats, err := service.Stats(1, now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.BooksRead != 4 {
		t.Fatalf("ожидали 4 дочитанные книги, получили %d", stats.BooksRead)
	}
	if stats.CurrentStreak != 2 {
		t.Fatalf("ожидали серию 2, получили %d", stats.CurrentStreak)
	}
	if stats.PagesThisYear != 55 {
		t.Fatalf("ожидали 55 страниц за год, получили %d", stats.PagesThisYear)
	}
}

func TestHeatmapGrid(t *testing.T) {
	activity := &stubActivity{samples: []domain.HeatmapSample{{Date: "2024-01-01", PagesRead: 50}}}
	service := NewService(&stubFavorites{}, activity, &stubUsers{}, stubBooks{}, nil, nil)

	grid, err := service.HeatmapGrid(1, 2024)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if grid.Year != 2024 || len(grid.Weeks) == 0 {
		t.Fatalf("ожидали сетку за 2024 год, получили %+v", grid.Year)
	}
	// 1 января 2024 — понедельник, вторая ячейка первой недели
	cell := grid.Weeks[0][1]
	if !cell.Present || cell.Level != 4 {
		t.Fatalf("ожидали уровень 4 для 50 страниц, получили %+v", cell)
	}
}
