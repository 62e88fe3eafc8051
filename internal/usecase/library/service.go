package library

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"novelverse/internal/domain"
	"novelverse/internal/infra/metrics"
	"novelverse/internal/usecase/heatmap"
)

const heatmapCacheTTL = 5 * time.Minute

// Service — личная библиотека читателя: избранное, тепловая карта и сводная
// статистика для кабинета.
type Service struct {
	favorites    domain.FavoriteRepo
	activity     domain.ActivityRepo
	users        domain.UserRepo
	books        domain.BookRepo
	cache        domain.Cache
	businessRepo domain.BusinessMetricRepo
}

// NewService создаёт сервис библиотеки.
func NewService(favorites domain.FavoriteRepo, activity domain.ActivityRepo, users domain.UserRepo, books domain.BookRepo, cache domain.Cache, businessRepo domain.BusinessMetricRepo) *Service {
	return &Service{favorites: favorites, activity: activity, users: users, books: books, cache: cache, businessRepo: businessRepo}
}

// AddFavorite добавляет книгу в избранное.
func (s *Service) AddFavorite(ctx context.Context, userID int64, bookSlug string) error {
	book, err := s.books.GetBookBySlug(bookSlug)
	if err != nil {
		return err
	}
	if err := s.favorites.AddFavorite(userID, book.ID); err != nil {
		return fmt.Errorf("добавление в избранное: %w", err)
	}
	if s.businessRepo != nil {
		uid, bid := userID, book.ID
		_ = s.businessRepo.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event:      domain.BusinessMetricEventFavoriteAdded,
			UserID:     &uid,
			BookID:     &bid,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

// RemoveFavorite убирает книгу из избранного.
func (s *Service) RemoveFavorite(userID int64, bookSlug string) error {
	book, err := s.books.GetBookBySlug(bookSlug)
	if err != nil {
		return err
	}
	if err := s.favorites.RemoveFavorite(userID, book.ID); err != nil {
		return fmt.Errorf("удаление из избранного: %w", err)
	}
	return nil
}

// ListFavorites возвращает избранные книги читателя.
func (s *Service) ListFavorites(userID int64) ([]domain.Book, error) {
	books, err := s.favorites.ListFavorites(userID)
	if err != nil {
		return nil, fmt.Errorf("выборка избранного: %w", err)
	}
	return books, nil
}

// IsFavorite сообщает, в избранном ли книга.
func (s *Service) IsFavorite(userID int64, bookSlug string) (bool, error) {
	book, err := s.books.GetBookBySlug(bookSlug)
	if err != nil {
		return false, err
	}
	return s.favorites.IsFavorite(userID, book.ID)
}

// HeatmapYear возвращает посуточную активность читателя за год. Год меняется
// редко относительно частоты просмотров кабинета, поэтому ответ кэшируется.
func (s *Service) HeatmapYear(userID int64, year int) ([]domain.HeatmapSample, error) {
	key := fmt.Sprintf("heatmap:%d:%d", userID, year)
	if s.cache != nil {
		if raw, err := s.cache.Get(key); err == nil && len(raw) > 0 {
			var samples []domain.HeatmapSample
			if err := json.Unmarshal(raw, &samples); err == nil {
				return samples, nil
			}
		}
	}

	start := time.Now()
	samples, err := s.activity.ListYear(userID, year)
	metrics.ObserveHeatmapQuery(start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка активности за %d год: %w", year, err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(samples); err == nil {
			_ = s.cache.Set(key, raw, heatmapCacheTTL)
		}
	}
	return samples, nil
}

// HeatmapGrid строит готовую к отрисовке сетку за год.
func (s *Service) HeatmapGrid(userID int64, year int) (heatmap.Grid, error) {
	samples, err := s.HeatmapYear(userID, year)
	if err != nil {
		return heatmap.Grid{}, err
	}
	return heatmap.BuildYear(samples, year), nil
}

// Stats собирает сводку кабинета: дочитанные книги, текущая серия и страницы
// за текущий год.
func (s *Service) Stats(userID int64, now time.Time) (domain.ReadingStats, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return domain.ReadingStats{}, fmt.Errorf("получение пользователя: %w", err)
	}

	samples, err := s.HeatmapYear(userID, now.Year())
	if err != nil {
		return domain.ReadingStats{}, err
	}

	pages := 0
	for _, sample := range samples {
		pages += sample.PagesRead
	}

	return domain.ReadingStats{
		BooksRead:     user.BooksRead,
		CurrentStreak: heatmap.CurrentStreak(samples, now),
		PagesThisYear: pages,
	}, nil
}
