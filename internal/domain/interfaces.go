package domain

import (
	"context"
	"time"
)

// CatalogFilter задаёт параметры выборки каталога.
type CatalogFilter struct {
	Category string
	Featured *bool
	Search   string
	Sort     CatalogSort
	Limit    int
	Offset   int
}

// CatalogSort определяет порядок выдачи каталога.
type CatalogSort string

const (
	CatalogSortNewest CatalogSort = "newest"
	CatalogSortTitle  CatalogSort = "title"
	CatalogSortAuthor CatalogSort = "author"
)

// UserRepo управляет читателями.
type UserRepo interface {
	CreateUser(user User) (User, error)
	GetUserByEmail(email string) (User, error)
	GetUserByID(id int64) (User, error)
	IncrementBooksRead(userID int64) error
}

// BookRepo управляет каталогом книг.
type BookRepo interface {
	ListBooks(filter CatalogFilter) ([]Book, int, error)
	GetBookBySlug(slug string) (Book, error)
	GetManifest(slug string) (Manifest, error)
}

// ProgressRepo управляет записями прогресса чтения.
type ProgressRepo interface {
	GetProgress(userID int64, bookSlug string) (ReadingProgress, error)
	UpsertProgress(userID int64, bookSlug string, currentPage, totalPages int) (UpsertResult, error)
	ListContinueReading(userID int64, limit int) ([]ContinueReadingItem, error)
}

// FavoriteRepo управляет избранным.
type FavoriteRepo interface {
	AddFavorite(userID, bookID int64) error
	RemoveFavorite(userID, bookID int64) error
	ListFavorites(userID int64) ([]Book, error)
	IsFavorite(userID, bookID int64) (bool, error)
}

// ActivityRepo хранит посуточные агрегаты чтения, из которых строится тепловая карта.
type ActivityRepo interface {
	AddPagesRead(userID int64, day time.Time, pages int) error
	RecordOpen(userID, bookID int64, at time.Time) error
	ListYear(userID int64, year int) ([]HeatmapSample, error)
}

// ProgressStore — контракт хранилища прогресса, который нужен сессии чтения.
// Реализуется как напрямую репозиторием, так и HTTP-клиентом бэкенда.
type ProgressStore interface {
	// FetchProgress возвращает сохранённый прогресс или ErrProgressNotFound.
	FetchProgress(ctx context.Context, userID int64, bookSlug string) (ReadingProgress, error)
	// UpsertProgress сохраняет позицию. Любая сетевая или серверная ошибка
	// оборачивается в TransientError.
	UpsertProgress(ctx context.Context, userID int64, bookSlug string, currentPage, totalPages int) (UpsertResult, error)
}

// OpenTracker фиксирует открытие книги. Вызов best-effort: ошибки не должны
// мешать чтению.
type OpenTracker interface {
	TrackOpen(ctx context.Context, userID int64, book Book) error
}

// HeatmapSource отдаёт посуточную активность за год.
type HeatmapSource interface {
	FetchHeatmap(ctx context.Context, userID int64, year int) ([]HeatmapSample, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}

// OpenEvent — событие «книга открыта», публикуемое в очередь.
type OpenEvent struct {
	ID       string    `json:"event_id"`
	UserID   int64     `json:"user_id"`
	BookID   int64     `json:"book_id"`
	OpenedAt time.Time `json:"opened_at"`
}

// OpenEventQueue описывает очередь событий открытия книг.
type OpenEventQueue interface {
	Enqueue(ctx context.Context, event OpenEvent) error
	Receive(ctx context.Context) (OpenEvent, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки события.
type AckFunc func(success bool) error
