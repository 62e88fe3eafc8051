package domain

import "time"

// User описывает читателя платформы.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	BooksRead    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Book описывает книгу каталога.
type Book struct {
	ID          int64
	Slug        string
	Title       string
	Author      string
	Description string
	Category    string
	CoverImage  string
	Language    string
	PageCount   int
	IsFeatured  bool
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ManifestPage описывает одну страницу книги в манифесте читалки.
type ManifestPage struct {
	Page  int    `json:"page"`
	Image string `json:"image"`
}

// Manifest содержит список страниц книги для листалки.
type Manifest struct {
	BookSlug string         `json:"book_slug"`
	Pages    []ManifestPage `json:"pages"`
}

// ReadingProgress хранит позицию читателя в книге. Одна запись на пару (user, book).
type ReadingProgress struct {
	UserID      int64
	BookID      int64
	BookSlug    string
	CurrentPage int
	TotalPages  int
	IsCompleted bool
	LastReadAt  time.Time
}

// Percent возвращает производный процент прочитанного.
func (p ReadingProgress) Percent() float64 {
	if p.TotalPages <= 0 {
		return 0
	}
	return float64(p.CurrentPage) / float64(p.TotalPages) * 100
}

// UpsertResult возвращается хранилищем после записи прогресса.
type UpsertResult struct {
	Completed bool
}

// ContinueReadingItem — книга с незавершённым прогрессом для блока «продолжить чтение».
type ContinueReadingItem struct {
	Book        Book
	CurrentPage int
	TotalPages  int
	Percent     float64
	LastReadAt  time.Time
}

// HeatmapSample — агрегат активности за один календарный день.
// Date приходит с бэкенда строкой в формате ISO (2006-01-02).
type HeatmapSample struct {
	Date      string `json:"date"`
	PagesRead int    `json:"pagesRead"`
}

// Favorite — книга, добавленная читателем в избранное.
type Favorite struct {
	UserID  int64
	BookID  int64
	AddedAt time.Time
}

// ReadingStats — сводная статистика читателя для личного кабинета.
type ReadingStats struct {
	BooksRead     int
	CurrentStreak int
	PagesThisYear int
}
