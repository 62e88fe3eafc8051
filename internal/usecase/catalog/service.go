package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"novelverse/internal/domain"
)

const (
	defaultLimit = 24
	maxLimit     = 100

	manifestCacheTTL = 10 * time.Minute
)

// Service реализует выдачу каталога книг.
type Service struct {
	books domain.BookRepo
	cache domain.Cache
}

// NewService создаёт сервис каталога.
func NewService(books domain.BookRepo, cache domain.Cache) *Service {
	return &Service{books: books, cache: cache}
}

// List возвращает страницу каталога и общее число книг под фильтром.
// Фильтрация, сортировка и пагинация выполняются на сервере, в одном месте.
func (s *Service) List(filter domain.CatalogFilter) ([]domain.Book, int, error) {
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	switch filter.Sort {
	case domain.CatalogSortNewest, domain.CatalogSortTitle, domain.CatalogSortAuthor:
	default:
		filter.Sort = domain.CatalogSortNewest
	}

	books, total, err := s.books.ListBooks(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("выборка каталога: %w", err)
	}
	return books, total, nil
}

// GetBySlug возвращает книгу по слагу.
func (s *Service) GetBySlug(slug string) (domain.Book, error) {
	book, err := s.books.GetBookBySlug(strings.TrimSpace(slug))
	if err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// Manifest возвращает манифест страниц книги. Манифест неизменен между
// переизданиями, поэтому кэшируется.
func (s *Service) Manifest(slug string) (domain.Manifest, error) {
	slug = strings.TrimSpace(slug)
	key := "manifest:" + slug

	if s.cache != nil {
		if raw, err := s.cache.Get(key); err == nil && len(raw) > 0 {
			var manifest domain.Manifest
			if err := json.Unmarshal(raw, &manifest); err == nil {
				return manifest, nil
			}
		}
	}

	manifest, err := s.books.GetManifest(slug)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("получение манифеста: %w", err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(manifest); err == nil {
			_ = s.cache.Set(key, raw, manifestCacheTTL)
		}
	}
	return manifest, nil
}
