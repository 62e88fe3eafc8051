package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"novelverse/internal/domain"
)

type stubBooks struct {
	lastFilter domain.CatalogFilter
	manifests  int
}

func (s *stubBooks) ListBooks(filter domain.CatalogFilter) ([]domain.Book, int, error) {
	s.lastFilter = filter
	return []domain.Book{{ID: 1, Slug: "dune"}}, 1, nil
}

func (s *stubBooks) GetBookBySlug(slug string) (domain.Book, error) {
	if slug != "dune" {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return domain.Book{ID: 1, Slug: "dune"}, nil
}

func (s *stubBooks) GetManifest(slug string) (domain.Manifest, error) {
	s.manifests++
	return domain.Manifest{BookSlug: slug, Pages: []domain.ManifestPage{{Page: 1, Image: "/p/1"}}}, nil
}

type memCache struct {
	data map[string][]byte
}

func (c *memCache) Once(string, time.Duration, func() error) error { return nil }

func (c *memCache) Set(key string, value []byte, _ time.Duration) error {
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Get(key string) ([]byte, error) { return c.data[key], nil }

func TestListNormalizesFilter(t *testing.T) {
	books := &stubBooks{}
	service := NewService(books, nil)

	_, total, err := service.List(domain.CatalogFilter{
		Category: "  fantasy ",
		Search:   " дюна ",
		Sort:     "взлом",
		Limit:    -5,
		Offset:   -1,
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if total != 1 {
		t.Fatalf("ожидали total=1, получили %d", total)
	}
	got := books.lastFilter
	if got.Category != "fantasy" || got.Search != "дюна" {
		t.Fatalf("фильтр должен обрезать пробелы, получили %+v", got)
	}
	if got.Sort != domain.CatalogSortNewest {
		t.Fatalf("неизвестная сортировка должна заменяться на newest, получили %q", got.Sort)
	}
	if got.Limit != 24 || got.Offset != 0 {
		t.Fatalf("ожидали limit=24 offset=0, получили %d/%d", got.Limit, got.Offset)
	}
}

func TestListCapsLimit(t *testing.T) {
	books := &stubBooks{}
	service := NewService(books, nil)
	if _, _, err := service.List(domain.CatalogFilter{Limit: 1000}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if books.lastFilter.Limit != 100 {
		t.Fatalf("ожидали потолок 100, получили %d", books.lastFilter.Limit)
	}
}

func TestManifestCached(t *testing.T) {
	books := &stubBooks{}
	cache := &memCache{}
	service := NewService(books, cache)

	first, err := service.Manifest("dune")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := service.Manifest("dune")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if books.manifests != 1 {
		t.Fatalf("второй запрос должен идти из кэша, обращений к репозиторию %d", books.manifests)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("манифест из кэша разошёлся с оригиналом")
	}
}
