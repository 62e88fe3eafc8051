package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"novelverse/internal/domain"
	"novelverse/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo           = (*Postgres)(nil)
	_ domain.BookRepo           = (*Postgres)(nil)
	_ domain.ProgressRepo       = (*Postgres)(nil)
	_ domain.FavoriteRepo       = (*Postgres)(nil)
	_ domain.ActivityRepo       = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

const bookColumns = `id, slug, title, author, description, category, cover_image, language, page_count, is_featured, published_at, created_at, updated_at`

func scanBook(row pgx.Row) (domain.Book, error) {
	var (
		book        domain.Book
		description sql.NullString
		coverImage  sql.NullString
		publishedAt sql.NullTime
	)
	err := row.Scan(&book.ID, &book.Slug, &book.Title, &book.Author, &description, &book.Category, &coverImage, &book.Language, &book.PageCount, &book.IsFeatured, &publishedAt, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return domain.Book{}, err
	}
	book.Description = description.String
	book.CoverImage = coverImage.String
	if publishedAt.Valid {
		ts := publishedAt.Time
		book.PublishedAt = &ts
	}
	return book, nil
}

// CreateUser создаёт читателя. Занятый e-mail возвращает domain.ErrEmailTaken.
func (p *Postgres) CreateUser(user domain.User) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO users (email, password_hash, first_name, last_name)
VALUES ($1, $2, $3, $4)
RETURNING id, books_read, created_at, updated_at
`, user.Email, user.PasswordHash, user.FirstName, user.LastName).Scan(&user.ID, &user.BooksRead, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_insert", "users", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, err
	}
	return user, nil
}

// GetUserByEmail возвращает читателя по e-mail.
func (p *Postgres) GetUserByEmail(email string) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var user domain.User
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, email, password_hash, first_name, last_name, books_read, created_at, updated_at
FROM users WHERE email=$1
`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.BooksRead, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_email", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetUserByID возвращает читателя по ID.
func (p *Postgres) GetUserByID(id int64) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var user domain.User
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, email, password_hash, first_name, last_name, books_read, created_at, updated_at
FROM users WHERE id=$1
`, id).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.BooksRead, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// IncrementBooksRead увеличивает счётчик дочитанных книг.
func (p *Postgres) IncrementBooksRead(userID int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET books_read=books_read+1, updated_at=now() WHERE id=$1`, userID)
	metrics.ObserveNetworkRequest("postgres", "users_inc_books_read", "users", start, err)
	return err
}

// ListBooks возвращает страницу каталога и общее число книг под фильтром.
func (p *Postgres) ListBooks(filter domain.CatalogFilter) ([]domain.Book, int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Featured != nil {
		args = append(args, *filter.Featured)
		conds = append(conds, fmt.Sprintf("is_featured=$%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM books`+where, args...).Scan(&total)
	metrics.ObserveNetworkRequest("postgres", "books_count", "books", start, err)
	if err != nil {
		return nil, 0, err
	}

	order := "created_at DESC"
	switch filter.Sort {
	case domain.CatalogSortTitle:
		order = "title ASC"
	case domain.CatalogSortAuthor:
		order = "author ASC, title ASC"
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM books%s ORDER BY %s LIMIT $%d OFFSET $%d`, bookColumns, where, order, len(args)-1, len(args))

	start = time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "books_list", "books", start, err)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		books = append(books, book)
	}
	return books, total, rows.Err()
}

// GetBookBySlug возвращает книгу по слагу.
func (p *Postgres) GetBookBySlug(slug string) (domain.Book, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE slug=$1`, slug)
	book, err := scanBook(row)
	metrics.ObserveNetworkRequest("postgres", "books_get_by_slug", "books", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Book{}, domain.ErrBookNotFound
	}
	if err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// GetManifest возвращает манифест страниц книги.
func (p *Postgres) GetManifest(slug string) (domain.Manifest, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT bp.page, bp.image
FROM book_pages bp
JOIN books b ON b.id = bp.book_id
WHERE b.slug=$1
ORDER BY bp.page
`, slug)
	metrics.ObserveNetworkRequest("postgres", "book_pages_list", "book_pages", start, err)
	if err != nil {
		return domain.Manifest{}, err
	}
	defer rows.Close()

	manifest := domain.Manifest{BookSlug: slug}
	for rows.Next() {
		var page domain.ManifestPage
		if err := rows.Scan(&page.Page, &page.Image); err != nil {
			return domain.Manifest{}, err
		}
		manifest.Pages = append(manifest.Pages, page)
	}
	if err := rows.Err(); err != nil {
		return domain.Manifest{}, err
	}
	if len(manifest.Pages) == 0 {
		return domain.Manifest{}, domain.ErrBookNotFound
	}
	return manifest, nil
}

// GetProgress возвращает прогресс пары (user, book).
func (p *Postgres) GetProgress(userID int64, bookSlug string) (domain.ReadingProgress, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var progress domain.ReadingProgress
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT rp.user_id, rp.book_id, b.slug, rp.current_page, rp.total_pages, rp.is_completed, rp.last_read_at
FROM reading_progress rp
JOIN books b ON b.id = rp.book_id
WHERE rp.user_id=$1 AND b.slug=$2
`, userID, bookSlug).Scan(&progress.UserID, &progress.BookID, &progress.BookSlug, &progress.CurrentPage, &progress.TotalPages, &progress.IsCompleted, &progress.LastReadAt)
	metrics.ObserveNetworkRequest("postgres", "progress_get", "reading_progress", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ReadingProgress{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.ReadingProgress{}, err
	}
	return progress, nil
}

// UpsertProgress сохраняет позицию чтения. Достижение последней страницы
// помечает книгу дочитанной; обратный переход флаг не снимает.
func (p *Postgres) UpsertProgress(userID int64, bookSlug string, currentPage, totalPages int) (domain.UpsertResult, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var completed bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO reading_progress (user_id, book_id, current_page, total_pages, is_completed, last_read_at)
SELECT $1, b.id, $3, $4, $3 >= $4, now() FROM books b WHERE b.slug=$2
ON CONFLICT (user_id, book_id) DO UPDATE
SET current_page=EXCLUDED.current_page,
    total_pages=EXCLUDED.total_pages,
    is_completed=reading_progress.is_completed OR EXCLUDED.is_completed,
    last_read_at=now()
RETURNING current_page >= total_pages
`, userID, bookSlug, currentPage, totalPages).Scan(&completed)
	metrics.ObserveNetworkRequest("postgres", "progress_upsert", "reading_progress", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UpsertResult{}, domain.ErrBookNotFound
	}
	if err != nil {
		return domain.UpsertResult{}, err
	}
	return domain.UpsertResult{Completed: completed}, nil
}

// ListContinueReading возвращает книги с незавершённым прогрессом, свежие сверху.
func (p *Postgres) ListContinueReading(userID int64, limit int) ([]domain.ContinueReadingItem, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+prefixColumns("b", bookColumns)+`, rp.current_page, rp.total_pages, rp.last_read_at
FROM reading_progress rp
JOIN books b ON b.id = rp.book_id
WHERE rp.user_id=$1 AND NOT rp.is_completed
ORDER BY rp.last_read_at DESC
LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "progress_continue", "reading_progress", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ContinueReadingItem
	for rows.Next() {
		var (
			item        domain.ContinueReadingItem
			description sql.NullString
			coverImage  sql.NullString
			publishedAt sql.NullTime
		)
		err := rows.Scan(
			&item.Book.ID, &item.Book.Slug, &item.Book.Title, &item.Book.Author, &description,
			&item.Book.Category, &coverImage, &item.Book.Language, &item.Book.PageCount,
			&item.Book.IsFeatured, &publishedAt, &item.Book.CreatedAt, &item.Book.UpdatedAt,
			&item.CurrentPage, &item.TotalPages, &item.LastReadAt,
		)
		if err != nil {
			return nil, err
		}
		item.Book.Description = description.String
		item.Book.CoverImage = coverImage.String
		if publishedAt.Valid {
			ts := publishedAt.Time
			item.Book.PublishedAt = &ts
		}
		if item.TotalPages > 0 {
			item.Percent = float64(item.CurrentPage) / float64(item.TotalPages) * 100
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AddFavorite добавляет книгу в избранное. Повторное добавление не ошибка.
func (p *Postgres) AddFavorite(userID, bookID int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO favorites (user_id, book_id, added_at) VALUES ($1, $2, now())
ON CONFLICT (user_id, book_id) DO NOTHING
`, userID, bookID)
	metrics.ObserveNetworkRequest("postgres", "favorites_insert", "favorites", start, err)
	return err
}

// RemoveFavorite убирает книгу из избранного.
func (p *Postgres) RemoveFavorite(userID, bookID int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM favorites WHERE user_id=$1 AND book_id=$2`, userID, bookID)
	metrics.ObserveNetworkRequest("postgres", "favorites_delete", "favorites", start, err)
	return err
}

// ListFavorites возвращает избранные книги читателя.
func (p *Postgres) ListFavorites(userID int64) ([]domain.Book, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+prefixColumns("b", bookColumns)+`
FROM favorites f
JOIN books b ON b.id = f.book_id
WHERE f.user_id=$1
ORDER BY f.added_at DESC
`, userID)
	metrics.ObserveNetworkRequest("postgres", "favorites_list", "favorites", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// IsFavorite сообщает, в избранном ли книга.
func (p *Postgres) IsFavorite(userID, bookID int64) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM favorites WHERE user_id=$1 AND book_id=$2)`, userID, bookID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "favorites_exists", "favorites", start, err)
	return exists, err
}

// AddPagesRead прибавляет страницы к посуточному агрегату.
func (p *Postgres) AddPagesRead(userID int64, day time.Time, pages int) error {
	if pages <= 0 {
		return nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO daily_activity (user_id, day, pages_read, opens)
VALUES ($1, $2, $3, 0)
ON CONFLICT (user_id, day) DO UPDATE SET pages_read=daily_activity.pages_read+EXCLUDED.pages_read
`, userID, day.UTC().Format("2006-01-02"), pages)
	metrics.ObserveNetworkRequest("postgres", "activity_add_pages", "daily_activity", start, err)
	return err
}

// RecordOpen фиксирует открытие книги в посуточном агрегате.
func (p *Postgres) RecordOpen(userID, bookID int64, at time.Time) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `INSERT INTO book_opens (user_id, book_id, opened_at) VALUES ($1, $2, $3)`, userID, bookID, at.UTC())
	metrics.ObserveNetworkRequest("postgres", "book_opens_insert", "book_opens", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO daily_activity (user_id, day, pages_read, opens)
VALUES ($1, $2, 0, 1)
ON CONFLICT (user_id, day) DO UPDATE SET opens=daily_activity.opens+1
`, userID, at.UTC().Format("2006-01-02"))
	metrics.ObserveNetworkRequest("postgres", "activity_record_open", "daily_activity", start, err)
	return err
}

// ListYear возвращает посуточную активность читателя за год.
func (p *Postgres) ListYear(userID int64, year int) ([]domain.HeatmapSample, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT to_char(day, 'YYYY-MM-DD'), pages_read
FROM daily_activity
WHERE user_id=$1 AND day >= $2 AND day <= $3
ORDER BY day
`, userID, fmt.Sprintf("%d-01-01", year), fmt.Sprintf("%d-12-31", year))
	metrics.ObserveNetworkRequest("postgres", "activity_list_year", "daily_activity", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []domain.HeatmapSample
	for rows.Next() {
		var sample domain.HeatmapSample
		if err := rows.Scan(&sample.Date, &sample.PagesRead); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// RecordBusinessMetric сохраняет продуктовое событие в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	var userID sql.NullInt64
	if metric.UserID != nil {
		userID = sql.NullInt64{Int64: *metric.UserID, Valid: true}
	}
	var bookID sql.NullInt64
	if metric.BookID != nil {
		bookID = sql.NullInt64{Int64: *metric.BookID, Valid: true}
	}
	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, book_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`, metric.Event, userID, bookID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

// prefixColumns добавляет алиас таблицы к списку колонок.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}
