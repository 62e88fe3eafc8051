// Package storeclient — HTTP-клиент хранилища прогресса. Реализует контракты
// сессии чтения (domain.ProgressStore, domain.OpenTracker, domain.HeatmapSource)
// поверх REST API платформы.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"novelverse/internal/domain"
	"novelverse/internal/infra/metrics"
)

// ErrSessionMismatch возвращается, когда вызов приходит не от владельца сессии.
var ErrSessionMismatch = errors.New("чужой идентификатор пользователя")

// Session — явное состояние аутентификации клиента. Создаётся входом или
// чтением сохранённого токена и передаётся клиенту явно; глобального
// изменяемого состояния у пакета нет.
type Session struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

// Valid сообщает, пригодна ли сессия для запросов.
func (s Session) Valid() bool {
	return s.Token != "" && s.UserID > 0
}

// Config задаёт параметры клиента.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client ходит в REST API платформы.
type Client struct {
	cfg        Config
	httpClient *http.Client
	session    Session
}

var (
	_ domain.ProgressStore = (*Client)(nil)
	_ domain.OpenTracker   = (*Client)(nil)
	_ domain.HeatmapSource = (*Client)(nil)
)

// NewClient создаёт клиент с заданной сессией.
func NewClient(cfg Config, session Session) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:7777"
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}, session: session}
}

// SetHTTPClient подменяет транспорт, в основном для тестов.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// Login выполняет вход и возвращает готовую сессию.
func Login(ctx context.Context, cfg Config, email, password string) (Session, error) {
	client := NewClient(cfg, Session{})
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	if err := client.do(ctx, http.MethodPost, "/auth/login", body, &resp, nil); err != nil {
		return Session{}, err
	}
	session := Session{Token: resp.Token, UserID: resp.User.ID}
	if !session.Valid() {
		return Session{}, errors.New("сервер вернул пустую сессию")
	}
	return session, nil
}

// Logout завершает жизненный цикл сессии. Токен без состояния на сервере,
// поэтому достаточно забыть его на клиенте.
func (c *Client) Logout() {
	c.session = Session{}
}

// FetchProgress возвращает сохранённый прогресс или domain.ErrProgressNotFound.
func (c *Client) FetchProgress(ctx context.Context, userID int64, bookSlug string) (domain.ReadingProgress, error) {
	if userID != c.session.UserID {
		return domain.ReadingProgress{}, ErrSessionMismatch
	}
	var resp struct {
		CurrentPage int       `json:"currentPage"`
		TotalPages  int       `json:"totalPages"`
		IsCompleted bool      `json:"isCompleted"`
		LastReadAt  time.Time `json:"lastReadAt"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/me/progress/"+url.PathEscape(bookSlug), nil, &resp, domain.ErrProgressNotFound)
	if err != nil {
		return domain.ReadingProgress{}, err
	}
	return domain.ReadingProgress{
		UserID:      userID,
		BookSlug:    bookSlug,
		CurrentPage: resp.CurrentPage,
		TotalPages:  resp.TotalPages,
		IsCompleted: resp.IsCompleted,
		LastReadAt:  resp.LastReadAt,
	}, nil
}

// UpsertProgress сохраняет позицию чтения. Сетевые ошибки и ответы 5xx
// оборачиваются в domain.TransientError.
func (c *Client) UpsertProgress(ctx context.Context, userID int64, bookSlug string, currentPage, totalPages int) (domain.UpsertResult, error) {
	if userID != c.session.UserID {
		return domain.UpsertResult{}, ErrSessionMismatch
	}
	body := map[string]int{"currentPage": currentPage, "totalPages": totalPages}
	var resp struct {
		Completed bool `json:"completed"`
	}
	err := c.do(ctx, http.MethodPut, "/api/v1/me/progress/"+url.PathEscape(bookSlug), body, &resp, domain.ErrBookNotFound)
	if err != nil {
		return domain.UpsertResult{}, err
	}
	return domain.UpsertResult{Completed: resp.Completed}, nil
}

// TrackOpen отправляет событие открытия книги.
func (c *Client) TrackOpen(ctx context.Context, userID int64, book domain.Book) error {
	if userID != c.session.UserID {
		return ErrSessionMismatch
	}
	return c.do(ctx, http.MethodPost, "/api/v1/books/"+url.PathEscape(book.Slug)+"/open", nil, nil, domain.ErrBookNotFound)
}

// FetchHeatmap возвращает посуточную активность за год.
func (c *Client) FetchHeatmap(ctx context.Context, userID int64, year int) ([]domain.HeatmapSample, error) {
	if userID != c.session.UserID {
		return nil, ErrSessionMismatch
	}
	var resp struct {
		Data []domain.HeatmapSample `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/me/heatmap?year="+strconv.Itoa(year), nil, &resp, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// do выполняет один запрос. Ошибки транспорта и 5xx помечаются временными;
// 404 превращается в notFound вызывающей ручки, если та его передала.
func (c *Client) do(ctx context.Context, method, path string, body, out any, notFound error) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("storeclient", method+" "+path, "api", start, err)
	if err != nil {
		return domain.Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return domain.Transient(fmt.Errorf("сервер ответил %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound && notFound != nil:
		return notFound
	case resp.StatusCode >= 400:
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("запрос отклонён: %s", apiErr.Error)
		}
		return fmt.Errorf("запрос отклонён: статус %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
