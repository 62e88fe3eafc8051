package storeclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"novelverse/internal/domain"
)

func TestLoginBuildsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Fatalf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("тело не разобралось: %v", err)
		}
		if body["email"] != "a@b.c" {
			t.Fatalf("ожидали e-mail a@b.c, получили %q", body["email"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token": "jwt-token",
			"user":  map[string]any{"id": 7},
		})
	}))
	defer server.Close()

	session, err := Login(context.Background(), Config{BaseURL: server.URL}, "a@b.c", "пароль")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if session.Token != "jwt-token" || session.UserID != 7 {
		t.Fatalf("сессия собралась неверно: %+v", session)
	}
	if !session.Valid() {
		t.Fatalf("ожидали валидную сессию")
	}
}

func TestUpsertProgressSendsBearerAndParsesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jwt-token" {
			t.Fatalf("ожидали Bearer-заголовок, получили %q", r.Header.Get("Authorization"))
		}
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/me/progress/dune" {
			t.Fatalf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
		var body map[string]int
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("тело не разобралось: %v", err)
		}
		if body["currentPage"] != 100 || body["totalPages"] != 100 {
			t.Fatalf("неожиданное тело %v", body)
		}
		json.NewEncoder(w).Encode(map[string]bool{"completed": true})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, Session{Token: "jwt-token", UserID: 7})
	result, err := client.UpsertProgress(context.Background(), 7, "dune", 100, 100)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !result.Completed {
		t.Fatalf("ожидали completed=true")
	}
}

func TestFetchProgressNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, Session{Token: "jwt-token", UserID: 7})
	_, err := client.FetchProgress(context.Background(), 7, "dune")
	if !errors.Is(err, domain.ErrProgressNotFound) {
		t.Fatalf("ожидали ErrProgressNotFound, получили %v", err)
	}
	if domain.IsTransient(err) {
		t.Fatalf("404 не временная ошибка")
	}
}

func TestNotFoundMappedPerRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, Session{Token: "jwt-token", UserID: 7})

	if err := client.TrackOpen(context.Background(), 7, domain.Book{Slug: "нет-такой"}); !errors.Is(err, domain.ErrBookNotFound) {
		t.Fatalf("404 на открытии книги значит «книга не найдена», получили %v", err)
	}
	if _, err := client.UpsertProgress(context.Background(), 7, "нет-такой", 5, 100); !errors.Is(err, domain.ErrBookNotFound) {
		t.Fatalf("404 на записи прогресса значит «книга не найдена», получили %v", err)
	}
	if _, err := client.FetchHeatmap(context.Background(), 7, 2024); errors.Is(err, domain.ErrProgressNotFound) || err == nil {
		t.Fatalf("404 на тепловой карте не должен превращаться в ErrProgressNotFound, получили %v", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, Session{Token: "jwt-token", UserID: 7})
	_, err := client.UpsertProgress(context.Background(), 7, "dune", 5, 100)
	if !domain.IsTransient(err) {
		t.Fatalf("5xx должна быть временной ошибкой, получили %v", err)
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewClient(Config{BaseURL: server.URL}, Session{Token: "jwt-token", UserID: 7})
	_, err := client.UpsertProgress(context.Background(), 7, "dune", 5, 100)
	if !domain.IsTransient(err) {
		t.Fatalf("ошибка транспорта должна быть временной, получили %v", err)
	}
}

func TestBadRequestNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "страница вне диапазона"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, Session{Token: "jwt-token", UserID: 7})
	_, err := client.UpsertProgress(context.Background(), 7, "dune", 5, 100)
	if err == nil || domain.IsTransient(err) {
		t.Fatalf("4xx должна быть постоянной ошибкой, получили %v", err)
	}
}

func TestForeignUserRejected(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:1"}, Session{Token: "jwt-token", UserID: 7})
	if _, err := client.FetchProgress(context.Background(), 8, "dune"); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("ожидали ErrSessionMismatch, получили %v", err)
	}
	if err := client.TrackOpen(context.Background(), 8, domain.Book{Slug: "dune"}); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("ожидали ErrSessionMismatch, получили %v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:1"}, Session{Token: "jwt-token", UserID: 7})
	client.Logout()
	if _, err := client.FetchProgress(context.Background(), 7, "dune"); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("после выхода запросы должны отклоняться, получили %v", err)
	}
}
