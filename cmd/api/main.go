package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"novelverse/internal/adapters/events"
	"novelverse/internal/adapters/repo"
	"novelverse/internal/domain"
	"novelverse/internal/infra/cache"
	"novelverse/internal/infra/config"
	"novelverse/internal/infra/db"
	httpinfra "novelverse/internal/infra/http"
	applog "novelverse/internal/infra/log"
	"novelverse/internal/infra/metrics"
	"novelverse/internal/infra/queue"
	authusecase "novelverse/internal/usecase/auth"
	"novelverse/internal/usecase/catalog"
	"novelverse/internal/usecase/library"
	progressusecase "novelverse/internal/usecase/progress"
)

func main() {
	cfg := config.Load()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	redisCache := cache.NewRedis(redisClient)

	var openQueue domain.OpenEventQueue
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.NewAMQPOpenQueue(cfg.AMQPURL, cfg.Queues.Opens)
		if err != nil {
			log.Fatal().Err(err).Msg("api: нет подключения к RabbitMQ")
		}
		defer amqpQueue.Close()
		openQueue = amqpQueue
	} else {
		openQueue = queue.NewRedisOpenQueue(redisClient, cfg.Queues.Opens)
	}

	logger := applog.NewLogger(cfg.AppEnv)

	repoAdapter := repo.NewPostgres(pool)
	openTracker := events.NewQueueOpenTracker(openQueue)

	authService := authusecase.NewService(repoAdapter, repoAdapter, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	catalogService := catalog.NewService(repoAdapter, redisCache)
	progressService := progressusecase.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter)
	libraryService := library.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, redisCache, repoAdapter)

	server := httpinfra.NewServer(logger)
	r := server.Router

	r.Post("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "тело запроса нечитаемо")
			return
		}
		user, err := authService.Register(r.Context(), req.FirstName, req.LastName, req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrEmailTaken):
				writeError(w, http.StatusConflict, "e-mail уже зарегистрирован")
			case errors.Is(err, domain.ErrInvalidCredentials):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				log.Error().Err(err).Msg("api: регистрация")
				writeError(w, http.StatusInternalServerError, "не удалось зарегистрировать")
			}
			return
		}
		token, err := authService.IssueToken(user.ID)
		if err != nil {
			log.Error().Err(err).Msg("api: выпуск токена")
			writeError(w, http.StatusInternalServerError, "не удалось выпустить токен")
			return
		}
		writeJSON(w, map[string]any{"message": "регистрация успешна", "token": token, "user": userJSON(user)})
	})

	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "тело запроса нечитаемо")
			return
		}
		user, token, err := authService.Login(req.Email, req.Password)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "неверный e-mail или пароль")
				return
			}
			log.Error().Err(err).Msg("api: вход")
			writeError(w, http.StatusInternalServerError, "не удалось выполнить вход")
			return
		}
		writeJSON(w, map[string]any{"message": "вход выполнен", "token": token, "user": userJSON(user)})
	})

	r.Get("/books", func(w http.ResponseWriter, r *http.Request) {
		filter := domain.CatalogFilter{
			Category: r.URL.Query().Get("category"),
			Search:   r.URL.Query().Get("search"),
			Sort:     domain.CatalogSort(r.URL.Query().Get("sort")),
		}
		if raw := r.URL.Query().Get("isFeatured"); raw != "" {
			featured := raw == "true"
			filter.Featured = &featured
		}
		filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
		filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

		books, total, err := catalogService.List(filter)
		if err != nil {
			log.Error().Err(err).Msg("api: каталог")
			writeError(w, http.StatusInternalServerError, "не удалось получить каталог")
			return
		}
		items := make([]map[string]any, 0, len(books))
		for _, book := range books {
			items = append(items, bookJSON(book))
		}
		writeJSON(w, map[string]any{"data": items, "total": total})
	})

	r.Get("/books/{slug}", func(w http.ResponseWriter, r *http.Request) {
		book, err := catalogService.GetBySlug(chi.URLParam(r, "slug"))
		if err != nil {
			if errors.Is(err, domain.ErrBookNotFound) {
				writeError(w, http.StatusNotFound, "книга не найдена")
				return
			}
			log.Error().Err(err).Msg("api: книга")
			writeError(w, http.StatusInternalServerError, "не удалось получить книгу")
			return
		}
		writeJSON(w, map[string]any{"success": true, "data": bookJSON(book)})
	})

	r.Get("/books/{slug}/manifest", func(w http.ResponseWriter, r *http.Request) {
		manifest, err := catalogService.Manifest(chi.URLParam(r, "slug"))
		if err != nil {
			if errors.Is(err, domain.ErrBookNotFound) {
				writeError(w, http.StatusNotFound, "книга не найдена")
				return
			}
			log.Error().Err(err).Msg("api: манифест")
			writeError(w, http.StatusInternalServerError, "не удалось получить манифест")
			return
		}
		writeJSON(w, manifest)
	})

	r.Group(func(protected chi.Router) {
		protected.Use(httpinfra.BearerAuthMiddleware(authService))

		protected.Get("/api/v1/me/progress/{slug}", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.AuthUserID(r)
			progress, err := progressService.Get(userID, chi.URLParam(r, "slug"))
			if err != nil {
				if errors.Is(err, domain.ErrProgressNotFound) {
					writeError(w, http.StatusNotFound, "прогресс не найден")
					return
				}
				log.Error().Err(err).Msg("api: чтение прогресса")
				writeError(w, http.StatusInternalServerError, "не удалось получить прогресс")
				return
			}
			writeJSON(w, progressJSON(progress))
		})

		protected.Put("/api/v1/me/progress/{slug}", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			userID, _ := httpinfra.AuthUserID(r)
			var req saveProgressRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "тело запроса нечитаемо")
				return
			}
			result, err := progressService.Save(r.Context(), userID, chi.URLParam(r, "slug"), req.CurrentPage, req.TotalPages)
			if err != nil {
				switch {
				case errors.Is(err, progressusecase.ErrInvalidPage):
					writeError(w, http.StatusBadRequest, "страница вне диапазона книги")
				case errors.Is(err, domain.ErrBookNotFound):
					writeError(w, http.StatusNotFound, "книга не найдена")
				default:
					log.Error().Err(err).Msg("api: запись прогресса")
					writeError(w, http.StatusInternalServerError, "не удалось сохранить прогресс")
				}
				return
			}
			writeJSON(w, map[string]any{"completed": result.Completed})
		})

		protected.Get("/api/v1/me/continue-reading", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.AuthUserID(r)
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			items, err := progressService.ContinueReading(userID, limit)
			if err != nil {
				log.Error().Err(err).Msg("api: продолжить чтение")
				writeError(w, http.StatusInternalServerError, "не удалось получить список")
				return
			}
			data := make([]map[string]any, 0, len(items))
			for _, item := range items {
				entry := bookJSON(item.Book)
				entry["currentPage"] = item.CurrentPage
				entry["totalPages"] = item.TotalPages
				entry["progressPercent"] = item.Percent
				entry["lastReadAt"] = item.LastReadAt.Format(time.RFC3339)
				data = append(data, entry)
			}
			writeJSON(w, map[string]any{"data": data})
		})

		protected.Get("/api/v1/me/heatmap", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.AuthUserID(r)
			year, err := strconv.Atoi(r.URL.Query().Get("year"))
			if err != nil || year < 1970 {
				year = time.Now().UTC().Year()
			}
			samples, err := libraryService.HeatmapYear(userID, year)
			if err != nil {
				log.Error().Err(err).Msg("api: тепловая карта")
				writeError(w, http.StatusInternalServerError, "не удалось получить активность")
				return
			}
			if samples == nil {
				samples = []domain.HeatmapSample{}
			}
			writeJSON(w, map[string]any{"year": year, "data": samples})
		})

		protected.Get("/api/v1/me/stats", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.AuthUserID(r)
			stats, err := libraryService.Stats(userID, time.Now().UTC())
			if err != nil {
				log.Error().Err(err).Msg("api: статистика")
				writeError(w, http.StatusInternalServerError, "не удалось получить статистику")
				return
			}
			writeJSON(w, map[string]any{
				"booksRead":     stats.BooksRead,
				"currentStreak": stats.CurrentStreak,
				"pagesThisYear": stats.PagesThisYear,
			})
		})

		protected.Post("/api/v1/books/{slug}/open", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.AuthUserID(r)
			book, err := catalogService.GetBySlug(chi.URLParam(r, "slug"))
			if err != nil {
				if errors.Is(err, domain.ErrBookNotFound) {
					writeError(w, http.StatusNotFound, "книга не найдена")
					return
				}
				log.Error().Err(err).Msg("api: открытие книги")
				writeError(w, http.StatusInternalServerError, "не удалось обработать открытие")
				return
			}
			if err := openTracker.TrackOpen(r.Context(), userID, book); err != nil {
				// best-effort: событие не критично для чтения
				log.Warn().Err(err).Str("book", book.Slug).Msg("api: событие открытия не опубликовано")
			}
			w.WriteHeader(http.StatusAccepted)
		})

		protected.Get("/api/v1/me/favorites", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.AuthUserID(r)
			books, err := libraryService.ListFavorites(userID)
			if err != nil {
				log.Error().Err(err).Msg("api: избранное")
				writeError(w, http.StatusInternalServerError, "не удалось получить избранное")
				return
			}
			data := make([]map[string]any, 0, len(books))
			for _, book := range books {
				data = append(data, bookJSON(book))
			}
			writeJSON(w, map[string]any{"data": data})
		})

		protected.Post("/api/v1/me/favorites/{slug}", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.AuthUserID(r)
			if err := libraryService.AddFavorite(r.Context(), userID, chi.URLParam(r, "slug")); err != nil {
				if errors.Is(err, domain.ErrBookNotFound) {
					writeError(w, http.StatusNotFound, "книга не найдена")
					return
				}
				log.Error().Err(err).Msg("api: добавление в избранное")
				writeError(w, http.StatusInternalServerError, "не удалось добавить в избранное")
				return
			}
			writeJSON(w, map[string]string{"status": "ok"})
		})

		protected.Delete("/api/v1/me/favorites/{slug}", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.AuthUserID(r)
			if err := libraryService.RemoveFavorite(userID, chi.URLParam(r, "slug")); err != nil {
				if errors.Is(err, domain.ErrBookNotFound) {
					writeError(w, http.StatusNotFound, "книга не найдена")
					return
				}
				log.Error().Err(err).Msg("api: удаление из избранного")
				writeError(w, http.StatusInternalServerError, "не удалось удалить из избранного")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")
	go func() {
		log.Info().Int("port", cfg.Port).Msg("api: старт")
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type saveProgressRequest struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
}

func userJSON(user domain.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"firstName": user.FirstName,
		"lastName":  user.LastName,
		"email":     user.Email,
		"booksRead": user.BooksRead,
	}
}

func bookJSON(book domain.Book) map[string]any {
	entry := map[string]any{
		"id":         book.ID,
		"slug":       book.Slug,
		"title":      book.Title,
		"author":     book.Author,
		"category":   book.Category,
		"language":   book.Language,
		"isFeatured": book.IsFeatured,
		"pageCount":  book.PageCount,
		"createdAt":  book.CreatedAt.Format(time.RFC3339),
		"updatedAt":  book.UpdatedAt.Format(time.RFC3339),
	}
	if book.Description != "" {
		entry["description"] = book.Description
	}
	if book.CoverImage != "" {
		entry["coverImage"] = book.CoverImage
	}
	if book.PublishedAt != nil {
		entry["publishedAt"] = book.PublishedAt.Format(time.RFC3339)
	}
	return entry
}

func progressJSON(progress domain.ReadingProgress) map[string]any {
	return map[string]any{
		"userId":          progress.UserID,
		"bookId":          progress.BookID,
		"bookSlug":        progress.BookSlug,
		"currentPage":     progress.CurrentPage,
		"totalPages":      progress.TotalPages,
		"progressPercent": progress.Percent(),
		"isCompleted":     progress.IsCompleted,
		"lastReadAt":      progress.LastReadAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
