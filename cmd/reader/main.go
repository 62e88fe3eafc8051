// Команда reader — консольный хост сессии чтения: логинится в API, открывает
// книгу и скармливает трекеру смены страниц со стандартного ввода. Удобна для
// ручной проверки дебаунса и финального сброса без фронтенда.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"novelverse/internal/adapters/storeclient"
	"novelverse/internal/domain"
	"novelverse/internal/infra/config"
	applog "novelverse/internal/infra/log"
	"novelverse/internal/usecase/session"
)

type consoleEvents struct{}

func (consoleEvents) Resuming(page int) {
	fmt.Printf("продолжаем с страницы %d\n", page)
}

func (consoleEvents) Saving(active bool) {
	if active {
		fmt.Println("сохраняем…")
	}
}

func (consoleEvents) Completed() {
	fmt.Println("книга дочитана, поздравляем")
}

func (consoleEvents) SaveFailed(err error) {
	fmt.Printf("не удалось сохранить прогресс (попробуем ещё): %v\n", err)
}

func main() {
	var (
		email    string
		password string
		slug     string
		pages    int
	)
	flag.StringVar(&email, "email", "", "E-mail читателя")
	flag.StringVar(&password, "password", "", "Пароль читателя")
	flag.StringVar(&slug, "book", "", "Слаг книги")
	flag.IntVar(&pages, "pages", 0, "Число страниц книги (0 — взять из каталога)")
	flag.Parse()

	if email == "" || password == "" || slug == "" {
		log.Fatal().Msg("reader: обязательны -email, -password и -book")
	}

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	clientCfg := storeclient.Config{BaseURL: cfg.StoreBaseURL}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	sess, err := storeclient.Login(ctx, clientCfg, email, password)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("reader: вход не выполнен")
	}

	client := storeclient.NewClient(clientCfg, sess)
	defer client.Logout()

	book := domain.Book{Slug: slug}
	if pages <= 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		saved, err := client.FetchProgress(ctx, sess.UserID, slug)
		cancel()
		if err == nil && saved.TotalPages > 0 {
			pages = saved.TotalPages
		} else {
			log.Fatal().Msg("reader: укажите -pages, число страниц неизвестно")
		}
	}

	tracker := session.NewTracker(client, client, logger, session.Options{
		Debounce:     cfg.Reader.Debounce,
		FlushTimeout: cfg.Reader.FlushTimeout,
		Events:       consoleEvents{},
	})

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	resume, err := tracker.Start(startCtx, sess.UserID, book, pages)
	startCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("reader: сессия не запустилась")
	}
	fmt.Printf("книга «%s», %d страниц, текущая страница %d\n", slug, pages, resume)
	fmt.Println("вводите номера страниц, q — выход")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "q" || line == "quit" {
			break
		}
		page, err := strconv.Atoi(line)
		if err != nil {
			fmt.Println("нужен номер страницы или q")
			continue
		}
		tracker.OnPageChanged(page)
	}

	tracker.Stop()
	fmt.Println("сессия завершена")
}
