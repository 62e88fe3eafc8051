package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"novelverse/internal/domain"
	"novelverse/internal/infra/metrics"
)

// ErrAlreadyStarted возвращается при повторном Start того же трекера.
var ErrAlreadyStarted = errors.New("сессия чтения уже запущена")

// State описывает состояние машины записи прогресса.
type State int

const (
	// StateIdle — локальных несохранённых изменений нет.
	StateIdle State = iota
	// StateDirty — currentPage изменилась после последнего сброса, таймер взведён.
	StateDirty
	// StateFlushing — запись прогресса в хранилище выполняется прямо сейчас.
	StateFlushing
)

// String реализует fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDirty:
		return "dirty"
	case StateFlushing:
		return "flushing"
	}
	return "unknown"
}

// Events — уведомления хосту сессии. Все вызовы приходят вне внутренней
// блокировки трекера, обработчик может звать трекер обратно.
type Events interface {
	// Resuming сообщает, что чтение продолжается с сохранённой страницы.
	Resuming(page int)
	// Saving сообщает о начале (true) и завершении (false) записи.
	Saving(active bool)
	// Completed сообщает о дочитывании книги. Не бывает чаще раза за сессию.
	Completed()
	// SaveFailed сообщает о неудачной записи. Информационно, чтение не блокирует.
	SaveFailed(err error)
}

// NopEvents — реализация Events по умолчанию, игнорирует все уведомления.
type NopEvents struct{}

func (NopEvents) Resuming(int)     {}
func (NopEvents) Saving(bool)      {}
func (NopEvents) Completed()       {}
func (NopEvents) SaveFailed(error) {}

const (
	defaultDebounce     = 2 * time.Second
	defaultFlushTimeout = 5 * time.Second
)

// Options настраивают трекер.
type Options struct {
	// Debounce — окно тишины перед записью позиции. По умолчанию 2 секунды.
	Debounce time.Duration
	// FlushTimeout ограничивает одну запись в хранилище.
	FlushTimeout time.Duration
	// Events получает уведомления сессии. По умолчанию NopEvents.
	Events Events
}

// Tracker синхронизирует позицию чтения одной сессии с хранилищем прогресса.
// Перелистывания дебаунсятся по заднему фронту: сохраняется только последняя
// страница тихого периода. Записи одной сессии сериализованы, параллельных
// обращений к хранилищу не бывает.
type Tracker struct {
	store  domain.ProgressStore
	opens  domain.OpenTracker
	events Events
	log    zerolog.Logger

	debounce     time.Duration
	flushTimeout time.Duration

	mu              sync.Mutex
	state           State
	started         bool
	stopped         bool
	userID          int64
	book            domain.Book
	totalPages      int
	currentPage     int
	lastFlushedPage int
	pendingWrite    bool
	completedSent   bool
	timer           *time.Timer
	timerGen        uint64
}

// NewTracker создаёт трекер сессии чтения.
func NewTracker(store domain.ProgressStore, opens domain.OpenTracker, logger zerolog.Logger, opts Options) *Tracker {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = defaultFlushTimeout
	}
	if opts.Events == nil {
		opts.Events = NopEvents{}
	}
	return &Tracker{
		store:        store,
		opens:        opens,
		events:       opts.Events,
		log:          logger,
		debounce:     opts.Debounce,
		flushTimeout: opts.FlushTimeout,
	}
}

// Start загружает сохранённый прогресс и возвращает страницу, с которой хост
// должен продолжить показ. Отсутствие прогресса — не ошибка: чтение начинается
// с первой страницы. Открытие книги фиксируется fire-and-forget: его сбои
// никогда не мешают чтению.
func (t *Tracker) Start(ctx context.Context, userID int64, book domain.Book, totalPages int) (int, error) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return 0, ErrAlreadyStarted
	}
	t.started = true
	t.userID = userID
	t.book = book
	t.totalPages = totalPages
	t.currentPage = 1
	t.lastFlushedPage = 1
	t.mu.Unlock()

	resume := 1
	saved, err := t.store.FetchProgress(ctx, userID, book.Slug)
	switch {
	case err == nil:
		if saved.CurrentPage > 1 {
			resume = saved.CurrentPage
			if resume > totalPages {
				resume = totalPages
			}
		}
	case errors.Is(err, domain.ErrProgressNotFound):
		// первая сессия по книге
	default:
		t.log.Warn().Err(err).Str("book", book.Slug).Msg("сессия: не удалось получить прогресс, начинаем с первой страницы")
	}

	t.mu.Lock()
	t.currentPage = resume
	t.lastFlushedPage = resume
	t.mu.Unlock()

	if resume > 1 {
		metrics.SessionResumes.Inc()
		t.events.Resuming(resume)
	}

	go t.trackOpen(userID, book)

	return resume, nil
}

func (t *Tracker) trackOpen(userID int64, book domain.Book) {
	if t.opens == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.flushTimeout)
	defer cancel()
	if err := t.opens.TrackOpen(ctx, userID, book); err != nil {
		t.log.Debug().Err(err).Str("book", book.Slug).Msg("сессия: событие открытия не записано")
	}
}

// OnPageChanged принимает новую страницу от читалки и перевзводит таймер сброса.
// Вызов во время записи не теряется: изменение будет сброшено после завершения
// текущей записи.
func (t *Tracker) OnPageChanged(page int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.stopped {
		return
	}
	if page < 1 {
		page = 1
	}
	if page > t.totalPages {
		page = t.totalPages
	}

	t.currentPage = page
	t.pendingWrite = page != t.lastFlushedPage
	if !t.pendingWrite && t.state != StateFlushing {
		t.disarmTimerLocked()
		t.state = StateIdle
		return
	}

	switch t.state {
	case StateIdle, StateDirty:
		t.state = StateDirty
		t.armTimerLocked()
	case StateFlushing:
		// таймер перевзводится после завершения текущей записи
	}
}

// State возвращает текущее состояние машины записи.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stop завершает сессию: снимает таймер и, если есть несохранённое изменение,
// делает одну финальную best-effort запись. Повторов после неё нет.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.disarmTimerLocked()
	if t.state == StateFlushing {
		// запись уже в полёте: она завершится в фоне и сама досбросит
		// накопившееся изменение
		t.mu.Unlock()
		return
	}
	if !t.pendingWrite {
		t.mu.Unlock()
		return
	}
	t.state = StateFlushing
	page := t.currentPage
	t.mu.Unlock()

	t.flush(page, true)
}

func (t *Tracker) armTimerLocked() {
	t.disarmTimerLocked()
	t.timerGen++
	gen := t.timerGen
	t.timer = time.AfterFunc(t.debounce, func() { t.timerFired(gen) })
}

func (t *Tracker) disarmTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tracker) timerFired(gen uint64) {
	t.mu.Lock()
	if gen != t.timerGen || t.stopped || t.state != StateDirty {
		t.mu.Unlock()
		return
	}
	t.state = StateFlushing
	page := t.currentPage
	t.mu.Unlock()

	t.flush(page, false)
}

// flush выполняет одну запись прогресса. final выставляется при завершении
// сессии: в этом случае переходов состояния после записи не происходит.
func (t *Tracker) flush(page int, final bool) {
	t.events.Saving(true)

	ctx, cancel := context.WithTimeout(context.Background(), t.flushTimeout)
	defer cancel()

	start := time.Now()
	result, err := t.store.UpsertProgress(ctx, t.userID, t.book.Slug, page, t.totalPages)
	metrics.ObserveProgressFlush(start, err)

	t.events.Saving(false)

	if err != nil {
		t.log.Warn().Err(err).Str("book", t.book.Slug).Int("page", page).Msg("сессия: запись прогресса не удалась")
		finishStopped := false
		finalPage := 0
		t.mu.Lock()
		if !final {
			if t.stopped {
				// сессия завершилась во время записи, остаётся одна
				// финальная best-effort попытка
				finishStopped = true
				finalPage = t.currentPage
			} else {
				// возврат в Dirty: повтор случится на следующей смене
				// страницы или при завершении сессии
				t.state = StateDirty
			}
		}
		t.mu.Unlock()
		t.events.SaveFailed(err)
		if finishStopped {
			t.flush(finalPage, true)
		}
		return
	}

	notifyCompleted := false
	finishStopped := false
	finalPage := 0
	t.mu.Lock()
	t.lastFlushedPage = page
	if result.Completed && !t.completedSent {
		t.completedSent = true
		notifyCompleted = true
	}
	if !final {
		switch {
		case t.currentPage != page && t.stopped:
			// страница сменилась во время записи, а сессия уже завершена:
			// таймер мёртв, досбрасываем сразу
			finishStopped = true
			finalPage = t.currentPage
		case t.currentPage != page:
			// страница успела смениться во время записи, изменение не теряется
			t.state = StateDirty
			t.pendingWrite = true
			t.armTimerLocked()
		default:
			t.state = StateIdle
			t.pendingWrite = false
		}
	}
	t.mu.Unlock()

	if notifyCompleted {
		t.events.Completed()
	}
	if finishStopped {
		t.flush(finalPage, true)
	}
}
