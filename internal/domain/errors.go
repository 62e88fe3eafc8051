package domain

import (
	"errors"
	"fmt"
)

// ErrProgressNotFound возвращается, если для пары (user, book) нет сохранённого прогресса.
// Это не ошибка для сессии: чтение начинается с первой страницы.
var ErrProgressNotFound = errors.New("прогресс не найден")

// ErrBookNotFound возвращается, если книга отсутствует в каталоге.
var ErrBookNotFound = errors.New("книга не найдена")

// ErrUserNotFound возвращается, если читатель не зарегистрирован.
var ErrUserNotFound = errors.New("пользователь не найден")

// ErrEmailTaken возвращается при регистрации на занятый e-mail.
var ErrEmailTaken = errors.New("e-mail уже зарегистрирован")

// ErrInvalidCredentials возвращается при неверной паре e-mail/пароль.
var ErrInvalidCredentials = errors.New("неверный e-mail или пароль")

// TransientError помечает временную ошибку сохранения прогресса: сеть, таймаут,
// ответ 5xx. Такие ошибки не фатальны и повторяются при следующем естественном
// триггере (смена страницы или завершение сессии).
type TransientError struct {
	Err error
}

// Error реализует error.
func (e *TransientError) Error() string {
	return fmt.Sprintf("временная ошибка хранилища: %v", e.Err)
}

// Unwrap отдаёт вложенную ошибку.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient оборачивает ошибку как временную.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient сообщает, помечена ли ошибка как временная.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
