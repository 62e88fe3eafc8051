package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"novelverse/internal/domain"
)

// ErrInvalidToken возвращается для просроченного или повреждённого токена.
var ErrInvalidToken = errors.New("токен недействителен")

const defaultTokenTTL = 24 * time.Hour

// Service отвечает за регистрацию и вход читателей.
type Service struct {
	users        domain.UserRepo
	businessRepo domain.BusinessMetricRepo
	secret       []byte
	tokenTTL     time.Duration
}

// NewService создаёт сервис аутентификации.
func NewService(users domain.UserRepo, businessRepo domain.BusinessMetricRepo, secret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &Service{users: users, businessRepo: businessRepo, secret: []byte(secret), tokenTTL: tokenTTL}
}

// Register создаёт читателя с хэшированным паролем.
func (s *Service) Register(ctx context.Context, firstName, lastName, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("%w: пустой или некорректный e-mail", domain.ErrInvalidCredentials)
	}
	if utf8.RuneCountInString(password) < 8 {
		return domain.User{}, fmt.Errorf("%w: пароль короче 8 символов", domain.ErrInvalidCredentials)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("хэширование пароля: %w", err)
	}

	user, err := s.users.CreateUser(domain.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
	})
	if err != nil {
		return domain.User{}, err
	}

	if s.businessRepo != nil {
		uid := user.ID
		_ = s.businessRepo.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event:      domain.BusinessMetricEventUserRegistered,
			UserID:     &uid,
			OccurredAt: time.Now().UTC(),
		})
	}
	return user, nil
}

// Login проверяет пару e-mail/пароль и выпускает токен.
func (s *Service) Login(email, password string) (domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, "", domain.ErrInvalidCredentials
		}
		return domain.User{}, "", fmt.Errorf("получение пользователя: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// IssueToken выпускает JWT для читателя.
func (s *Service) IssueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return token, nil
}

// VerifyToken проверяет токен и возвращает ID читателя.
func (s *Service) VerifyToken(raw string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidToken
	}
	return userID, nil
}
