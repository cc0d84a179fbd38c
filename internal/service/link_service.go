package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/repository"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrProtocolNotAllowed  = errors.New("protocol not allowed")
	ErrInvalidCode         = errors.New("invalid code format")
	ErrReservedCode        = errors.New("reserved code")
	ErrCodeTaken           = errors.New("code already in use")
	ErrNotFound            = errors.New("short url not found")
	ErrGenerationExhausted = errors.New("could not generate code")
)

// IsValidation сообщает об ошибке входных данных (4xx, до обращения к БД)
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrProtocolNotAllowed) ||
		errors.Is(err, ErrInvalidCode)
}

// IsConflict сообщает, что код занят или зарезервирован
func IsConflict(err error) bool {
	return errors.Is(err, ErrCodeTaken) || errors.Is(err, ErrReservedCode)
}

const maxURLLength = 2048

// LinkService интерфейс сервиса коротких ссылок
type LinkService interface {
	Shorten(ctx context.Context, input *models.ShortenInput) (*models.ShortURL, error)
	CheckAvailability(ctx context.Context, code string) (*models.Availability, error)
	// Visit находит ссылку и записывает клик; ошибка записи клика возвращается
	Visit(ctx context.Context, code string, visit models.Visit) (*models.ShortURL, error)
	GetLink(ctx context.Context, code string) (*models.ShortURL, error)
	GetStats(ctx context.Context, code string) (*models.Stats, error)
	ListAll(ctx context.Context) ([]models.ShortURL, error)
}

// linkService реализация сервиса ссылок
type linkService struct {
	repo     repository.URLRepository
	resolver *CodeResolver
	logger   *zap.Logger
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(repo repository.URLRepository, generator CodeGenerator, logger *zap.Logger) LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		repo:     repo,
		resolver: NewCodeResolver(repo, generator, logger),
		logger:   logger,
	}
}

// Shorten создаёт короткую ссылку
func (s *linkService) Shorten(ctx context.Context, input *models.ShortenInput) (*models.ShortURL, error) {
	// Валидация до обращения к хранилищу
	originalURL, err := ValidateURL(input.URL)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(input.Code)
	if code != "" {
		return s.createCustom(ctx, code, originalURL)
	}
	return s.createGenerated(ctx, originalURL)
}

func (s *linkService) createCustom(ctx context.Context, code, originalURL string) (*models.ShortURL, error) {
	code, err := s.resolver.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	link, err := s.repo.Create(ctx, code, originalURL)
	if err != nil {
		// Гонка с параллельным запросом на тот же код
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, ErrCodeTaken
		}
		return nil, err
	}

	return link, nil
}

// createGenerated при конфликте вставки пробует новый код. Коллизии при
// проверке и при вставке расходуют один общий лимит попыток резолвера.
func (s *linkService) createGenerated(ctx context.Context, originalURL string) (*models.ShortURL, error) {
	for attempt := 1; attempt <= s.resolver.maxAttempts; attempt++ {
		code, err := s.resolver.tryGenerate(ctx, attempt)
		if err != nil {
			return nil, err
		}
		if code == "" {
			continue
		}

		link, err := s.repo.Create(ctx, code, originalURL)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return nil, err
		}

		s.logger.Warn("Сгенерированный код занят при вставке",
			zap.String("code", code),
			zap.Int("attempt", attempt),
		)
	}

	return nil, ErrGenerationExhausted
}

// CheckAvailability проверяет, можно ли занять код
func (s *linkService) CheckAvailability(ctx context.Context, code string) (*models.Availability, error) {
	result := &models.Availability{Code: code}

	if err := ValidateCustomCode(code); err != nil {
		result.Reason = "invalid"
		if errors.Is(err, ErrReservedCode) {
			result.Reason = "reserved"
		}
		return result, nil
	}

	exists, err := s.repo.Exists(ctx, code)
	if err != nil {
		return nil, err
	}

	result.Available = !exists
	if exists {
		result.Reason = "taken"
	}
	return result, nil
}

// GetLink получает ссылку по коду. Зарезервированные и невалидные коды
// не доходят до хранилища
func (s *linkService) GetLink(ctx context.Context, code string) (*models.ShortURL, error) {
	if !customCodePattern.MatchString(code) || IsReserved(code) {
		return nil, ErrNotFound
	}

	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return link, nil
}

// Visit обрабатывает переход по короткой ссылке
func (s *linkService) Visit(ctx context.Context, code string, visit models.Visit) (*models.ShortURL, error) {
	link, err := s.GetLink(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RecordClickAndIncrement(ctx, link.ID, visit); err != nil {
		// Ссылку удалили между чтением и записью
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to record click: %w", err)
	}

	link.ClickCount++
	return link, nil
}

// GetStats возвращает счётчик и последние клики, новые первыми
func (s *linkService) GetStats(ctx context.Context, code string) (*models.Stats, error) {
	link, err := s.GetLink(ctx, code)
	if err != nil {
		return nil, err
	}

	clicks, err := s.repo.GetRecentClicks(ctx, link.ID, repository.DefaultRecentClicks)
	if err != nil {
		return nil, err
	}

	for i := range clicks {
		describeAgent(&clicks[i])
	}

	return &models.Stats{
		ID:           link.ID,
		Code:         link.Code,
		OriginalURL:  link.OriginalURL,
		CreatedAt:    link.CreatedAt,
		ClicksTotal:  link.ClickCount,
		RecentClicks: clicks,
	}, nil
}

// ListAll возвращает все ссылки (админка)
func (s *linkService) ListAll(ctx context.Context) ([]models.ShortURL, error) {
	return s.repo.ListAll(ctx)
}

// ValidateURL принимает только абсолютные http(s) URL и возвращает его без пробелов по краям
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxURLLength {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "", ErrInvalidURL
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", ErrProtocolNotAllowed
	}

	if u.Host == "" {
		return "", ErrInvalidURL
	}

	return raw, nil
}
