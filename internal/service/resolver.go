package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/SergeiKhy/shortlink/internal/repository"
	"go.uber.org/zap"
)

// MaxGenerateAttempts ограничивает число кандидатов на один запрос
const MaxGenerateAttempts = 8

var customCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)

// Зарезервированные слова: маршруты сервиса и префиксы статики.
// Сравнение без учёта регистра
var reservedCodes = map[string]struct{}{
	"admin":   {},
	"api":     {},
	"assets":  {},
	"config":  {},
	"css":     {},
	"docs":    {},
	"favicon": {},
	"fonts":   {},
	"health":  {},
	"images":  {},
	"img":     {},
	"index":   {},
	"js":      {},
	"public":  {},
	"qr":      {},
	"robots":  {},
	"static":  {},
	"stats":   {},
}

// IsReserved сообщает, зарезервирован ли код
func IsReserved(code string) bool {
	_, ok := reservedCodes[strings.ToLower(code)]
	return ok
}

// ValidateCustomCode проверяет формат и зарезервированные слова
func ValidateCustomCode(code string) error {
	if !customCodePattern.MatchString(code) {
		return ErrInvalidCode
	}
	if IsReserved(code) {
		return ErrReservedCode
	}
	return nil
}

// CodeResolver подбирает код, отсутствующий в хранилище на момент проверки.
// Проверка и вставка не атомарны: окончательно решает уникальный индекс
type CodeResolver struct {
	repo        repository.URLRepository
	generator   CodeGenerator
	maxAttempts int
	logger      *zap.Logger
}

// NewCodeResolver создаёт резолвер с лимитом MaxGenerateAttempts
func NewCodeResolver(repo repository.URLRepository, generator CodeGenerator, logger *zap.Logger) *CodeResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeResolver{
		repo:        repo,
		generator:   generator,
		maxAttempts: MaxGenerateAttempts,
		logger:      logger,
	}
}

// Resolve возвращает requested, если он свободен, либо сгенерированный код
// при пустом requested
func (r *CodeResolver) Resolve(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		return r.resolveCustom(ctx, requested)
	}
	return r.generate(ctx)
}

func (r *CodeResolver) resolveCustom(ctx context.Context, code string) (string, error) {
	if err := ValidateCustomCode(code); err != nil {
		return "", err
	}

	exists, err := r.repo.Exists(ctx, code)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrCodeTaken
	}

	return code, nil
}

func (r *CodeResolver) generate(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		candidate, err := r.tryGenerate(ctx, attempt)
		if err != nil {
			return "", err
		}
		if candidate != "" {
			return candidate, nil
		}
	}

	return "", ErrGenerationExhausted
}

// tryGenerate одна попытка подобрать свободный код; пустая строка означает коллизию
func (r *CodeResolver) tryGenerate(ctx context.Context, attempt int) (string, error) {
	candidate, err := r.generator.Generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	if IsReserved(candidate) {
		return "", nil
	}

	exists, err := r.repo.Exists(ctx, candidate)
	if err != nil {
		return "", err
	}
	if exists {
		r.logger.Debug("Коллизия сгенерированного кода",
			zap.String("code", candidate),
			zap.Int("attempt", attempt),
		)
		return "", nil
	}

	return candidate, nil
}
