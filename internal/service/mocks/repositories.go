package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/repository"
)

// MockURLRepository implements repository.URLRepository for testing
type MockURLRepository struct {
	mu          sync.RWMutex
	links       map[string]*models.ShortURL
	byID        map[int64]*models.ShortURL
	clicks      map[int64][]models.ClickEvent // short_url_id -> clicks, oldest first
	nextID      int64
	nextClickID int64

	// CreateHook, when set, runs before Create and its error is returned as is
	CreateHook func(code string) error
	// RecordErr, when set, makes RecordClickAndIncrement fail
	RecordErr error
	// ExistsErr, when set, makes Exists fail
	ExistsErr error

	ExistsCalls int
	CreateCalls int
}

func NewMockURLRepository() *MockURLRepository {
	return &MockURLRepository{
		links:       make(map[string]*models.ShortURL),
		byID:        make(map[int64]*models.ShortURL),
		clicks:      make(map[int64][]models.ClickEvent),
		nextID:      1,
		nextClickID: 1,
	}
}

func (m *MockURLRepository) Create(ctx context.Context, code, originalURL string) (*models.ShortURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateHook != nil {
		if err := m.CreateHook(code); err != nil {
			return nil, err
		}
	}

	if _, exists := m.links[code]; exists {
		return nil, repository.ErrDuplicateCode
	}

	link := &models.ShortURL{
		ID:          m.nextID,
		Code:        code,
		OriginalURL: originalURL,
		CreatedAt:   time.Now().UTC(),
	}
	m.nextID++
	m.links[code] = link
	m.byID[link.ID] = link

	copied := *link
	return &copied, nil
}

func (m *MockURLRepository) GetByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[code]
	if !exists {
		return nil, repository.ErrNotFound
	}

	copied := *link
	return &copied, nil
}

func (m *MockURLRepository) Exists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExistsCalls++
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}

	_, exists := m.links[code]
	return exists, nil
}

func (m *MockURLRepository) RecordClickAndIncrement(ctx context.Context, shortURLID int64, visit models.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RecordErr != nil {
		return m.RecordErr
	}

	link, exists := m.byID[shortURLID]
	if !exists {
		return repository.ErrNotFound
	}

	link.ClickCount++
	m.clicks[shortURLID] = append(m.clicks[shortURLID], models.ClickEvent{
		ID:         m.nextClickID,
		ShortURLID: shortURLID,
		Timestamp:  time.Now().UTC(),
		IP:         visit.IP,
		Referrer:   visit.Referrer,
		UserAgent:  visit.UserAgent,
	})
	m.nextClickID++
	return nil
}

func (m *MockURLRepository) GetRecentClicks(ctx context.Context, shortURLID int64, limit int) ([]models.ClickEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = repository.DefaultRecentClicks
	}

	all := m.clicks[shortURLID]
	result := make([]models.ClickEvent, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, all[i])
	}
	return result, nil
}

func (m *MockURLRepository) ListAll(ctx context.Context) ([]models.ShortURL, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.ShortURL, 0, len(m.byID))
	for id := m.nextID - 1; id >= 1; id-- {
		if link, ok := m.byID[id]; ok {
			result = append(result, *link)
		}
	}
	return result, nil
}

// ClickCount returns the number of stored click events for a code
func (m *MockURLRepository) ClickCount(code string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[code]
	if !exists {
		return 0
	}
	return len(m.clicks[link.ID])
}

func (m *MockURLRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[string]*models.ShortURL)
	m.byID = make(map[int64]*models.ShortURL)
	m.clicks = make(map[int64][]models.ClickEvent)
	m.nextID = 1
	m.nextClickID = 1
}

// StaticGenerator returns the queued codes in order, then repeats the last one
type StaticGenerator struct {
	mu    sync.Mutex
	codes []string
	Calls int
}

func NewStaticGenerator(codes ...string) *StaticGenerator {
	return &StaticGenerator{codes: codes}
}

func (g *StaticGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := min(g.Calls, len(g.codes)-1)
	g.Calls++
	return g.codes[idx], nil
}
