package source

import (
	"context"
	"sort"
	"sync"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

// MockClient is an in-memory implementation of Client for testing.
type MockClient struct {
	mu       sync.RWMutex
	dict     models.TypeDictionary
	entities map[string]*models.Entity
	order    []string
	metrics  map[string]any

	// Err, when set, is returned by every call.
	Err error

	fetchCalls          int
	classificationCalls int
}

// NewMockClient creates a mock source serving dict.
func NewMockClient(dict models.TypeDictionary) *MockClient {
	return &MockClient{
		dict:     dict,
		entities: make(map[string]*models.Entity),
		metrics:  map[string]any{},
	}
}

// AddEntity stores a copy of e, replacing any entity with the same GUID.
func (m *MockClient) AddEntity(e *models.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[e.GUID]; !ok {
		m.order = append(m.order, e.GUID)
	}
	m.entities[e.GUID] = e.Clone()
}

// RemoveEntity forgets an entity.
func (m *MockClient) RemoveEntity(guid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, guid)
	for i, g := range m.order {
		if g == guid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// SetMetrics sets the payload returned by AdminMetrics.
func (m *MockClient) SetMetrics(metrics map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// FetchCalls returns how many times FetchEntities was called.
func (m *MockClient) FetchCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchCalls
}

// ClassificationCalls returns how many times FetchClassifications was called.
func (m *MockClient) ClassificationCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.classificationCalls
}

func (m *MockClient) ListTypeDefs(_ context.Context) (models.TypeDictionary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return models.TypeDictionary{}, m.Err
	}
	return m.dict, nil
}

func (m *MockClient) SearchEntitiesByType(_ context.Context, typeName string) ([]models.EntityHeader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var headers []models.EntityHeader
	for _, guid := range m.order {
		e := m.entities[guid]
		if e.TypeName != typeName || e.Status == models.StatusDeleted {
			continue
		}
		names := make([]string, 0, len(e.Classifications))
		for _, c := range e.Classifications {
			names = append(names, c.TypeName)
		}
		sort.Strings(names)
		headers = append(headers, models.EntityHeader{
			GUID:                e.GUID,
			TypeName:            e.TypeName,
			Status:              e.Status,
			ClassificationNames: names,
		})
	}
	return headers, nil
}

// FetchEntities returns copies so callers may mutate the result freely.
// Classifications are left for FetchClassifications.
func (m *MockClient) FetchEntities(_ context.Context, guids []string) (map[string]*models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if m.Err != nil {
		return nil, m.Err
	}

	out := make(map[string]*models.Entity, len(guids))
	for _, guid := range guids {
		if e, ok := m.entities[guid]; ok {
			c := e.Clone()
			c.Classifications = nil
			out[guid] = c
		}
	}
	return out, nil
}

func (m *MockClient) FetchClassifications(_ context.Context, guid string) ([]models.Classification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classificationCalls++
	if m.Err != nil {
		return nil, m.Err
	}

	e, ok := m.entities[guid]
	if !ok {
		return nil, nil
	}
	list := make([]models.Classification, 0, len(e.Classifications))
	for _, c := range e.Classifications {
		list = append(list, c.Clone())
	}
	return dedupClassifications(list, guid), nil
}

func (m *MockClient) AdminMetrics(_ context.Context) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]any, len(m.metrics))
	for k, v := range m.metrics {
		out[k] = v
	}
	return out, nil
}
