package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

// MockCatalog is an in-memory implementation of Client for testing and dry runs.
type MockCatalog struct {
	mu        sync.RWMutex
	templates map[string]models.Template
	entries   map[string]models.Record

	// EntryErr, when set, fails every CreateOrUpdateEntry call.
	EntryErr error

	entryWrites    int
	templateWrites int
	deletes        []string
}

// NewMockCatalog creates an empty mock catalog.
func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		templates: make(map[string]models.Template),
		entries:   make(map[string]models.Record),
	}
}

// EnsureSchema is a no-op for the mock catalog.
func (m *MockCatalog) EnsureSchema(_ context.Context) error {
	return nil
}

func (m *MockCatalog) CreateOrUpdateTemplate(_ context.Context, tpl models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl.Fields = append([]models.TemplateField(nil), tpl.Fields...)
	m.templates[tpl.ID] = tpl
	m.templateWrites++
	return nil
}

func (m *MockCatalog) CreateOrUpdateEntry(_ context.Context, rec models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EntryErr != nil {
		return fmt.Errorf("writing entry %s: %w", rec.Entry.Locator, m.EntryErr)
	}
	// Deep-copy tags so later mutation by the caller cannot reach stored data.
	tags := make([]models.Tag, len(rec.Tags))
	for i, t := range rec.Tags {
		fields := make(map[string]models.FieldValue, len(t.Fields))
		for k, v := range t.Fields {
			fields[k] = v
		}
		t.Fields = fields
		tags[i] = t
	}
	rec.Tags = tags
	m.entries[rec.Entry.Locator] = rec
	m.entryWrites++
	return nil
}

func (m *MockCatalog) DeleteEntry(_ context.Context, locator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[locator]; !ok {
		return fmt.Errorf("entry %s: %w", locator, ErrNotFound)
	}
	delete(m.entries, locator)
	m.deletes = append(m.deletes, locator)
	return nil
}

func (m *MockCatalog) SearchByQuery(_ context.Context, q Query) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for locator, rec := range m.entries {
		if q.Matches(rec) {
			out = append(out, locator)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockCatalog) SearchTagValues(_ context.Context, q Query, templateID, fieldID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range m.entries {
		if !q.Matches(rec) {
			continue
		}
		for _, t := range rec.Tags {
			if t.TemplateID != templateID {
				continue
			}
			if v, ok := t.StringValue(fieldID); ok {
				seen[v] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockCatalog) ListTemplates(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for id := range m.templates {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockCatalog) DeleteTemplate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	delete(m.templates, id)
	return nil
}

// Close is a no-op for the mock catalog.
func (m *MockCatalog) Close(_ context.Context) error {
	return nil
}

// Entry returns the stored record for a locator.
func (m *MockCatalog) Entry(locator string) (models.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.entries[locator]
	return rec, ok
}

// Template returns a stored template.
func (m *MockCatalog) Template(id string) (models.Template, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tpl, ok := m.templates[id]
	return tpl, ok
}

// EntryCount returns the number of stored entries.
func (m *MockCatalog) EntryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// EntryWrites returns how many entry writes succeeded.
func (m *MockCatalog) EntryWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entryWrites
}

// TemplateWrites returns how many template writes succeeded.
func (m *MockCatalog) TemplateWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.templateWrites
}

// Deleted returns the locators deleted so far, in order.
func (m *MockCatalog) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deletes...)
}
