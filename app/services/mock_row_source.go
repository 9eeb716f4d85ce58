package services

import (
	"context"
	"sync"

	"github.com/darzihub/darzi-notify/models"
)

// MockRowSource serves canned rows for local runs and tests.
type MockRowSource struct {
	mu     sync.Mutex
	rows   map[models.SheetType][]SheetRow
	marks  []MarkRecord
	errors map[models.SheetType]error
}

// MarkRecord captures one MarkNotified call.
type MarkRecord struct {
	Sheet    models.SheetType
	RowIndex int
	Column   string
	Note     string
}

func NewMockRowSource() *MockRowSource {
	return &MockRowSource{
		rows:   make(map[models.SheetType][]SheetRow),
		errors: make(map[models.SheetType]error),
	}
}

func (m *MockRowSource) Name() string { return "mock" }

// SetRows replaces the canned rows for a sheet type.
func (m *MockRowSource) SetRows(sheet models.SheetType, rows []SheetRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[sheet] = rows
}

// FailSheet makes reads of the sheet type return err.
func (m *MockRowSource) FailSheet(sheet models.SheetType, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[sheet] = err
}

func (m *MockRowSource) Read(_ context.Context, sheet models.SheetType) ([]SheetRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errors[sheet]; ok {
		return nil, err
	}
	out := make([]SheetRow, len(m.rows[sheet]))
	copy(out, m.rows[sheet])
	return out, nil
}

func (m *MockRowSource) MarkNotified(_ context.Context, sheet models.SheetType, rowIndex int, column, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks = append(m.marks, MarkRecord{Sheet: sheet, RowIndex: rowIndex, Column: column, Note: note})
	return nil
}

// Marks returns a copy of every recorded MarkNotified call.
func (m *MockRowSource) Marks() []MarkRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MarkRecord, len(m.marks))
	copy(out, m.marks)
	return out
}
