package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
)

// ExcelSource reads order rows from a local .xlsx workbook, one tab per sheet
// type. The file is reopened on every read so operator edits between poll
// cycles are picked up.
type ExcelSource struct {
	mu       sync.Mutex
	path     string
	bindings map[models.SheetType]config.SheetBinding
}

func NewExcelSource(cfg config.SheetsConfig) *ExcelSource {
	return &ExcelSource{
		path:     cfg.ExcelPath,
		bindings: bindingsByType(cfg),
	}
}

func (s *ExcelSource) Name() string { return "excel" }

func (s *ExcelSource) Read(_ context.Context, sheet models.SheetType) ([]SheetRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, ok := s.bindings[sheet]
	if !ok || binding.SheetName == "" {
		return nil, fmt.Errorf("no workbook tab bound for sheet type %s", sheet)
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", s.path, err)
	}
	defer f.Close()

	raw, err := f.GetRows(binding.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read tab %s: %w", binding.SheetName, err)
	}

	rows := make([]SheetRow, 0, len(raw))
	for i, values := range raw {
		rows = append(rows, SheetRow{
			Index:  i + 1,
			Ref:    fmt.Sprintf("%s!row%d", binding.SheetName, i+1),
			Values: values,
		})
	}
	return rows, nil
}

func (s *ExcelSource) MarkNotified(_ context.Context, sheet models.SheetType, rowIndex int, column, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, ok := s.bindings[sheet]
	if !ok || binding.SheetName == "" {
		return fmt.Errorf("no workbook tab bound for sheet type %s", sheet)
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to open workbook %s: %w", s.path, err)
	}
	defer f.Close()

	cell := fmt.Sprintf("%s%d", column, rowIndex)
	if err := f.SetCellValue(binding.SheetName, cell, note); err != nil {
		return fmt.Errorf("failed to set cell %s!%s: %w", binding.SheetName, cell, err)
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
