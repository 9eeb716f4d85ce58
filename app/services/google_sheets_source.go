package services

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
)

// GoogleSheetsSource reads order rows from Google Sheets with a service
// account credential.
type GoogleSheetsSource struct {
	service  *sheets.Service
	bindings map[models.SheetType]config.SheetBinding
}

func NewGoogleSheetsSource(ctx context.Context, cfg config.SheetsConfig) (*GoogleSheetsSource, error) {
	service, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &GoogleSheetsSource{
		service:  service,
		bindings: bindingsByType(cfg),
	}, nil
}

func bindingsByType(cfg config.SheetsConfig) map[models.SheetType]config.SheetBinding {
	return map[models.SheetType]config.SheetBinding{
		models.SheetTypeTailor:   cfg.Tailor,
		models.SheetTypeFabric:   cfg.Fabric,
		models.SheetTypeCombined: cfg.Combined,
		models.SheetTypeWorker:   cfg.Worker,
	}
}

func (s *GoogleSheetsSource) Name() string { return "google_sheets" }

func (s *GoogleSheetsSource) Read(ctx context.Context, sheet models.SheetType) ([]SheetRow, error) {
	binding, ok := s.bindings[sheet]
	if !ok || binding.SpreadsheetID == "" {
		return nil, fmt.Errorf("no spreadsheet bound for sheet type %s", sheet)
	}
	resp, err := s.service.Spreadsheets.Values.Get(binding.SpreadsheetID, binding.ReadRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", binding.ReadRange, err)
	}

	rows := make([]SheetRow, 0, len(resp.Values))
	for i, raw := range resp.Values {
		values := make([]string, len(raw))
		for j, cell := range raw {
			values[j] = fmt.Sprint(cell)
		}
		rows = append(rows, SheetRow{
			Index:  i + 1,
			Ref:    fmt.Sprintf("%s!row%d", binding.SheetName, i+1),
			Values: values,
		})
	}
	return rows, nil
}

func (s *GoogleSheetsSource) MarkNotified(ctx context.Context, sheet models.SheetType, rowIndex int, column, note string) error {
	binding, ok := s.bindings[sheet]
	if !ok || binding.SpreadsheetID == "" {
		return fmt.Errorf("no spreadsheet bound for sheet type %s", sheet)
	}
	cell := fmt.Sprintf("%s!%s%d", binding.SheetName, column, rowIndex)
	_, err := s.service.Spreadsheets.Values.Update(binding.SpreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{note}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to mark row %s: %w", cell, err)
	}
	return nil
}
