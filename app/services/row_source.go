package services

import (
	"context"

	"github.com/darzihub/darzi-notify/models"
)

// SheetRow is one raw spreadsheet row. Values are untyped cell strings; the
// mapper owns all interpretation.
type SheetRow struct {
	// Index is the 1-based row number in the sheet, header included.
	Index  int
	Ref    string
	Values []string
}

// RowSource reads order rows per sheet type and writes back the notified
// marker. Implementations exist for Google Sheets and local Excel files.
type RowSource interface {
	Read(ctx context.Context, sheet models.SheetType) ([]SheetRow, error)
	// MarkNotified writes a marker note into the given column of the row.
	// Best effort: the ledger, not the sheet, is the duplicate authority.
	MarkNotified(ctx context.Context, sheet models.SheetType, rowIndex int, column, note string) error
	Name() string
}
