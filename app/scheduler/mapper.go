// Package scheduler contains the spreadsheet poller: the mapper that turns
// raw sheet rows into dispatch candidates, and the loop that runs cycles on a
// fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/darzihub/darzi-notify/app/services"
	businessflow "github.com/darzihub/darzi-notify/business_flow"
	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/repository"
	"github.com/darzihub/darzi-notify/utils"
)

// Column layout per sheet type. Positions are fixed; the shop's sheets keep
// these headers in this order.
//
//	tailor   A:J  order_id name phone item status delivery_date amount due_amount notes notified
//	fabric   A:I  bill_id  name phone fabric status amount due_amount purchase_date notified
//	combined A:K  order_id name phone item status delivery_date amount due_amount notes fabric_item notified
//	worker   A:F  name phone task order_id due_date notified
type sheetSchema struct {
	minColumns     int
	notifiedColumn string // column letter for the writeback marker
}

var schemas = map[models.SheetType]sheetSchema{
	models.SheetTypeTailor:   {minColumns: 5, notifiedColumn: "J"},
	models.SheetTypeFabric:   {minColumns: 5, notifiedColumn: "I"},
	models.SheetTypeCombined: {minColumns: 5, notifiedColumn: "K"},
	models.SheetTypeWorker:   {minColumns: 4, notifiedColumn: "F"},
}

// NotifiedColumn returns the marker column letter for a sheet type.
func NotifiedColumn(sheet models.SheetType) string {
	return schemas[sheet].notifiedColumn
}

// MapStats summarizes one mapping pass over a sheet.
type MapStats struct {
	RowsRead    int
	RowsSkipped int
	Candidates  int
}

// Mapper turns raw rows into validated candidates. It renders bodies, hashes
// them, and assigns reminder sequence numbers from the counter store. Rows it
// cannot interpret are skipped and logged, never guessed at.
type Mapper struct {
	renderer *services.Renderer
	counters repository.ReminderCounterRepository
	offsets  []int // reminder offsets in days, ascending
	logger   *log.Logger
}

func NewMapper(renderer *services.Renderer, counters repository.ReminderCounterRepository, cfg config.SchedulerConfig, logger *log.Logger) *Mapper {
	return &Mapper{
		renderer: renderer,
		counters: counters,
		offsets:  cfg.ReminderOffsetDays,
		logger:   logger,
	}
}

// MapRows maps every data row of one sheet. The first row is assumed to be
// the header and skipped.
func (m *Mapper) MapRows(ctx context.Context, sheet models.SheetType, rows []services.SheetRow) ([]businessflow.Candidate, MapStats) {
	stats := MapStats{}
	var out []businessflow.Candidate

	schema := schemas[sheet]
	for _, row := range rows {
		if row.Index == 1 {
			continue // header
		}
		stats.RowsRead++
		if isBlankRow(row.Values) {
			stats.RowsSkipped++
			continue
		}
		if len(row.Values) < schema.minColumns {
			m.logger.Printf("skipping %s: only %d columns", row.Ref, len(row.Values))
			stats.RowsSkipped++
			continue
		}

		cands, err := m.mapRow(ctx, sheet, row)
		if err != nil {
			m.logger.Printf("skipping %s: %v", row.Ref, err)
			stats.RowsSkipped++
			continue
		}
		out = append(out, cands...)
	}
	stats.Candidates = len(out)
	return out, stats
}

func (m *Mapper) mapRow(ctx context.Context, sheet models.SheetType, row services.SheetRow) ([]businessflow.Candidate, error) {
	switch sheet {
	case models.SheetTypeTailor:
		return m.mapTailorRow(ctx, row)
	case models.SheetTypeFabric:
		return m.mapFabricRow(ctx, row)
	case models.SheetTypeCombined:
		return m.mapCombinedRow(ctx, row)
	case models.SheetTypeWorker:
		return m.mapWorkerRow(row)
	}
	return nil, fmt.Errorf("unknown sheet type %s", sheet)
}

func (m *Mapper) mapTailorRow(ctx context.Context, row services.SheetRow) ([]businessflow.Candidate, error) {
	orderID := cell(row.Values, 0)
	name := cell(row.Values, 1)
	phone, err := utils.NormalizePhone(cell(row.Values, 2))
	if err != nil {
		return nil, err
	}
	item := cell(row.Values, 3)
	status := normalizeStatus(cell(row.Values, 4))
	deliveryDate := cell(row.Values, 5)
	amount := cell(row.Values, 6)
	due := cell(row.Values, 7)
	if orderID == "" {
		return nil, fmt.Errorf("missing order id")
	}

	data := services.TemplateData{
		Name: name, OrderID: orderID, Item: item,
		Amount: amount, DueAmount: due, DeliveryDate: deliveryDate,
	}

	var types []models.MessageType
	switch status {
	case "new", "confirmed", "pending":
		types = []models.MessageType{models.MessageTypeWelcome, models.MessageTypeOrderConfirmation}
	case "ready", "completed", "pickup":
		types = []models.MessageType{models.MessageTypeOrderReady}
	case "delivered":
		types = []models.MessageType{models.MessageTypeDeliveryNotification}
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}

	cands, err := m.build(row, models.SheetTypeTailor, phone, types, data)
	if err != nil {
		return nil, err
	}

	// Uncollected ready orders get pickup reminders; delivered orders with an
	// outstanding balance get payment reminders.
	switch status {
	case "ready", "completed", "pickup":
		rem, err := m.buildReminder(ctx, row, models.SheetTypeTailor, phone, models.MessageTypePickupReminder, deliveryDate, data)
		if err != nil {
			return nil, err
		}
		cands = append(cands, rem...)
	case "delivered":
		if amountDue(due) > 0 {
			rem, err := m.buildReminder(ctx, row, models.SheetTypeTailor, phone, models.MessageTypePaymentReminder, deliveryDate, data)
			if err != nil {
				return nil, err
			}
			cands = append(cands, rem...)
		}
	}
	return cands, nil
}

func (m *Mapper) mapFabricRow(ctx context.Context, row services.SheetRow) ([]businessflow.Candidate, error) {
	billID := cell(row.Values, 0)
	name := cell(row.Values, 1)
	phone, err := utils.NormalizePhone(cell(row.Values, 2))
	if err != nil {
		return nil, err
	}
	item := cell(row.Values, 3)
	status := normalizeStatus(cell(row.Values, 4))
	amount := cell(row.Values, 5)
	due := cell(row.Values, 6)
	purchaseDate := cell(row.Values, 7)
	if billID == "" {
		return nil, fmt.Errorf("missing bill id")
	}

	data := services.TemplateData{
		Name: name, OrderID: billID, Item: item,
		Amount: amount, DueAmount: due, DeliveryDate: purchaseDate,
	}

	var types []models.MessageType
	switch status {
	case "new", "billed", "confirmed":
		types = []models.MessageType{models.MessageTypeFabricWelcome, models.MessageTypeFabricPurchase}
	case "paid", "closed":
		types = nil
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}

	cands, err := m.build(row, models.SheetTypeFabric, phone, types, data)
	if err != nil {
		return nil, err
	}
	if amountDue(due) > 0 {
		rem, err := m.buildReminder(ctx, row, models.SheetTypeFabric, phone, models.MessageTypeFabricPaymentReminder, purchaseDate, data)
		if err != nil {
			return nil, err
		}
		cands = append(cands, rem...)
	}
	return cands, nil
}

func (m *Mapper) mapCombinedRow(ctx context.Context, row services.SheetRow) ([]businessflow.Candidate, error) {
	orderID := cell(row.Values, 0)
	name := cell(row.Values, 1)
	phone, err := utils.NormalizePhone(cell(row.Values, 2))
	if err != nil {
		return nil, err
	}
	item := cell(row.Values, 3)
	status := normalizeStatus(cell(row.Values, 4))
	deliveryDate := cell(row.Values, 5)
	amount := cell(row.Values, 6)
	due := cell(row.Values, 7)
	if orderID == "" {
		return nil, fmt.Errorf("missing order id")
	}

	data := services.TemplateData{
		Name: name, OrderID: orderID, Item: item,
		Amount: amount, DueAmount: due, DeliveryDate: deliveryDate,
	}

	var types []models.MessageType
	switch status {
	case "new", "confirmed", "pending":
		types = []models.MessageType{models.MessageTypeCombinedOrder}
	case "ready", "completed", "pickup":
		types = []models.MessageType{models.MessageTypeOrderReady}
	case "delivered":
		types = []models.MessageType{models.MessageTypeDeliveryNotification}
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}

	cands, err := m.build(row, models.SheetTypeCombined, phone, types, data)
	if err != nil {
		return nil, err
	}
	if status == "delivered" && amountDue(due) > 0 {
		rem, err := m.buildReminder(ctx, row, models.SheetTypeCombined, phone, models.MessageTypePaymentReminder, deliveryDate, data)
		if err != nil {
			return nil, err
		}
		cands = append(cands, rem...)
	}
	return cands, nil
}

// Worker rows notify the tailor's own workers about the day's tasks. The
// order ID is suffixed with the IST date so each day forms a fresh tuple.
func (m *Mapper) mapWorkerRow(row services.SheetRow) ([]businessflow.Candidate, error) {
	name := cell(row.Values, 0)
	phone, err := utils.NormalizePhone(cell(row.Values, 1))
	if err != nil {
		return nil, err
	}
	task := cell(row.Values, 2)
	orderID := cell(row.Values, 3)
	dueDate := cell(row.Values, 4)
	if task == "" || orderID == "" {
		return nil, fmt.Errorf("missing task or order id")
	}

	today, err := utils.IndiaNow()
	if err != nil {
		return nil, err
	}
	data := services.TemplateData{
		Name: name, OrderID: orderID, Item: task, DeliveryDate: dueDate,
	}
	dayTuple := fmt.Sprintf("%s-%s", orderID, today.Format("2006-01-02"))

	body, err := m.renderer.Render(models.MessageTypeWorkerDailyData, data)
	if err != nil {
		return nil, err
	}
	return []businessflow.Candidate{{
		CustomerID:  phone,
		Phone:       phone,
		Name:        name,
		OrderID:     dayTuple,
		MessageType: models.MessageTypeWorkerDailyData,
		SheetType:   models.SheetTypeWorker,
		Body:        body,
		ContentHash: utils.ContentHash(body),
		RowRef:      row.Ref,
	}}, nil
}

func (m *Mapper) build(row services.SheetRow, sheet models.SheetType, phone string, types []models.MessageType, data services.TemplateData) ([]businessflow.Candidate, error) {
	out := make([]businessflow.Candidate, 0, len(types))
	for _, msgType := range types {
		body, err := m.renderer.Render(msgType, data)
		if err != nil {
			return nil, err
		}
		out = append(out, businessflow.Candidate{
			CustomerID:  phone,
			Phone:       phone,
			Name:        data.Name,
			OrderID:     data.OrderID,
			MessageType: msgType,
			SheetType:   sheet,
			Body:        body,
			ContentHash: utils.ContentHash(body),
			RowRef:      row.Ref,
		})
	}
	return out, nil
}

// buildReminder emits at most one reminder candidate: the next sequence, and
// only when its day offset from the anchor date has passed. Sequences beyond
// the configured offsets are never sent.
func (m *Mapper) buildReminder(ctx context.Context, row services.SheetRow, sheet models.SheetType, phone string, msgType models.MessageType, anchorDate string, data services.TemplateData) ([]businessflow.Candidate, error) {
	anchor, err := parseSheetDate(anchorDate)
	if err != nil {
		// No usable anchor date means no reminders for the row, not a skip of
		// the row's other messages.
		return nil, nil
	}
	now, err := utils.IndiaNow()
	if err != nil {
		return nil, err
	}
	daysSince := int(now.Sub(anchor).Hours() / 24)

	current, err := m.counters.Current(ctx, phone, data.OrderID, msgType)
	if err != nil {
		return nil, err
	}
	next := current + 1
	if next > len(m.offsets) {
		return nil, nil
	}
	if daysSince < m.offsets[next-1] {
		return nil, nil
	}

	data.Seq = next
	body, err := m.renderer.Render(msgType, data)
	if err != nil {
		return nil, err
	}
	return []businessflow.Candidate{{
		CustomerID:  phone,
		Phone:       phone,
		Name:        data.Name,
		OrderID:     data.OrderID,
		MessageType: msgType,
		SheetType:   sheet,
		Body:        body,
		ContentHash: utils.ContentHash(body),
		ReminderSeq: utils.ToPtr(next),
		RowRef:      row.Ref,
	}}, nil
}

func cell(values []string, i int) string {
	if i >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[i])
}

func isBlankRow(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// amountDue parses a due-amount cell, tolerating currency symbols and commas.
// Unparseable cells count as zero due.
func amountDue(s string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseSheetDate accepts the date formats the shop actually types into cells.
func parseSheetDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006", "02-01-2006", "2/1/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
