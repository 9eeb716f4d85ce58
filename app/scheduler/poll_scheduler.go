package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/darzihub/darzi-notify/app/services"
	businessflow "github.com/darzihub/darzi-notify/business_flow"
	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/repository"
	"github.com/darzihub/darzi-notify/utils"
)

// polledSheets is the cycle's fixed read order.
var polledSheets = []models.SheetType{
	models.SheetTypeTailor,
	models.SheetTypeFabric,
	models.SheetTypeCombined,
	models.SheetTypeWorker,
}

// PollScheduler drives the whole pipeline: read sheets, map rows, dispatch
// candidates one at a time with a pacing gap, write back notified markers,
// and persist a per-cycle report. One cycle runs at a time; a tick that
// arrives while the previous cycle is still busy is skipped.
type PollScheduler struct {
	flow    *businessflow.DispatchFlow
	mapper  *Mapper
	source  services.RowSource
	reports repository.PollReportRepository
	events  repository.NotificationEventRepository
	metrics *businessflow.DispatchMetrics
	cfg     config.SchedulerConfig
	policy  config.PolicyConfig
	logger  *log.Logger

	cycleMu sync.Mutex
}

func NewPollScheduler(
	flow *businessflow.DispatchFlow,
	mapper *Mapper,
	source services.RowSource,
	reports repository.PollReportRepository,
	events repository.NotificationEventRepository,
	metrics *businessflow.DispatchMetrics,
	cfg config.SchedulerConfig,
	policy config.PolicyConfig,
	logger *log.Logger,
) *PollScheduler {
	return &PollScheduler{
		flow:    flow,
		mapper:  mapper,
		source:  source,
		reports: reports,
		events:  events,
		metrics: metrics,
		cfg:     cfg,
		policy:  policy,
		logger:  logger,
	}
}

// Start launches the poll loop and the daily retention prune. The returned
// function stops both and waits for an in-flight cycle to finish.
func (s *PollScheduler) Start(ctx context.Context) func() {
	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	if s.cfg.PollEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(s.cfg.PollInterval)
			defer ticker.Stop()
			s.logger.Printf("poll scheduler started, interval %s, source %s", s.cfg.PollInterval, s.source.Name())
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					if _, err := s.RunCycle(runCtx); err != nil && !errors.Is(err, ErrCycleInProgress) {
						s.logger.Printf("poll cycle error: %v", err)
					}
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.cfg.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.PruneLedger(runCtx); err != nil {
					s.logger.Printf("ledger prune error: %v", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
		s.logger.Println("poll scheduler stopped")
	}
}

// ErrCycleInProgress is returned when a cycle is requested while another one
// is still running.
var ErrCycleInProgress = errors.New("a poll cycle is already running")

// RunCycle executes one full poll cycle and returns its report. Safe to call
// from the admin API; overlapping calls are rejected, not queued.
func (s *PollScheduler) RunCycle(ctx context.Context) (*models.PollReport, error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.cycleMu.Unlock()

	report := &models.PollReport{StartedAt: utils.UTCNow()}

	for _, sheet := range polledSheets {
		if ctx.Err() != nil {
			break
		}
		rows, err := s.source.Read(ctx, sheet)
		if err != nil {
			// One unreadable sheet must not starve the others.
			s.logger.Printf("failed to read %s sheet: %v", sheet, err)
			continue
		}
		s.metrics.PollRowsTotal.WithLabelValues(string(sheet)).Add(float64(len(rows)))

		candidates, stats := s.mapper.MapRows(ctx, sheet, rows)
		report.RowsRead += stats.RowsRead
		report.RowsSkipped += stats.RowsSkipped
		report.Candidates += stats.Candidates

		s.dispatchAll(ctx, sheet, candidates, report)
	}

	report.FinishedAt = utils.UTCNow()
	s.metrics.PollCyclesTotal.Inc()
	if err := s.reports.Save(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to save poll report: %w", err)
	}
	s.logger.Printf("poll cycle done: read=%d skipped=%d candidates=%d sent=%d failed=%d",
		report.RowsRead, report.RowsSkipped, report.Candidates, report.Sent, report.Failed)
	return report, nil
}

// dispatchAll sends candidates strictly one at a time with the configured
// gap, so a burst of new orders does not look like spam to WhatsApp.
func (s *PollScheduler) dispatchAll(ctx context.Context, sheet models.SheetType, candidates []businessflow.Candidate, report *models.PollReport) {
	for i, cand := range candidates {
		if ctx.Err() != nil {
			return
		}
		result, err := s.flow.Dispatch(ctx, cand)
		if err != nil {
			if errors.Is(err, businessflow.ErrTransportNotConnected) {
				s.logger.Printf("transport disconnected, abandoning the rest of the cycle")
				return
			}
			s.logger.Printf("dispatch error for %s: %v", cand.RowRef, err)
			continue
		}
		s.tally(report, result)

		if result.Status == models.EventStatusSent {
			s.markNotified(ctx, sheet, cand)
		}
		if result.Status == models.EventStatusSent && i < len(candidates)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.SendGap):
			}
		}
	}
}

func (s *PollScheduler) tally(report *models.PollReport, result *businessflow.DispatchResult) {
	switch result.Status {
	case models.EventStatusSent:
		report.Sent++
	case models.EventStatusFailed:
		report.Failed++
	case models.EventStatusBlocked:
		if result.BlockReason == nil {
			return
		}
		switch *result.BlockReason {
		case models.BlockReasonExactDuplicate:
			report.BlockedExact++
		case models.BlockReasonRateLimitExceeded:
			report.BlockedRate++
		case models.BlockReasonCooldownActive:
			report.BlockedCooldown++
		case models.BlockReasonSimilarContent:
			report.BlockedSimilar++
		}
	}
	if result.Fallback != nil {
		s.tally(report, result.Fallback)
	}
}

// markNotified mirrors a sent outcome into the sheet. Failures only log: the
// ledger already holds the authoritative record.
func (s *PollScheduler) markNotified(ctx context.Context, sheet models.SheetType, cand businessflow.Candidate) {
	rowIndex, ok := rowIndexFromRef(cand.RowRef)
	if !ok {
		return
	}
	now, err := utils.IndiaNow()
	if err != nil {
		now = utils.UTCNow()
	}
	note := fmt.Sprintf("✓ %s %s", cand.MessageType, now.Format("2006-01-02 15:04"))
	if err := s.source.MarkNotified(ctx, sheet, rowIndex, NotifiedColumn(sheet), note); err != nil {
		s.logger.Printf("failed to mark %s as notified: %v", cand.RowRef, err)
	}
}

// PruneLedger drops events past the retention horizon.
func (s *PollScheduler) PruneLedger(ctx context.Context) (int64, error) {
	horizon := utils.UTCNow().Add(-s.policy.Retention)
	pruned, err := s.events.Prune(ctx, horizon)
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		s.metrics.PrunedTotal.Add(float64(pruned))
		s.logger.Printf("pruned %d ledger events older than %s", pruned, horizon.Format(time.RFC3339))
	}
	return pruned, nil
}

// rowIndexFromRef recovers the sheet row number from a "tab!rowN" ref.
func rowIndexFromRef(ref string) (int, bool) {
	const marker = "!row"
	i := strings.LastIndex(ref, marker)
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(ref[i+len(marker):])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
