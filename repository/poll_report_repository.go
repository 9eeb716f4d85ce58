package repository

import (
	"context"

	"github.com/darzihub/darzi-notify/models"
	"gorm.io/gorm"
)

// PollReportRepositoryImpl implements PollReportRepository
type PollReportRepositoryImpl struct {
	*BaseRepository[models.PollReport, models.PollReportFilter]
}

func NewPollReportRepository(db *gorm.DB) PollReportRepository {
	return &PollReportRepositoryImpl{BaseRepository: NewBaseRepository[models.PollReport, models.PollReportFilter](db)}
}

func (r *PollReportRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]*models.PollReport, error) {
	return r.ByFilter(ctx, models.PollReportFilter{}, "started_at DESC", limit, 0)
}

func (r *PollReportRepositoryImpl) applyFilter(db *gorm.DB, f models.PollReportFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.StartedAfter != nil {
		db = db.Where("started_at >= ?", *f.StartedAfter)
	}
	if f.StartedBefore != nil {
		db = db.Where("started_at < ?", *f.StartedBefore)
	}
	return db
}

func (r *PollReportRepositoryImpl) ByFilter(ctx context.Context, filter models.PollReportFilter, orderBy string, limit, offset int) ([]*models.PollReport, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PollReport{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.PollReport
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PollReportRepositoryImpl) Count(ctx context.Context, filter models.PollReportFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PollReport{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PollReportRepositoryImpl) Exists(ctx context.Context, filter models.PollReportFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
