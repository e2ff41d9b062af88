package violations

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/oaknational/oak-ai-lesson-assistant/internal/safety"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

type violationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewViolationRepo(db *gorm.DB, log *logger.Logger) types.ViolationStore {
	return &violationRepo{db: db, log: log.With("repo", "ViolationRepo")}
}

func (r *violationRepo) Create(dbc dbctx.Context, v *types.Violation) error {
	if v == nil {
		return fmt.Errorf("missing violation")
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Create(v).Error
}

func (r *violationRepo) CountSince(dbc dbctx.Context, userID string, since time.Time) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("missing user id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var count int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Violation{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *violationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Violation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing violation id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.Violation
	if err := txx.WithContext(dbc.Ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *violationRepo) DeleteByID(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing violation id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Delete(&types.Violation{}, "id = ?", id).Error
}

func (r *violationRepo) ListByRecordID(dbc dbctx.Context, recordID string) ([]*types.Violation, error) {
	if recordID == "" {
		return nil, fmt.Errorf("missing record id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Violation
	if err := txx.WithContext(dbc.Ctx).
		Where("record_id = ?", recordID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *violationRepo) DeleteByRecordID(dbc dbctx.Context, recordID string) error {
	if recordID == "" {
		return fmt.Errorf("missing record id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Delete(&types.Violation{}, "record_id = ?", recordID).Error
}
