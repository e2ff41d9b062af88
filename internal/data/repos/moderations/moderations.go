package moderations

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/oaknational/oak-ai-lesson-assistant/internal/safety"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

type ModerationRepo interface {
	Create(dbc dbctx.Context, row *types.Moderation) error
	ListBySession(dbc dbctx.Context, sessionID string) ([]*types.Moderation, error)
	GetByID(dbc dbctx.Context, id string) (*types.Moderation, error)
}

type moderationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModerationRepo(db *gorm.DB, log *logger.Logger) ModerationRepo {
	return &moderationRepo{db: db, log: log.With("repo", "ModerationRepo")}
}

func (r *moderationRepo) Create(dbc dbctx.Context, row *types.Moderation) error {
	if row == nil {
		return fmt.Errorf("missing moderation")
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Create(row).Error
}

func (r *moderationRepo) ListBySession(dbc dbctx.Context, sessionID string) ([]*types.Moderation, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("missing session id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Moderation
	if err := txx.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *moderationRepo) GetByID(dbc dbctx.Context, id string) (*types.Moderation, error) {
	if id == "" {
		return nil, fmt.Errorf("missing moderation id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.Moderation
	if err := txx.WithContext(dbc.Ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
