package session

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	types "github.com/oaknational/oak-ai-lesson-assistant/internal/domain/chat"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/apierr"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

// ErrNotFound carries its HTTP mapping so handlers surface a 404 without
// inspecting repo internals.
var ErrNotFound error = apierr.New(http.StatusNotFound, "session_not_found", errors.New("chat session not found"))

type SessionRepo interface {
	Create(dbc dbctx.Context, row *types.Session) error
	GetByID(dbc dbctx.Context, id string) (*types.Session, error)
	Update(dbc dbctx.Context, row *types.Session) error
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*types.Session, error)
	DeleteByID(dbc dbctx.Context, id string) error
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: log.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, row *types.Session) error {
	if row == nil || row.ID == "" {
		return fmt.Errorf("missing session id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Create(row).Error
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id string) (*types.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("missing session id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.Session
	if err := txx.WithContext(dbc.Ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *sessionRepo) Update(dbc dbctx.Context, row *types.Session) error {
	if row == nil || row.ID == "" {
		return fmt.Errorf("missing session id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Save(row).Error
}

func (r *sessionRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*types.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Session
	if err := txx.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) DeleteByID(dbc dbctx.Context, id string) error {
	if id == "" {
		return fmt.Errorf("missing session id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Delete(&types.Session{}, "id = ?", id).Error
}
