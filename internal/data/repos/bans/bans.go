package bans

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/safety"
)

// UserBan marks an account locked for safety reasons. LiftedAt is set when
// the ban is removed; the row is kept for audit.
type UserBan struct {
	UserID   string     `gorm:"type:text;primaryKey" json:"user_id"`
	BannedAt time.Time  `gorm:"not null;default:now()" json:"banned_at"`
	LiftedAt *time.Time `json:"lifted_at,omitempty"`
}

func (UserBan) TableName() string { return "user_ban" }

type banRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBanRepo(db *gorm.DB, log *logger.Logger) safety.UserBans {
	return &banRepo{db: db, log: log.With("repo", "BanRepo")}
}

func (r *banRepo) Ban(dbc dbctx.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("missing user id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	row := UserBan{UserID: userID, BannedAt: time.Now()}
	// Re-banning a previously unbanned user reactivates the existing row.
	return txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"banned_at": row.BannedAt, "lifted_at": nil}),
		}).
		Create(&row).Error
}

func (r *banRepo) Unban(dbc dbctx.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("missing user id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now()
	return txx.WithContext(dbc.Ctx).
		Model(&UserBan{}).
		Where("user_id = ? AND lifted_at IS NULL", userID).
		Update("lifted_at", &now).Error
}

func (r *banRepo) IsBanned(dbc dbctx.Context, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("missing user id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row UserBan
	err := txx.WithContext(dbc.Ctx).
		Where("user_id = ? AND lifted_at IS NULL", userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
