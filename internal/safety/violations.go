package safety

import (
	"time"

	"github.com/google/uuid"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/utils"
)

type ViolationAction string

const (
	ActionChatMessage ViolationAction = "CHAT_MESSAGE"
)

type ViolationSource string

const (
	SourceThreat     ViolationSource = "THREAT"
	SourceModeration ViolationSource = "MODERATION"
)

type ViolationRecordType string

const (
	RecordChatSession ViolationRecordType = "CHAT_SESSION"
	RecordModeration  ViolationRecordType = "MODERATION"
)

// Violation is one recorded safety violation.
type Violation struct {
	ID              uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string              `gorm:"type:text;not null;index" json:"user_id"`
	UserAction      ViolationAction     `gorm:"type:text;not null" json:"user_action"`
	DetectionSource ViolationSource     `gorm:"type:text;not null" json:"detection_source"`
	RecordType      ViolationRecordType `gorm:"type:text;not null" json:"record_type"`
	RecordID        string              `gorm:"type:text;not null;index" json:"record_id"`
	CreatedAt       time.Time           `json:"created_at"`
}

func (Violation) TableName() string { return "safety_violation" }

// ViolationStore is the persistence surface violations need.
type ViolationStore interface {
	Create(dbc dbctx.Context, v *Violation) error
	CountSince(dbc dbctx.Context, userID string, since time.Time) (int64, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*Violation, error)
	DeleteByID(dbc dbctx.Context, id uuid.UUID) error
	ListByRecordID(dbc dbctx.Context, recordID string) ([]*Violation, error)
	DeleteByRecordID(dbc dbctx.Context, recordID string) error
}

// UserBans tracks and toggles ban state for users.
type UserBans interface {
	Ban(dbc dbctx.Context, userID string) error
	Unban(dbc dbctx.Context, userID string) error
	IsBanned(dbc dbctx.Context, userID string) (bool, error)
}

// BanNotifier is told when a user is banned so operators can review.
type BanNotifier interface {
	NotifyUserBan(dbc dbctx.Context, userID string) error
}

// Violations records safety violations and bans users who exceed the
// allowed number inside the check window. Lifting a ban does not reset
// the violation count, so a user can be banned again immediately after
// being unbanned if they trigger another violation.
type Violations struct {
	store      ViolationStore
	bans       UserBans
	notifier   BanNotifier
	maxAllowed int
	window     time.Duration
	log        *logger.Logger
}

func NewViolations(store ViolationStore, bans UserBans, notifier BanNotifier, log *logger.Logger) *Violations {
	svcLog := log.With("service", "safety_violations")
	maxAllowed := utils.GetEnvAsInt("SAFETY_VIOLATIONS_MAX_ALLOWED", 5, log)
	windowDays := utils.GetEnvAsInt("SAFETY_VIOLATION_WINDOW_DAYS", 30, log)
	return &Violations{
		store:      store,
		bans:       bans,
		notifier:   notifier,
		maxAllowed: maxAllowed,
		window:     time.Duration(windowDays) * 24 * time.Hour,
		log:        svcLog,
	}
}

// Record persists a violation and, if the user is now over the threshold,
// bans them and returns UserBannedError. Any other return is nil or a
// storage failure.
func (s *Violations) Record(dbc dbctx.Context, userID string, action ViolationAction, source ViolationSource, recordType ViolationRecordType, recordID string) error {
	s.log.Info("recording safety violation", "user_id", userID, "source", string(source))
	v := &Violation{
		ID:              uuid.New(),
		UserID:          userID,
		UserAction:      action,
		DetectionSource: source,
		RecordType:      recordType,
		RecordID:        recordID,
	}
	if err := s.store.Create(dbc, v); err != nil {
		return err
	}
	over, err := s.isOverThreshold(dbc, userID)
	if err != nil {
		return err
	}
	if !over {
		return nil
	}
	if err := s.banUser(dbc, userID); err != nil {
		return err
	}
	return &UserBannedError{UserID: userID}
}

func (s *Violations) isOverThreshold(dbc dbctx.Context, userID string) (bool, error) {
	count, err := s.store.CountSince(dbc, userID, time.Now().Add(-s.window))
	if err != nil {
		return false, err
	}
	return count > int64(s.maxAllowed), nil
}

func (s *Violations) banUser(dbc dbctx.Context, userID string) error {
	s.log.Info("banning user", "user_id", userID)
	if err := s.bans.Ban(dbc, userID); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyUserBan(dbc, userID); err != nil {
			// Notification failure must not undo the ban.
			s.log.Error("failed to notify user ban", "user_id", userID, "error", err.Error())
		}
	}
	return nil
}

// RemoveByID deletes one violation and unbans the user if they are back
// under the threshold.
func (s *Violations) RemoveByID(dbc dbctx.Context, id uuid.UUID) error {
	v, err := s.store.GetByID(dbc, id)
	if err != nil {
		return err
	}
	if v == nil {
		s.log.Info("no safety violation found", "violation_id", id.String())
		return nil
	}
	if err := s.store.DeleteByID(dbc, id); err != nil {
		return err
	}
	return s.conditionallyUnban(dbc, v.UserID)
}

// RemoveByRecordID deletes all violations tied to a record, for example
// when a moderation decision is overturned on appeal, and unbans any
// affected user who drops back under the threshold.
func (s *Violations) RemoveByRecordID(dbc dbctx.Context, recordID string) error {
	violations, err := s.store.ListByRecordID(dbc, recordID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteByRecordID(dbc, recordID); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, v := range violations {
		if seen[v.UserID] {
			continue
		}
		seen[v.UserID] = true
		if err := s.conditionallyUnban(dbc, v.UserID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Violations) conditionallyUnban(dbc dbctx.Context, userID string) error {
	over, err := s.isOverThreshold(dbc, userID)
	if err != nil {
		return err
	}
	if over {
		return nil
	}
	banned, err := s.bans.IsBanned(dbc, userID)
	if err != nil {
		return err
	}
	if !banned {
		return nil
	}
	s.log.Info("unbanning user", "user_id", userID)
	return s.bans.Unban(dbc, userID)
}

// IsBanned reports current ban state for request gating.
func (s *Violations) IsBanned(dbc dbctx.Context, userID string) (bool, error) {
	return s.bans.IsBanned(dbc, userID)
}
