package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/data/repos/session"
	types "github.com/oaknational/oak-ai-lesson-assistant/internal/domain/chat"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

// ChatService owns chat session lifecycle: loading a session for a
// generation run, verifying ownership and persisting the updated output at
// the end of the run.
type ChatService interface {
	LoadOrCreate(dbc dbctx.Context, chatID, userID string) (*types.Session, *types.SessionOutput, error)
	SaveOutput(dbc dbctx.Context, sess *types.Session, out *types.SessionOutput) error
	ListForUser(dbc dbctx.Context, userID string, limit int) ([]*types.Session, error)
	Delete(dbc dbctx.Context, chatID, userID string) error
}

type chatService struct {
	log  *logger.Logger
	repo session.SessionRepo
}

func NewChatService(log *logger.Logger, repo session.SessionRepo) ChatService {
	return &chatService{log: log.With("service", "ChatService"), repo: repo}
}

func (s *chatService) LoadOrCreate(dbc dbctx.Context, chatID, userID string) (*types.Session, *types.SessionOutput, error) {
	if userID == "" {
		return nil, nil, &AuthenticationError{Reason: "no user"}
	}
	if chatID == "" {
		chatID = uuid.NewString()
	}

	sess, err := s.repo.GetByID(dbc, chatID)
	if errors.Is(err, session.ErrNotFound) {
		sess = &types.Session{
			ID:        chatID,
			UserID:    userID,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := sess.EncodeOutput(&types.SessionOutput{}); err != nil {
			return nil, nil, err
		}
		if err := s.repo.Create(dbc, sess); err != nil {
			return nil, nil, fmt.Errorf("create session: %w", err)
		}
	} else if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	// Session ownership is authorization, not a lookup failure: a wrong
	// user gets the same response as a bad credential.
	if sess.UserID != userID {
		return nil, nil, &AuthenticationError{Reason: "chat does not belong to user"}
	}

	out, err := sess.DecodeOutput()
	if err != nil {
		return nil, nil, fmt.Errorf("decode session output: %w", err)
	}
	if repaired := types.RepairMessageIDs(out.Messages); repaired > 0 {
		s.log.Info("repaired message ids", "chat_id", sess.ID, "count", repaired)
	}
	return sess, out, nil
}

func (s *chatService) SaveOutput(dbc dbctx.Context, sess *types.Session, out *types.SessionOutput) error {
	if sess == nil {
		return fmt.Errorf("missing session")
	}
	if out.LessonPlan != nil && out.LessonPlan.Title != "" {
		sess.Title = out.LessonPlan.Title
	}
	if err := sess.EncodeOutput(out); err != nil {
		return err
	}
	sess.Iteration++
	sess.UpdatedAt = time.Now()
	return s.repo.Update(dbc, sess)
}

func (s *chatService) ListForUser(dbc dbctx.Context, userID string, limit int) ([]*types.Session, error) {
	if userID == "" {
		return nil, &AuthenticationError{Reason: "no user"}
	}
	return s.repo.ListByUser(dbc, userID, limit)
}

func (s *chatService) Delete(dbc dbctx.Context, chatID, userID string) error {
	sess, err := s.repo.GetByID(dbc, chatID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return &AuthenticationError{Reason: "chat does not belong to user"}
	}
	return s.repo.DeleteByID(dbc, chatID)
}
