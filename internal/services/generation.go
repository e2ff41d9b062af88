package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/agents"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/data/repos/moderations"
	types "github.com/oaknational/oak-ai-lesson-assistant/internal/domain/chat"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/patches"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/plugins"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/protocol"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/quizgen"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/safety"
)

// maxSectionsPerTurn caps how many missing sections one generation run
// fills in, so a fresh chat builds its plan over a few conversational
// turns instead of one monolithic response.
const maxSectionsPerTurn = 5

// GenerationRequest is one user turn against a chat.
type GenerationRequest struct {
	ChatID   string
	UserID   string
	Messages []types.Message
}

// DocumentSink receives protocol documents as the run produces them.
type DocumentSink func(doc *protocol.Document) error

// GenerationService runs one generation turn end to end: session load,
// threat gate, agent dispatch, streamed patch application, moderation
// gate and persistence. At most one run may be in flight per chat id;
// the transport layer enforces that.
type GenerationService interface {
	Stream(ctx context.Context, req GenerationRequest, sink DocumentSink) error
}

type generationService struct {
	log        *logger.Logger
	chats      ChatService
	limiter    RateLimiter
	llm        LLMClient
	runner     *agents.Runner
	violations *safety.Violations
	moderator  *safety.Moderator
	threat     safety.ThreatDetector
	modRepo    moderations.ModerationRepo
	quizzes    *quizgen.Pipeline
	plugin     plugins.Plugin
}

func NewGenerationService(
	log *logger.Logger,
	chats ChatService,
	limiter RateLimiter,
	llm LLMClient,
	runner *agents.Runner,
	violations *safety.Violations,
	moderator *safety.Moderator,
	threat safety.ThreatDetector,
	modRepo moderations.ModerationRepo,
	quizzes *quizgen.Pipeline,
	plugin plugins.Plugin,
) GenerationService {
	if plugin == nil {
		plugin = plugins.NoopPlugin{}
	}
	return &generationService{
		log:        log.With("service", "GenerationService"),
		chats:      chats,
		limiter:    limiter,
		llm:        llm,
		runner:     runner,
		violations: violations,
		moderator:  moderator,
		threat:     threat,
		modRepo:    modRepo,
		quizzes:    quizzes,
		plugin:     plugin,
	}
}

func (s *generationService) Stream(ctx context.Context, req GenerationRequest, sink DocumentSink) error {
	ctx, span := otel.Tracer("generation").Start(ctx, "generation.stream",
		trace.WithAttributes(attribute.String("chat.id", req.ChatID)))
	defer span.End()

	err := s.stream(ctx, req, sink)
	if err == nil {
		return nil
	}

	// Distinguished conditions carry their own terminal documents; the
	// handler maps them. Everything else goes through the stream-error
	// hook before being surfaced generically.
	var authErr *AuthenticationError
	var rateErr *RateLimitExceededError
	var threatErr *safety.ThreatDetectionError
	var bannedErr *safety.UserBannedError
	if errors.As(err, &authErr) || errors.As(err, &rateErr) ||
		errors.As(err, &threatErr) || errors.As(err, &bannedErr) {
		return err
	}

	if hookErr := s.plugin.OnStreamError(ctx, err, plugins.Enqueue(sink)); hookErr != nil {
		s.log.Warn("stream error hook failed", "error", hookErr.Error())
	}
	return err
}

func (s *generationService) stream(ctx context.Context, req GenerationRequest, sink DocumentSink) error {
	if err := s.limiter.Check(ctx, req.UserID); err != nil {
		return err
	}

	dbc := dbctx.New(ctx)
	sess, output, err := s.chats.LoadOrCreate(dbc, req.ChatID, req.UserID)
	if err != nil {
		return err
	}

	banned, err := s.violations.IsBanned(dbc, req.UserID)
	if err != nil {
		return err
	}
	if banned {
		return &safety.UserBannedError{UserID: req.UserID}
	}

	output.Messages = types.MergeTranscript(output.Messages, req.Messages)
	types.RepairMessageIDs(output.Messages)
	userMsg := types.LastUserMessage(output.Messages)
	if userMsg == nil {
		return fmt.Errorf("no user message in transcript")
	}

	if err := s.checkThreat(dbc, sess, output, userMsg); err != nil {
		return err
	}

	// The id announced here is the assistant message this run will append,
	// so the client can correlate the stream with the stored transcript.
	assistantID := types.NewMessageID()
	if err := sink(protocol.NewMessageIDDocument(assistantID)); err != nil {
		return err
	}
	if err := sink(protocol.NewStateDocument("streaming", "")); err != nil {
		return err
	}

	applier := patches.NewApplier(output.LessonPlan)
	sectionErrs := 0
	for _, key := range s.sectionsForTurn(output.LessonPlan) {
		if ctx.Err() != nil {
			break
		}
		aborted, err := s.generateSection(ctx, dbc, sess, applier, key, userMsg.Content, sink)
		if err != nil {
			// A section failure is terminal for that section only.
			s.log.Warn("section generation failed", "section", string(key), "error", err.Error())
			sectionErrs++
			if doc := sectionErrorDoc(key, err); doc != nil {
				if serr := sink(doc); serr != nil {
					return serr
				}
			}
			var bannedErr *safety.UserBannedError
			if errors.As(err, &bannedErr) {
				return bannedErr
			}
			continue
		}
		if aborted {
			break
		}
	}

	output.Messages = append(output.Messages, types.Message{
		ID:      assistantID,
		Role:    types.RoleAssistant,
		Content: assistantSummary(output.LessonPlan),
	})

	// Persist even when the run was cancelled or a section failed: the
	// applier only ever wrote schema-valid sections. The save must
	// survive the caller disconnecting.
	saveCtx := dbctx.New(context.WithoutCancel(dbc.Ctx))
	saveCtx.Tx = dbc.Tx
	if err := s.chats.SaveOutput(saveCtx, sess, output); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return sink(protocol.NewStateDocument("done", ""))
}

// checkThreat runs the prompt-injection detectors over the user turn.
// A positive detection records a violation and aborts before any
// generation happens. The detector's raw verdict never reaches the
// client.
func (s *generationService) checkThreat(dbc dbctx.Context, sess *types.Session, output *types.SessionOutput, userMsg *types.Message) error {
	detected, err := s.threat.DetectThreat(dbc.Ctx, []string{userMsg.Content})
	if err != nil {
		s.log.Warn("threat detection unavailable", "error", err.Error())
		return nil
	}
	if !detected {
		return nil
	}

	if err := s.chats.SaveOutput(dbc, sess, output); err != nil {
		s.log.Error("failed to persist transcript after threat detection", "error", err.Error())
	}
	rerr := s.violations.Record(dbc, sess.UserID,
		safety.ActionChatMessage, safety.SourceThreat, safety.RecordChatSession, sess.ID)
	var bannedErr *safety.UserBannedError
	if errors.As(rerr, &bannedErr) {
		return bannedErr
	}
	if rerr != nil {
		s.log.Error("failed to record threat violation", "error", rerr.Error())
	}
	return &safety.ThreatDetectionError{UserID: sess.UserID, ChatID: sess.ID}
}

// sectionsForTurn picks the sections this run should generate: the
// missing ones in canonical order, capped per turn.
func (s *generationService) sectionsForTurn(p *plan.LessonPlan) []plan.SectionKey {
	missing := p.MissingSections()
	if len(missing) > maxSectionsPerTurn {
		missing = missing[:maxSectionsPerTurn]
	}
	return missing
}

// generateSection runs one agent and moderates its output. Documents are
// held back until the section passes moderation, then flushed in order.
// Returns aborted=true when a moderation verdict ended the run.
func (s *generationService) generateSection(
	ctx context.Context,
	dbc dbctx.Context,
	sess *types.Session,
	applier *patches.Applier,
	key plan.SectionKey,
	userRequest string,
	sink DocumentSink,
) (bool, error) {
	def, err := agents.Dispatch(key, applier.Plan())
	if err != nil {
		return false, err
	}

	var pending []*protocol.Document
	hold := func(doc *protocol.Document) { pending = append(pending, doc) }

	switch def.Kind {
	case agents.KindPipeline:
		if err := s.runQuizAgent(ctx, def, applier, key, userRequest, hold); err != nil {
			return false, err
		}
	case agents.KindPrompt:
		if err := s.runPromptAgent(ctx, def, applier, key, userRequest, hold); err != nil {
			return false, err
		}
	default:
		// Control agents (deleteSection, endTurn) are never selected for
		// a missing section.
		return false, fmt.Errorf("agent %q cannot generate a section", def.Name)
	}

	aborted, err := s.moderateSection(ctx, dbc, sess, applier, key, sink)
	if err != nil || aborted {
		return aborted, err
	}

	for _, doc := range pending {
		if err := sink(doc); err != nil {
			return false, err
		}
	}
	return false, nil
}

// runPromptAgent drives a streaming completion through the incremental
// protocol parser. Patch operations are applied the moment they parse;
// unparseable parts become bad documents and are dropped with a log line.
// If the stream never produced a valid section, the structured retry path
// takes over.
func (s *generationService) runPromptAgent(
	ctx context.Context,
	def *agents.Definition,
	applier *patches.Applier,
	key plan.SectionKey,
	userRequest string,
	hold func(doc *protocol.Document),
) error {
	parser := protocol.NewStreamParser()

	handle := func(parts []protocol.Part) {
		for _, part := range parts {
			if part.Doc == nil {
				continue
			}
			s.handleStreamedDoc(part.Doc, applier, hold)
		}
	}

	err := s.llm.StreamCompletion(ctx,
		streamSystemPrompt(def),
		streamUserPrompt(def, applier.Plan(), userRequest),
		func(chunk string) error {
			handle(parser.Append(chunk))
			return ctx.Err()
		})
	if err != nil {
		return err
	}
	handle(parser.Flush())

	if applier.Plan().Has(key) {
		return nil
	}

	// The stream did not land a valid value for this section. Fall back
	// to the structured agent call, which retries once with the
	// validation error before giving up.
	value, err := s.runner.Run(ctx, def, agents.Input{Plan: applier.Plan(), UserRequest: userRequest})
	if err != nil {
		return err
	}
	op := protocol.PatchOp{Op: protocol.OpAdd, Path: "/" + string(key), Value: value}
	if _, err := applier.Apply(op); err != nil {
		return err
	}
	hold(protocol.NewPatchDocument("generated "+string(key), op))
	return nil
}

func (s *generationService) handleStreamedDoc(doc *protocol.Document, applier *patches.Applier, hold func(doc *protocol.Document)) {
	switch doc.Type {
	case protocol.DocPatch:
		if _, err := applier.Apply(*doc.Patch); err != nil {
			// Recoverable: drop the op, surface the failure, keep going.
			hold(protocol.NewErrorDocument(err.Error(), "Sorry, I could not apply part of that change."))
			return
		}
		hold(doc)
	case protocol.DocBad:
		s.log.Debug("dropping unparseable stream part", "issues", doc.Issues)
	default:
		hold(doc)
	}
}

// runQuizAgent builds a maths quiz through the multi-source pipeline. A
// bail falls back to the prose quiz agent rather than failing the
// section.
func (s *generationService) runQuizAgent(
	ctx context.Context,
	def *agents.Definition,
	applier *patches.Applier,
	key plan.SectionKey,
	userRequest string,
	hold func(doc *protocol.Document),
) error {
	var quizType quizgen.QuizType
	switch key {
	case plan.SectionStarterQuiz:
		quizType = quizgen.StarterQuiz
	case plan.SectionExitQuiz:
		quizType = quizgen.ExitQuiz
	default:
		return fmt.Errorf("agent %q has no pipeline for section %q", def.Name, key)
	}

	result, err := s.quizzes.BuildQuiz(ctx, quizType, applier.Plan(), nil)
	if err != nil {
		return err
	}
	if result.Status == quizgen.BuildBail {
		s.log.Info("quiz pipeline bailed, falling back to prose agent", "section", string(key))
		fallback, err := fallbackQuizAgent(key)
		if err != nil {
			return err
		}
		return s.runPromptAgent(ctx, fallback, applier, key, userRequest, hold)
	}

	value, err := json.Marshal(result.Quiz)
	if err != nil {
		return err
	}
	op := protocol.PatchOp{Op: protocol.OpAdd, Path: "/" + string(key), Value: value}
	if applier.Plan().Has(key) {
		op.Op = protocol.OpReplace
	}
	if _, err := applier.Apply(op); err != nil {
		return err
	}
	hold(protocol.NewPatchDocument("composed "+string(key)+" from candidate pools", op))
	return nil
}

func fallbackQuizAgent(key plan.SectionKey) (*agents.Definition, error) {
	name := agents.AgentStarterQuiz
	if key == plan.SectionExitQuiz {
		name = agents.AgentExitQuiz
	}
	return agents.Lookup(name)
}

// moderateSection classifies the freshly generated section. Safe content
// lets the held documents flush. Toxic content reverts the section,
// records a violation and aborts the run with its terminal documents.
func (s *generationService) moderateSection(
	ctx context.Context,
	dbc dbctx.Context,
	sess *types.Session,
	applier *patches.Applier,
	key plan.SectionKey,
	sink DocumentSink,
) (bool, error) {
	content, err := applier.Plan().SectionJSON(key)
	if err != nil || len(content) == 0 {
		return false, nil
	}

	result, err := s.moderator.Moderate(ctx, string(content))
	if err != nil {
		return false, err
	}

	row := &safety.Moderation{
		ID:            uuid.NewString(),
		SessionID:     sess.ID,
		UserID:        sess.UserID,
		Justification: result.Justification,
	}
	if raw, merr := json.Marshal(result.Categories); merr == nil {
		row.Categories = datatypes.JSON(raw)
	}
	if result.Scores != nil {
		if raw, merr := json.Marshal(result.Scores); merr == nil {
			row.Scores = datatypes.JSON(raw)
		}
	}
	s.plugin.OnBackgroundWork("persist_moderation", func(bgCtx context.Context) error {
		return s.modRepo.Create(dbctx.New(bgCtx), row)
	})

	if !result.IsToxic() {
		return false, nil
	}

	if hookErr := s.plugin.OnToxicModeration(ctx, result, plugins.Enqueue(sink)); hookErr != nil {
		s.log.Warn("toxic moderation hook failed", "error", hookErr.Error())
	}

	// Discard the toxic content before anything persists it.
	_ = applier.Plan().RemoveSection(key)

	rerr := s.violations.Record(dbc, sess.UserID,
		safety.ActionChatMessage, safety.SourceModeration, safety.RecordModeration, sess.ID)
	var bannedErr *safety.UserBannedError
	if errors.As(rerr, &bannedErr) {
		return true, bannedErr
	}
	if rerr != nil {
		s.log.Error("failed to record moderation violation", "error", rerr.Error())
	}

	if err := sink(protocol.NewModerationDocument(row.ID, result.Categories)); err != nil {
		return true, err
	}
	if err := sink(protocol.NewErrorDocument("moderation",
		"Sorry, I cannot include that content in a lesson. Please try a different request.")); err != nil {
		return true, err
	}
	return true, nil
}

func sectionErrorDoc(key plan.SectionKey, err error) *protocol.Document {
	var bannedErr *safety.UserBannedError
	if errors.As(err, &bannedErr) {
		return nil
	}
	return protocol.NewErrorDocument(err.Error(),
		"Sorry, I could not generate the "+string(key)+" section. Other sections are unaffected.")
}

// assistantSummary is the transcript entry recorded for the assistant
// turn: a short statement of where the plan now stands.
func assistantSummary(p *plan.LessonPlan) string {
	missing := p.MissingSections()
	if len(missing) == 0 {
		return "Your lesson plan is complete. Let me know if you would like to refine any section."
	}
	names := make([]string, 0, len(missing))
	for _, key := range missing {
		names = append(names, string(key))
	}
	return "I have updated your lesson plan. Still to come: " + strings.Join(names, ", ") + "."
}
