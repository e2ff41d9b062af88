package quizgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/quiz"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/utils"
)

// QuestionSearch retrieves curriculum quiz questions from the question
// index. Lookup by lesson returns that lesson's published questions;
// semantic search matches free-text queries against question content.
type QuestionSearch interface {
	ByLessonSlugs(ctx context.Context, slugs []string) ([]quiz.RagQuizQuestion, error)
	Semantic(ctx context.Context, query string, limit int) ([]quiz.RagQuizQuestion, error)
}

type httpQuestionSearch struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logger.Logger
}

func NewHTTPQuestionSearch(log *logger.Logger) QuestionSearch {
	return &httpQuestionSearch{
		baseURL: utils.GetEnv("QUIZ_SEARCH_URL", "", log),
		apiKey:  utils.GetEnv("QUIZ_SEARCH_API_KEY", "", log),
		client:  &http.Client{Timeout: 20 * time.Second},
		log:     log.With("service", "question_search"),
	}
}

type searchRequest struct {
	LessonSlugs []string `json:"lessonSlugs,omitempty"`
	Query       string   `json:"query,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

type searchResponse struct {
	Questions []quiz.RagQuizQuestion `json:"questions"`
}

func (s *httpQuestionSearch) ByLessonSlugs(ctx context.Context, slugs []string) ([]quiz.RagQuizQuestion, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	return s.search(ctx, "/questions/by-lesson", searchRequest{LessonSlugs: slugs})
}

func (s *httpQuestionSearch) Semantic(ctx context.Context, query string, limit int) ([]quiz.RagQuizQuestion, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	return s.search(ctx, "/questions/semantic", searchRequest{Query: query, Limit: limit})
}

func (s *httpQuestionSearch) search(ctx context.Context, path string, req searchRequest) ([]quiz.RagQuizQuestion, error) {
	if s.baseURL == "" {
		s.log.Warn("question search skipped, no QUIZ_SEARCH_URL configured")
		return nil, nil
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("question search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("question search returned status %d", resp.StatusCode)
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode question search response: %w", err)
	}
	return out.Questions, nil
}
