package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/quizgen"
)

type stubLLM struct{}

func (stubLLM) StreamCompletion(context.Context, string, string, func(string) error) error {
	return nil
}

func (stubLLM) CompleteObject(context.Context, string, string) (json.RawMessage, error) {
	return nil, nil
}

func TestQuizSelectionStrategies(t *testing.T) {
	log := logger.NewNop()

	reranker, selector := quizSelection("compose", stubLLM{}, nil, log)
	if _, ok := reranker.(quizgen.NoopReranker); !ok {
		t.Errorf("compose reranker = %T, want NoopReranker", reranker)
	}
	if _, ok := selector.(*quizgen.Composer); !ok {
		t.Errorf("compose selector = %T, want Composer", selector)
	}

	reranker, selector = quizSelection("rerank", stubLLM{}, nil, log)
	if _, ok := reranker.(*quizgen.LLMReranker); !ok {
		t.Errorf("rerank reranker = %T, want LLMReranker", reranker)
	}
	if _, ok := selector.(quizgen.SimpleSelector); !ok {
		t.Errorf("rerank selector = %T, want SimpleSelector", selector)
	}

	reranker, selector = quizSelection("", stubLLM{}, nil, log)
	if _, ok := reranker.(quizgen.NoopReranker); !ok {
		t.Errorf("unknown strategy reranker = %T, want the compose default", reranker)
	}
	if _, ok := selector.(*quizgen.Composer); !ok {
		t.Errorf("unknown strategy selector = %T, want the compose default", selector)
	}
}
