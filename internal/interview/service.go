// Package interview implements question generation, answer verification and
// the read-only session queries on top of the store and a model client.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

const (
	defaultSkill        = "General"
	defaultNumQuestions = 5
	defaultLLMTimeout   = 30 * time.Second
)

// Service ties the session store to the model.
type Service struct {
	store *store.Store
	llm   llm.Client
	cfg   model.InterviewConfig
}

// New creates a Service. Zero config values fall back to defaults.
func New(s *store.Store, client llm.Client, cfg model.InterviewConfig) *Service {
	if cfg.NumQuestions <= 0 {
		cfg.NumQuestions = defaultNumQuestions
	}
	if strings.TrimSpace(cfg.DefaultSkill) == "" {
		cfg.DefaultSkill = defaultSkill
	}
	if !prompts.IsValidVariant(cfg.PromptVariant) {
		cfg.PromptVariant = string(prompts.PromptStandard)
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = defaultLLMTimeout
	}
	return &Service{store: s, llm: client, cfg: cfg}
}

// TouchSession registers the caller's session and refreshes its idle timer.
func (s *Service) TouchSession(ctx context.Context, sessionID string) error {
	return s.store.TouchSession(ctx, sessionID)
}

// Generate asks the model for a batch of questions on skill, stores them in
// the session and returns the first question of the session.
func (s *Service) Generate(ctx context.Context, sessionID, skill string) (model.QuestionStub, error) {
	skill = strings.TrimSpace(skill)
	if skill == "" {
		skill = s.cfg.DefaultSkill
	}

	prompt, err := prompts.BuildGeneratePrompt(skill, s.cfg.NumQuestions)
	if err != nil {
		return model.QuestionStub{}, fmt.Errorf("build generate prompt: %w", err)
	}

	var pairs []model.QuestionPair
	if err := s.complete(ctx, prompt, llm.QuestionListShape, &pairs); err != nil {
		return model.QuestionStub{}, err
	}

	records := make([]model.QuestionRecord, 0, len(pairs))
	for _, p := range pairs {
		records = append(records, model.QuestionRecord{
			ID:            uuid.New().String(),
			Question:      p.Question,
			CorrectAnswer: p.Answer,
		})
	}

	if s.cfg.FreshSession {
		err = s.store.ReplaceRecords(ctx, sessionID, records)
	} else {
		err = s.store.AppendRecords(ctx, sessionID, records)
	}
	if err != nil {
		return model.QuestionStub{}, fmt.Errorf("store questions: %w", err)
	}
	slog.Info("questions generated", "session", sessionID, "skill", skill, "count", len(records))

	first, err := s.store.FirstRecord(ctx, sessionID)
	if err != nil {
		return model.QuestionStub{}, fmt.Errorf("first question: %w", err)
	}
	return model.QuestionStub{ID: first.ID, Question: first.Question}, nil
}

// Verify grades userInput against the stored question and records the
// answer together with the feedback.
func (s *Service) Verify(ctx context.Context, sessionID, questionID, userInput string) (model.Feedback, error) {
	rec, err := s.store.GetRecord(ctx, sessionID, questionID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Feedback{}, fmt.Errorf("question %q: %w", questionID, ErrInvalidReference)
	}
	if err != nil {
		return model.Feedback{}, fmt.Errorf("load question: %w", err)
	}

	prompt, err := prompts.BuildEvalPrompt(prompts.PromptVariant(s.cfg.PromptVariant), rec.Question, userInput)
	if err != nil {
		return model.Feedback{}, fmt.Errorf("build eval prompt: %w", err)
	}

	var fb model.Feedback
	if err := s.complete(ctx, prompt, llm.FeedbackShape, &fb); err != nil {
		return model.Feedback{}, err
	}

	if err := s.store.SetAnswer(ctx, sessionID, rec.ID, userInput, fb); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Session dropped by the janitor while the model was busy.
			return model.Feedback{}, fmt.Errorf("question %q: %w", questionID, ErrInvalidReference)
		}
		return model.Feedback{}, fmt.Errorf("store answer: %w", err)
	}
	slog.Info("answer verified", "session", sessionID, "question", rec.ID, "accuracy", fb.Accuracy)
	return fb, nil
}

// Questions lists the session's questions in order, without answers.
func (s *Service) Questions(ctx context.Context, sessionID string) ([]model.QuestionStub, error) {
	records, err := s.store.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	stubs := make([]model.QuestionStub, 0, len(records))
	for _, r := range records {
		stubs = append(stubs, model.QuestionStub{ID: r.ID, Question: r.Question})
	}
	return stubs, nil
}

// Feedback lists every question of the session with the user's answer and
// feedback, nil when not yet verified.
func (s *Service) Feedback(ctx context.Context, sessionID string) ([]model.FeedbackEntry, error) {
	records, err := s.store.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	entries := make([]model.FeedbackEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, model.FeedbackEntry{
			Question:   r.Question,
			UserAnswer: r.UserAnswer,
			Feedback:   r.Feedback,
		})
	}
	return entries, nil
}

// complete runs one model call under the configured timeout and decodes the
// output into v.
func (s *Service) complete(ctx context.Context, prompt string, shape *llm.Shape, v any) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.llm.Complete(callCtx, prompt, shape)
	if err != nil {
		slog.Error("model call failed", "shape", shape.Name, "duration", time.Since(start), "error", err)
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if err := shape.Decode(raw, v); err != nil {
		slog.Error("model output rejected", "shape", shape.Name, "error", err)
		slog.Debug("rejected model output", "shape", shape.Name, "raw", raw)
		return err
	}
	return nil
}
