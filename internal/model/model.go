package model

import (
	"context"
	"time"
)

// QuestionRecord is one generated interview question together with the
// reference answer and, once verified, the caller's answer and its feedback.
type QuestionRecord struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	CorrectAnswer string    `json:"correctAnswer"`
	UserAnswer    *string   `json:"userAnswer"`
	Feedback      *Feedback `json:"feedback"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Answered reports whether the record has been verified.
func (r QuestionRecord) Answered() bool {
	return r.UserAnswer != nil && r.Feedback != nil
}

// Feedback is the model's evaluation of a user's answer.
type Feedback struct {
	Accuracy      float64  `json:"accuracy"`
	MissingPoints []string `json:"missingPoints,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
}

// QuestionPair is one item of the generation output.
type QuestionPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QuestionStub is the public projection of a record used by question listings.
type QuestionStub struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// FeedbackEntry is the public projection of a record used by the feedback summary.
type FeedbackEntry struct {
	Question   string    `json:"question"`
	UserAnswer *string   `json:"userAnswer"`
	Feedback   *Feedback `json:"feedback"`
}

// Session is a caller's question session.
type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
}

// InterviewConfig holds runtime interview parameters set via CLI flags.
type InterviewConfig struct {
	NumQuestions  int           // questions requested per generation
	DefaultSkill  string        // used when the caller omits the skill
	FreshSession  bool          // clear the caller's session before each generation
	PromptVariant string        // grading prompt variant (strict, standard, lenient)
	LLMTimeout    time.Duration // upper bound for a single model call
}

// ServerConfig holds HTTP-level settings.
type ServerConfig struct {
	BasePath      string
	StaticDir     string
	SessionSecret string
	SessionTTL    time.Duration
	SecureCookies bool
}

type sessionCtxKey struct{}

// ContextWithSessionID stores the caller's session id in the request context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, id)
}

// SessionIDFromContext retrieves the session id from context (empty string if not set).
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionCtxKey{}).(string)
	return id
}
