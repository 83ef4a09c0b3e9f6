package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	tests := map[string]string{
		"InvalidQuestionID":  "Invalid question ID",
		"InvalidRequestBody": "Invalid request body",
		"GenerateFailed":     "Failed to generate question",
		"FeedbackFailed":     "Error generating feedback.",
	}
	for id, want := range tests {
		if got := T(ctx, id); got != want {
			t.Errorf("T(%s) = %q, want %q", id, got, want)
		}
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "InvalidQuestionID")
	if got != "Неверный идентификатор вопроса" {
		t.Errorf("T(InvalidQuestionID) = %q, want 'Неверный идентификатор вопроса'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuestionsGenerated", 1, map[string]any{"Skill": "Go"})
	if got1 != "Generated 1 Go question." {
		t.Errorf("Tp(QuestionsGenerated, 1) = %q", got1)
	}

	got5 := Tp(ctx, "QuestionsGenerated", 5, map[string]any{"Skill": "Go"})
	if got5 != "Generated 5 Go questions." {
		t.Errorf("Tp(QuestionsGenerated, 5) = %q", got5)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestContextWithoutLocalizer(t *testing.T) {
	initLang(t, "en")

	if got := T(context.Background(), "GenerateFailed"); got != "Failed to generate question" {
		t.Errorf("T without localizer = %q", got)
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "InvalidRequestBody")
	}))

	tests := []struct {
		accept string
		want   string
	}{
		{"", "Invalid request body"},
		{"ru-RU,ru;q=0.9,en;q=0.8", "Неверное тело запроса"},
		{"de-DE", "Invalid request body"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.accept != "" {
			req.Header.Set("Accept-Language", tt.accept)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("Accept-Language %q: got %q, want %q", tt.accept, got, tt.want)
		}
	}
}
