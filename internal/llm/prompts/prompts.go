package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"text/template"
)

// FS holds the built-in prompt templates.
//
//go:embed templates/*.txt
var FS embed.FS

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict expects precise terminology and complete coverage.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient rewards the general idea over exact wording.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce         sync.Once
	loadErr          error
	generateTemplate *template.Template
	evalTemplates    map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// GenerateData holds template data for question generation prompts.
type GenerateData struct {
	Skill string
	Count int
}

// EvalData holds template data for answer evaluation prompts.
type EvalData struct {
	QuestionText string
	Answer       string
}

// Load loads prompt templates from fsys, which must contain a templates/
// directory laid out like FS.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		tmpl, err := parseFile(fsys, "templates/generate.txt")
		if err != nil {
			loadErr = err
			return
		}
		generateTemplate = tmpl

		evalTemplates = make(map[PromptVariant]*template.Template)
		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			tmpl, err := parseFile(fsys, "templates/eval_"+string(v)+".txt")
			if err != nil {
				loadErr = err
				return
			}
			evalTemplates[v] = tmpl
		}
	})
	return loadErr
}

func parseFile(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// BuildGeneratePrompt builds the prompt asking for count question/answer
// pairs about skill.
func BuildGeneratePrompt(skill string, count int) (string, error) {
	if generateTemplate == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	if count < 1 {
		return "", fmt.Errorf("question count must be positive, got %d", count)
	}

	var buf bytes.Buffer
	if err := generateTemplate.Execute(&buf, GenerateData{Skill: skill, Count: count}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildEvalPrompt builds an evaluation prompt using the specified variant.
func BuildEvalPrompt(variant PromptVariant, question, answer string) (string, error) {
	if evalTemplates == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := evalTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := EvalData{
		QuestionText: question,
		Answer:       strings.TrimSpace(answer),
	}
	if data.Answer == "" {
		data.Answer = "[No answer provided]"
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
