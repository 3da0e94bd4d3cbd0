package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/interviewprep/interviewprep/internal/model"
)

//go:embed templates/*.txt
var Templates embed.FS

const maxInputRunes = 10000

var (
	questionTagRegex   = regexp.MustCompile(`(?i)</?\s*question\b[^>]*>`)
	transcriptTagRegex = regexp.MustCompile(`(?i)</?\s*transcript\b[^>]*>`)
)

// PromptVariant represents a scoring prompt variant.
type PromptVariant string

const (
	// PromptStrict scores against a competitive-applicant bar.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default scoring variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient favours encouragement for early practice.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce       sync.Once
	loadErr        error
	scoreTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// ScoreData holds template data for scoring prompts.
type ScoreData struct {
	Profession    string
	Question      string
	Transcript    string
	RubricVersion string
}

// Load parses the scoring templates once. Later calls return the first result.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		scoreTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			file := "templates/score_" + string(v) + ".txt"

			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}

			tmpl, err := template.New(string(v)).Option("missingkey=error").Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			scoreTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildScorePrompt renders the scoring prompt for one answer. The profession
// is passed explicitly for every call.
func BuildScorePrompt(variant PromptVariant, profession, question, transcript string) (string, error) {
	if scoreTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := scoreTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	if strings.TrimSpace(profession) == "" {
		profession = model.DefaultProfession
	}

	data := ScoreData{
		Profession:    sanitize(profession, "General"),
		Question:      sanitize(question, "[No question provided]"),
		Transcript:    sanitize(transcript, "[No answer provided]"),
		RubricVersion: model.RubricVersion,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips the delimiter tags used in the prompt and bounds the length.
func sanitize(s, empty string) string {
	s = questionTagRegex.ReplaceAllString(s, "")
	s = transcriptTagRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if s == "" {
		return empty
	}

	if utf8.RuneCountInString(s) > maxInputRunes {
		runes := []rune(s)
		s = string(runes[:maxInputRunes]) + "\n\n[Truncated due to length]"
	}
	return s
}
