package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/interviewprep/interviewprep/internal/model"
)

// ErrParse is returned when no usable JSON object can be decoded.
var ErrParse = errors.New("unparsable score response")

const (
	fallbackScore   = 70
	fallbackSummary = "We couldn't parse the feedback for this response. The scores shown are placeholders."
	noResponseText  = "No meaningful response detected. Skipping feedback."
)

// trailingObject matches from the first '{' to a '}' that ends the text.
var trailingObject = regexp.MustCompile(`\{[\s\S]*\}$`)

// FallbackResult is substituted when the scoring response cannot be parsed.
func FallbackResult() model.ScoreResult {
	return model.ScoreResult{
		OverallScore: fallbackScore,
		SectionScores: model.SectionScores{
			OverallImpression: fallbackScore,
			ClarityStructure:  fallbackScore,
			Content:           fallbackScore,
		},
		Summary:       fallbackSummary,
		Suggestions:   []string{},
		RubricVersion: model.RubricVersion,
		Placeholder:   true,
	}
}

// NoResponseResult is substituted when the transcript holds nothing to score.
func NoResponseResult() model.ScoreResult {
	return model.ScoreResult{
		Summary:       noResponseText,
		Suggestions:   []string{},
		RubricVersion: model.RubricVersion,
		Placeholder:   true,
	}
}

// ParseScore extracts the trailing JSON object from raw and decodes it.
// Numeric fields are coerced to numbers and clamped into [0,100].
func ParseScore(raw string) (model.ScoreResult, error) {
	match := trailingObject.FindString(strings.TrimSpace(raw))
	if match == "" {
		return model.ScoreResult{}, fmt.Errorf("%w: no JSON object found", ErrParse)
	}

	var wire scoreWire
	if err := json.Unmarshal([]byte(match), &wire); err != nil {
		return model.ScoreResult{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	result := model.ScoreResult{
		OverallScore: int(wire.OverallScore),
		SectionScores: model.SectionScores{
			OverallImpression: int(wire.SectionScores.OverallImpression),
			ClarityStructure:  int(wire.SectionScores.ClarityStructure),
			Content:           int(wire.SectionScores.Content),
		},
		Summary:       string(wire.Summary),
		Suggestions:   []string(wire.Suggestions),
		RubricVersion: string(wire.RubricVersion),
	}
	if result.Suggestions == nil {
		result.Suggestions = []string{}
	}
	if result.RubricVersion == "" {
		result.RubricVersion = model.RubricVersion
	}
	return result, nil
}

// scoreWire is the schema requested from the model.
type scoreWire struct {
	OverallScore  score       `json:"overallScore"`
	SectionScores sectionWire `json:"sectionScores"`
	Summary       looseString `json:"summary"`
	Suggestions   stringList  `json:"suggestions"`
	RubricVersion looseString `json:"rubricVersion"`
}

type sectionWire struct {
	OverallImpression score `json:"overallImpression"`
	ClarityStructure  score `json:"clarityStructure"`
	Content           score `json:"content"`
}

// UnmarshalJSON treats anything other than an object as empty sections.
func (s *sectionWire) UnmarshalJSON(data []byte) error {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		*s = sectionWire{}
		return nil
	}
	type plain sectionWire
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = sectionWire(p)
	return nil
}

// score is a rubric value clamped into [0,100]. Non-numeric input becomes 0.
type score int

func (s *score) UnmarshalJSON(data []byte) error {
	*s = score(clamp(toNumber(data)))
	return nil
}

func toNumber(data []byte) float64 {
	data = bytes.TrimSpace(data)
	var text string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return 0
		}
	} else {
		text = string(data)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func clamp(f float64) int {
	return int(math.Round(math.Max(0, math.Min(100, f))))
}

// looseString keeps string values and drops anything else.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		*s = ""
		return nil
	}
	*s = looseString(v)
	return nil
}

// stringList keeps the string entries of an array and drops anything else.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		*l = nil
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var v string
		if json.Unmarshal(item, &v) == nil && strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	*l = out
	return nil
}
