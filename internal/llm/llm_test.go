package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/interviewprep/interviewprep/internal/llm/prompts"
	"github.com/interviewprep/interviewprep/internal/model"
)

type fakeAPI struct {
	reply    string
	err      error
	calls    int
	lastReq  openai.ChatCompletionRequest
	audio    string
	audioReq openai.AudioRequest
}

func (f *fakeAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

func (f *fakeAPI) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	f.audioReq = req
	if f.err != nil {
		return openai.AudioResponse{}, f.err
	}
	data, _ := io.ReadAll(req.Reader)
	f.audio = string(data)
	return openai.AudioResponse{Text: "transcribed " + string(data)}, nil
}

func (f *fakeAPI) ListModels(context.Context) (openai.ModelsList, error) {
	return openai.ModelsList{}, f.err
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	if err := prompts.Load(prompts.Templates); err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	return &Client{api: api, model: "test-model", transcribeModel: openai.Whisper1, variant: prompts.PromptStandard}
}

func inRange(r model.ScoreResult) bool {
	for _, v := range []int{r.OverallScore, r.SectionScores.OverallImpression, r.SectionScores.ClarityStructure, r.SectionScores.Content} {
		if v < 0 || v > 100 {
			return false
		}
	}
	return true
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    model.ScoreResult
		wantErr bool
	}{
		{
			name: "well formed",
			raw:  `{"overallScore": 82, "sectionScores": {"overallImpression": 80, "clarityStructure": 75, "content": 90}, "summary": "Good.", "suggestions": ["Be specific"], "rubricVersion": "v1"}`,
			want: model.ScoreResult{
				OverallScore:  82,
				SectionScores: model.SectionScores{OverallImpression: 80, ClarityStructure: 75, Content: 90},
				Summary:       "Good.",
				Suggestions:   []string{"Be specific"},
				RubricVersion: "v1",
			},
		},
		{
			name: "prose before object",
			raw:  "Here is my assessment:\n" + `{"overallScore": 60, "sectionScores": {"overallImpression": 60, "clarityStructure": 60, "content": 60}, "summary": "ok", "suggestions": []}` + "\n",
			want: model.ScoreResult{
				OverallScore:  60,
				SectionScores: model.SectionScores{OverallImpression: 60, ClarityStructure: 60, Content: 60},
				Summary:       "ok",
				Suggestions:   []string{},
				RubricVersion: "v1",
			},
		},
		{
			name: "out of range and strings",
			raw:  `{"overallScore": 140, "sectionScores": {"overallImpression": -5, "clarityStructure": "88", "content": "lots"}, "summary": 12, "suggestions": "none"}`,
			want: model.ScoreResult{
				OverallScore:  100,
				SectionScores: model.SectionScores{OverallImpression: 0, ClarityStructure: 88, Content: 0},
				Suggestions:   []string{},
				RubricVersion: "v1",
			},
		},
		{
			name: "missing fields",
			raw:  `{}`,
			want: model.ScoreResult{Suggestions: []string{}, RubricVersion: "v1"},
		},
		{
			name: "sections not an object",
			raw:  `{"overallScore": 50.6, "sectionScores": "n/a", "suggestions": ["a", 3, "", "b"]}`,
			want: model.ScoreResult{OverallScore: 51, Suggestions: []string{"a", "b"}, RubricVersion: "v1"},
		},
		{name: "no object", raw: "I cannot score this.", wantErr: true},
		{name: "prose after object", raw: `{"overallScore": 50} thanks`, wantErr: true},
		{name: "broken json", raw: `{"overallScore": 50,}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScore(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrParse) {
					t.Fatalf("ParseScore() error = %v, want ErrParse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScore(): %v", err)
			}
			if got.OverallScore != tt.want.OverallScore || got.SectionScores != tt.want.SectionScores {
				t.Errorf("scores = %+v %+v, want %+v %+v", got.OverallScore, got.SectionScores, tt.want.OverallScore, tt.want.SectionScores)
			}
			if got.Summary != tt.want.Summary {
				t.Errorf("Summary = %q, want %q", got.Summary, tt.want.Summary)
			}
			if strings.Join(got.Suggestions, "|") != strings.Join(tt.want.Suggestions, "|") || got.Suggestions == nil {
				t.Errorf("Suggestions = %#v, want %#v", got.Suggestions, tt.want.Suggestions)
			}
			if got.RubricVersion != tt.want.RubricVersion {
				t.Errorf("RubricVersion = %q, want %q", got.RubricVersion, tt.want.RubricVersion)
			}
		})
	}
}

func TestParseScoreAlwaysInRange(t *testing.T) {
	values := []string{`-1`, `101`, `1e308`, `-1e308`, `"NaN"`, `"Infinity"`, `null`, `true`, `[]`, `{}`, `"  42 "`, `99.5`}
	for _, v := range values {
		raw := `{"overallScore": ` + v + `, "sectionScores": {"overallImpression": ` + v + `, "clarityStructure": ` + v + `, "content": ` + v + `}}`
		got, err := ParseScore(raw)
		if err != nil {
			t.Errorf("ParseScore(%s): %v", v, err)
			continue
		}
		if !inRange(got) {
			t.Errorf("ParseScore(%s) = %+v, out of range", v, got)
		}
	}
}

func TestIsMeaningfulTranscript(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"Thank you.", false},
		{"Thank you for watching!", false},
		{"THANK YOU SO MUCH FOR WATCHING", false},
		{"I'm still here. I'm still here. I'm still here.", false},
		{"Shh. Thank you.", false},
		{"Like and subscribe, thank you", false},
		{"Thank you for the question. I chose dentistry after volunteering at a clinic.", true},
		{"I want to become a physical therapist.", true},
		{"42", true},
	}
	for _, tt := range tests {
		if got := IsMeaningfulTranscript(tt.text); got != tt.want {
			t.Errorf("IsMeaningfulTranscript(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	t.Run("scored", func(t *testing.T) {
		api := &fakeAPI{reply: `{"overallScore": 77, "sectionScores": {"overallImpression": 70, "clarityStructure": 80, "content": 81}, "summary": "Solid", "suggestions": ["x"]}`}
		c := newTestClient(t, api)

		got, err := c.Score(context.Background(), "Why dentistry?", "I enjoy working with my hands.", "Dental")
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if got.OverallScore != 77 || got.Placeholder {
			t.Errorf("Score() = %+v", got)
		}
		if api.lastReq.Temperature != scoreTemperature {
			t.Errorf("temperature = %v, want %v", api.lastReq.Temperature, scoreTemperature)
		}
		if api.lastReq.ResponseFormat == nil || api.lastReq.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
			t.Error("request should ask for a JSON object")
		}
		if !strings.Contains(api.lastReq.Messages[0].Content, "Dental school admissions") {
			t.Error("prompt should carry the profession")
		}
	})

	t.Run("filler transcript never calls the model", func(t *testing.T) {
		api := &fakeAPI{reply: `{}`}
		c := newTestClient(t, api)

		for _, tr := range []string{"", "Thank you.", "subscribe"} {
			got, err := c.Score(context.Background(), "Q", tr, "Dental")
			if err != nil {
				t.Fatalf("Score(%q): %v", tr, err)
			}
			if got.Summary != noResponseText || !got.Placeholder {
				t.Errorf("Score(%q) = %+v, want no-response placeholder", tr, got)
			}
		}
		if api.calls != 0 {
			t.Errorf("model called %d times, want 0", api.calls)
		}
	})

	t.Run("unparsable response falls back", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{reply: "Sorry, I can't do that."})

		got, err := c.Score(context.Background(), "Q", "A real answer", "Medical")
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		want := FallbackResult()
		if got.OverallScore != 70 || got.SectionScores != want.SectionScores || !got.Placeholder {
			t.Errorf("Score() = %+v, want fallback", got)
		}
	})

	t.Run("transport error is returned", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{err: errors.New("boom")})

		if _, err := c.Score(context.Background(), "Q", "A real answer", "Medical"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestTranscribe(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	text, err := c.Transcribe(context.Background(), strings.NewReader("bytes"), "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "transcribed bytes" {
		t.Errorf("text = %q", text)
	}
	if api.audioReq.FilePath != "audio.webm" || api.audioReq.Model != openai.Whisper1 {
		t.Errorf("request = %+v", api.audioReq)
	}
}
