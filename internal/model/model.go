package model

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// Mode selects which media an interview captures.
type Mode string

const (
	// ModeVideo records camera and microphone.
	ModeVideo Mode = "video"
	// ModeAudio records the microphone only.
	ModeAudio Mode = "audio"
)

// Subtag is the behavioural category of a question.
type Subtag string

const (
	SubtagEthical       Subtag = "Ethical"
	SubtagBehavioral    Subtag = "Behavioral"
	SubtagTeamwork      Subtag = "Teamwork"
	SubtagLeadership    Subtag = "Leadership"
	SubtagCommunication Subtag = "Communication"
)

// Subtags lists every valid subtag in display order.
var Subtags = []Subtag{SubtagEthical, SubtagBehavioral, SubtagTeamwork, SubtagLeadership, SubtagCommunication}

// Professions offered on the setup screen. Questions may carry other tags.
var Professions = []string{"Dental", "Medical", "Physical Therapy"}

// DefaultProfession is used when a session or record carries none.
const DefaultProfession = "General"

// RubricVersion is stamped on every ScoreResult the scorer produces.
const RubricVersion = "v1"

// Question is an entry of the shared question bank.
type Question struct {
	ID        string   `json:"id" yaml:"id" bson:"_id"`
	Text      string   `json:"text" yaml:"text" bson:"text"`
	Tags      []string `json:"tags" yaml:"tags" bson:"tags"`
	Subtag    Subtag   `json:"subtag" yaml:"subtag" bson:"subtag"`
	Big3      bool     `json:"isBig3" yaml:"isBig3" bson:"isBig3"`
	Big3Order *int     `json:"big3Order" yaml:"big3Order" bson:"big3Order"`
	Tip       string   `json:"tip,omitempty" yaml:"tip" bson:"tip"`
}

// HasTag reports whether the question is labelled with the profession.
func (q Question) HasTag(tag string) bool {
	return slices.ContainsFunc(q.Tags, func(t string) bool {
		return strings.EqualFold(t, tag)
	})
}

// ErrInvalidQuestion is returned by Validate.
var ErrInvalidQuestion = errors.New("invalid question")

// Validate checks the fields an admin must fill in.
func (q Question) Validate() error {
	switch {
	case strings.TrimSpace(q.Text) == "":
		return errors.Join(ErrInvalidQuestion, errors.New("text is required"))
	case len(q.Tags) == 0:
		return errors.Join(ErrInvalidQuestion, errors.New("at least one tag is required"))
	case !slices.Contains(Subtags, q.Subtag):
		return errors.Join(ErrInvalidQuestion, errors.New("unknown subtag "+string(q.Subtag)))
	case q.Big3 && q.Big3Order == nil:
		return errors.Join(ErrInvalidQuestion, errors.New("big3 questions need an order"))
	}
	return nil
}

// InterviewConfig is produced by the setup screen and fixed for the session.
type InterviewConfig struct {
	Profession    string     `json:"profession"`
	Mode          Mode       `json:"mode"`
	Big3          bool       `json:"big3"`
	QuestionCount int        `json:"questionCount"`
	Questions     []Question `json:"questions,omitempty"`
}

// DefaultInterviewConfig mirrors the setup screen's initial selection.
func DefaultInterviewConfig() InterviewConfig {
	return InterviewConfig{
		Profession:    "Dental",
		Mode:          ModeVideo,
		Big3:          true,
		QuestionCount: 5,
	}
}

// Clone returns a copy that shares no slices with c.
func (c InterviewConfig) Clone() InterviewConfig {
	c.Questions = slices.Clone(c.Questions)
	return c
}

// SectionScores are the three rubric sub-scores.
type SectionScores struct {
	OverallImpression int `json:"overallImpression" bson:"overallImpression"`
	ClarityStructure  int `json:"clarityStructure" bson:"clarityStructure"`
	Content           int `json:"content" bson:"content"`
}

// ScoreResult is the rubric assessment of one answer.
type ScoreResult struct {
	OverallScore  int           `json:"overallScore" bson:"overallScore"`
	SectionScores SectionScores `json:"sectionScores" bson:"sectionScores"`
	Summary       string        `json:"summary" bson:"summary"`
	Suggestions   []string      `json:"suggestions" bson:"suggestions"`
	RubricVersion string        `json:"rubricVersion" bson:"rubricVersion"`
	// Placeholder marks substituted results that must not be averaged.
	Placeholder bool `json:"placeholder,omitempty" bson:"placeholder,omitempty"`
}

// Outcome records what happened to an answer during processing.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeScored     Outcome = "scored"
	OutcomeNoResponse Outcome = "no_response"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"
)

// Blob is a captured media artifact.
type Blob struct {
	MIMEType string
	Data     []byte
}

// MediaBlobs holds the artifacts of one recording. Video is nil in audio mode.
type MediaBlobs struct {
	Video *Blob
	Audio *Blob
}

// Answer is the per-question result of a session.
type Answer struct {
	Question   Question
	Skipped    bool
	Media      *MediaBlobs
	Transcript *string
	Feedback   *ScoreResult
	Outcome    Outcome
}

// Finalized reports whether the answer was recorded or skipped.
func (a Answer) Finalized() bool {
	return a.Skipped || a.Media != nil
}

// Scored reports whether the answer counts towards the session average.
func (a Answer) Scored() bool {
	return !a.Skipped && a.Feedback != nil && !a.Feedback.Placeholder
}

// Counts summarises how many questions were answered or skipped.
type Counts struct {
	TotalQuestions int `json:"totalQuestions" bson:"totalQuestions"`
	Answered       int `json:"answered" bson:"answered"`
	Skipped        int `json:"skipped" bson:"skipped"`
}

// SessionItem is the persisted form of an Answer. Media is never stored.
type SessionItem struct {
	Question   string       `json:"question" bson:"question"`
	Tip        string       `json:"tip" bson:"tip"`
	Skipped    bool         `json:"skipped" bson:"skipped"`
	Transcript *string      `json:"transcript" bson:"transcript"`
	Feedback   *ScoreResult `json:"feedback" bson:"feedback"`
}

// SessionRecord is a saved session summary owned by a user.
type SessionRecord struct {
	ID               string        `json:"id" bson:"_id"`
	UID              string        `json:"-" bson:"uid"`
	Title            string        `json:"title" bson:"title"`
	Profession       string        `json:"profession" bson:"profession"`
	CreatedAt        time.Time     `json:"createdAt" bson:"createdAt"`
	OverallAvg       *int          `json:"overallAvg" bson:"overallAvg"`
	TotalSessionTime int           `json:"totalSessionTime" bson:"totalSessionTime"`
	Counts           Counts        `json:"counts" bson:"counts"`
	Items            []SessionItem `json:"items" bson:"items"`
}

// UserAccount carries entitlement and rollup fields for one user.
type UserAccount struct {
	UID                 string     `json:"uid" bson:"_id"`
	Email               string     `json:"email" bson:"email"`
	EmailVerified       bool       `json:"emailVerified" bson:"emailVerified"`
	TrialExpiresAt      *time.Time `json:"trialExpiresAt" bson:"trialExpiresAt"`
	HasPaid             bool       `json:"hasPaid" bson:"hasPaid"`
	PaidAt              *time.Time `json:"paidAt" bson:"paidAt"`
	SubscriptionEndsAt  *time.Time `json:"subscriptionEndsAt" bson:"subscriptionEndsAt"`
	UsageCount          int        `json:"usageCount" bson:"usageCount"`
	SessionsCompleted   int        `json:"sessionsCompleted" bson:"sessionsCompleted"`
	RollingAverageScore *float64   `json:"rollingAverageScore" bson:"rollingAverageScore"`
	LastAverageScore    *float64   `json:"lastAverageScore" bson:"lastAverageScore"`
	ProcessedSessionIDs []string   `json:"processedSessionIds" bson:"processedSessionIds"`
	CreatedAt           time.Time  `json:"createdAt" bson:"createdAt"`
}

// Rollup is the outcome of folding one session into a user's averages.
type Rollup struct {
	Applied             bool     `json:"applied"`
	SessionsCompleted   int      `json:"sessionsCompleted"`
	RollingAverageScore *float64 `json:"rollingAverageScore"`
	// Improvement is this session's average minus the previous session's.
	Improvement *float64 `json:"improvement"`
}

// Identity is the verified caller of an API request.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Admin         bool
}

type identityCtxKey struct{}

// ContextWithIdentity stores the verified caller in the request context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the verified caller from context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}

type professionCtxKey struct{}

// ContextWithProfession scopes a profession to a request or session.
func ContextWithProfession(ctx context.Context, profession string) context.Context {
	return context.WithValue(ctx, professionCtxKey{}, profession)
}

// ProfessionFromContext returns the scoped profession or DefaultProfession.
func ProfessionFromContext(ctx context.Context) string {
	if p, _ := ctx.Value(professionCtxKey{}).(string); p != "" {
		return p
	}
	return DefaultProfession
}

// QuestionImport is one entry of a question seed file (JSON or YAML).
type QuestionImport struct {
	Text      string   `json:"text" yaml:"text"`
	Tags      []string `json:"tags" yaml:"tags"`
	Subtag    Subtag   `json:"subtag" yaml:"subtag"`
	Big3      bool     `json:"isBig3" yaml:"isBig3"`
	Big3Order *int     `json:"big3Order" yaml:"big3Order"`
	Tip       string   `json:"tip" yaml:"tip"`
}
