// Package apiclient talks to a running InterviewPrep API on behalf of a
// signed-in user.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/interviewprep/interviewprep/internal/model"
	"github.com/interviewprep/interviewprep/internal/summary"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status       int
	Message      string
	LimitReached bool
	Reason       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Unwrap exposes summary.ErrLimitReached for gate denials so a processing
// pass stops on them.
func (e *APIError) Unwrap() error {
	if e.LimitReached {
		return summary.ErrLimitReached
	}
	return nil
}

// Client is an authenticated API client. It satisfies summary.Transcriber
// and summary.Scorer.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var (
	_ summary.Transcriber = (*Client)(nil)
	_ summary.Scorer      = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the API at baseURL using a bearer ID token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Account is the caller's entitlement and progress.
type Account struct {
	UID                 string     `json:"uid"`
	Email               string     `json:"email"`
	Entitlement         string     `json:"entitlement"`
	Active              bool       `json:"active"`
	Message             string     `json:"message"`
	TrialExpiresAt      *time.Time `json:"trialExpiresAt"`
	PaidUntil           *time.Time `json:"paidUntil"`
	UsageCount          int        `json:"usageCount"`
	UsageCeiling        int        `json:"usageCeiling"`
	SessionsCompleted   int        `json:"sessionsCompleted"`
	RollingAverageScore *float64   `json:"rollingAverageScore"`
	LastAverageScore    *float64   `json:"lastAverageScore"`
}

// Account fetches the caller's account, creating it on first use.
func (c *Client) Account(ctx context.Context) (Account, error) {
	var a Account
	err := c.do(ctx, http.MethodGet, "/api/account", nil, "", &a)
	return a, err
}

// Questions selects count questions for profession.
func (c *Client) Questions(ctx context.Context, profession string, big3 bool, count int) ([]model.Question, error) {
	q := url.Values{}
	q.Set("profession", profession)
	q.Set("big3", strconv.FormatBool(big3))
	q.Set("count", strconv.Itoa(count))
	var resp struct {
		Questions []model.Question `json:"questions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/questions?"+q.Encode(), nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

// Transcribe uploads one audio artifact and returns its text.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/transcribe", &buf, mw.FormDataContentType(), &resp); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return resp.Text, nil
}

// Score requests rubric feedback for one transcript.
func (c *Client) Score(ctx context.Context, question, transcript, profession string) (model.ScoreResult, error) {
	body, err := json.Marshal(map[string]string{
		"question":   question,
		"transcript": transcript,
		"profession": profession,
	})
	if err != nil {
		return model.ScoreResult{}, err
	}
	var resp struct {
		Feedback model.ScoreResult `json:"feedback"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/feedback", bytes.NewReader(body), "application/json", &resp); err != nil {
		return model.ScoreResult{}, fmt.Errorf("score: %w", err)
	}
	return resp.Feedback, nil
}

// SaveSession stores rec and returns the record as the server saved it.
// A non-empty rec.ID becomes the stored ID, so retrying a save is safe.
func (c *Client) SaveSession(ctx context.Context, rec model.SessionRecord) (model.SessionRecord, error) {
	body, err := json.Marshal(struct {
		ID               string              `json:"id,omitempty"`
		Title            string              `json:"title"`
		Profession       string              `json:"profession"`
		TotalSessionTime int                 `json:"totalSessionTime"`
		Items            []model.SessionItem `json:"items"`
	}{rec.ID, rec.Title, rec.Profession, rec.TotalSessionTime, rec.Items})
	if err != nil {
		return model.SessionRecord{}, err
	}
	var saved model.SessionRecord
	if err := c.do(ctx, http.MethodPost, "/api/sessions", bytes.NewReader(body), "application/json", &saved); err != nil {
		return model.SessionRecord{}, fmt.Errorf("save session: %w", err)
	}
	return saved, nil
}

// Rollup folds a saved session into the caller's rolling average. A nil
// avg lets the server use the stored session average.
func (c *Client) Rollup(ctx context.Context, sessionID string, avg *int) (model.Rollup, error) {
	var body io.Reader
	contentType := ""
	if avg != nil {
		b, err := json.Marshal(map[string]int{"overallAvg": *avg})
		if err != nil {
			return model.Rollup{}, err
		}
		body, contentType = bytes.NewReader(b), "application/json"
	}
	var r model.Rollup
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/rollup", body, contentType, &r); err != nil {
		return model.Rollup{}, fmt.Errorf("rollup: %w", err)
	}
	return r, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Error        string `json:"error"`
			LimitReached bool   `json:"limitReached"`
			Reason       string `json:"reason"`
		}
		if json.Unmarshal(data, &e) == nil {
			apiErr.Message, apiErr.LimitReached, apiErr.Reason = e.Error, e.LimitReached, e.Reason
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
