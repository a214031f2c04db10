// Package apiclient talks to a contestant's answer endpoint.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"quiz-leaderboard/internal/domain"
)

// DefaultTimeout bounds a single question round-trip.
const DefaultTimeout = 30 * time.Second

// Response is the decoded JSON body returned by the remote endpoint. Shape
// validation is a separate step from transport success; see Validate.
type Response map[string]any

// questionRequest is the wire format sent to the contestant endpoint.
type questionRequest struct {
	Question   string `json:"question"`
	QuestionID string `json:"question_id"`
	Difficulty string `json:"difficulty"`
}

// Client sends quiz questions to one submission's endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Ask posts the question and reports (body, elapsed, ok). ok is transport
// success only: a 2xx status, regardless of whether the body decodes. Timeouts,
// connection failures and non-2xx statuses yield ok=false with a nil response.
// Elapsed is wall-clock time from dispatch to resolution on every path.
func (c *Client) Ask(ctx context.Context, q domain.QuizQuestion) (Response, time.Duration, bool) {
	payload, err := json.Marshal(questionRequest{
		Question:   q.Prompt,
		QuestionID: strconv.Itoa(q.Index),
		Difficulty: q.Difficulty,
	})
	if err != nil {
		return nil, 0, false
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, time.Since(start), false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, time.Since(start), false
	}
	defer resp.Body.Close()

	var body Response
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, elapsed, false
	}
	if decodeErr != nil {
		// Transport succeeded; the malformed body is caught by Validate.
		return nil, elapsed, true
	}
	return body, elapsed, true
}

// Validate checks the response shape: an `answer` field holding a string.
func Validate(resp Response) bool {
	if resp == nil {
		return false
	}
	answer, ok := resp["answer"]
	if !ok {
		return false
	}
	_, isString := answer.(string)
	return isString
}

// Answer extracts the submitted answer, empty when the field is absent.
func Answer(resp Response) string {
	if resp == nil {
		return ""
	}
	if s, ok := resp["answer"].(string); ok {
		return s
	}
	return ""
}
