package scoring

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const judgeSystemPrompt = `You are a strict but fair quiz grader. You will be shown a quiz question, the expected answer, and a contestant's submitted answer.

Decide whether the submitted answer is correct:
- Ignore differences in phrasing, capitalization, punctuation, and whitespace.
- Extra information in the submitted answer is fine as long as it does not contradict the expected answer.
- The submitted answer must convey the same fact as the expected answer to count as correct.

Reply with a verdict containing exactly one of the words CORRECT or INCORRECT, followed by a one-sentence justification.`

const judgeUserTemplate = `Question: %s

Expected answer: %s

Submitted answer: %s`

// OpenAIJudge grades answers with a chat-completion call. Oracle failures are
// absorbed: they score 0.0 with the error text as rationale and never abort a
// run.
type OpenAIJudge struct {
	client *openai.Client
	model  string
}

// NewOpenAIJudge builds a judge against the given API key and model. An empty
// baseURL uses the default OpenAI endpoint.
func NewOpenAIJudge(apiKey, model, baseURL string) *OpenAIJudge {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIJudge{client: openai.NewClientWithConfig(cfg), model: model}
}

// Score returns 1.0 or 0.0 plus the judge's rationale text.
func (j *OpenAIJudge) Score(ctx context.Context, submitted, expected, question string) (float64, string) {
	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: j.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(judgeUserTemplate, question, expected, submitted)},
		},
	})
	if err != nil {
		return 0.0, fmt.Sprintf("judge call failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return 0.0, "judge returned no choices"
	}
	verdict := resp.Choices[0].Message.Content
	return parseVerdict(verdict), verdict
}

// parseVerdict maps the judge's text to a binary score. INCORRECT is checked
// first because it contains CORRECT as a substring.
func parseVerdict(text string) float64 {
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "INCORRECT") {
		return 0.0
	}
	if strings.Contains(upper, "CORRECT") {
		return 1.0
	}
	return 0.0
}
