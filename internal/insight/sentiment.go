package insight

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

// Label is the sentiment class of one utterance.
type Label string

const (
	Positive Label = "POSITIVE"
	Negative Label = "NEGATIVE"
	Neutral  Label = "NEUTRAL"
)

const systemPrompt = `
You are SPOKY-SENTIMENT — a sentiment classifier for short voice
transcripts. Your ONLY job is to classify the user's utterance.

RULES:
1. Do NOT converse.
2. Do NOT answer the utterance.
3. Output ONLY JSON. No markdown.

OUTPUT FORMAT:
{"sentiment": "POSITIVE" | "NEGATIVE" | "NEUTRAL"}

If the sentiment is unclear or the text is purely factual, use "NEUTRAL".
`

// Classifier labels transcripts through the chat completions API.
type Classifier struct {
	client openai.Client
	model  string
}

func NewClassifier(client openai.Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

func (c *Classifier) Classify(ctx context.Context, text string) (Label, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
		Model: openai.ChatModel(c.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}

	log.Debug("Classified", "data", content)

	var out struct {
		Sentiment string `json:"sentiment"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return "", fmt.Errorf("unmarshal sentiment: %w (raw: %s)", err, content)
	}

	switch Label(strings.ToUpper(out.Sentiment)) {
	case Positive:
		return Positive, nil
	case Negative:
		return Negative, nil
	case Neutral:
		return Neutral, nil
	default:
		return "", fmt.Errorf("unknown sentiment label %q", out.Sentiment)
	}
}
