package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DashScopeBaseURL is Alibaba Cloud's OpenAI compatible endpoint
	DashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	// DefaultVisionModel reads Chinese e-invoices well
	DefaultVisionModel = "qwen2.5-vl-72b-instruct"

	openAITimeout   = 120 * time.Second
	openAIMaxTokens = 1000
)

// OpenAI implements the Scanner interface against any OpenAI compatible chat
// completions endpoint with vision support: DashScope, OpenAI or a local
// Ollama at http://localhost:11434/v1.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a scanner. An empty baseURL means api.openai.com; an API
// key is only optional for a custom endpoint.
func NewOpenAI(apiKey, baseURL, modelName string) (*OpenAI, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if modelName == "" {
		modelName = DefaultVisionModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  modelName,
	}, nil
}

// Scan extracts the labelled fields of one invoice
func (o *OpenAI) Scan(ctx context.Context, data []byte, contentType, hint string) (*Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, openAITimeout)
	defer cancel()

	pngData, err := prepareImageData(data, contentType)
	if err != nil {
		return nil, err
	}
	imageURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		MaxTokens:   openAIMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: extractionPrompt(hint)},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL, Detail: openai.ImageURLDetailHigh},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("requesting chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response from %s", o.model)
	}

	fields, err := parseFields(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing invoice fields: %w", err)
	}
	slog.Debug("openai extraction", "model", o.model, "fields", len(fields), "hint", hint)

	return &Extraction{
		Fields:       fields,
		CategoryHint: hint,
		FileType:     FileType(contentType),
	}, nil
}

// Close is a no-op
func (o *OpenAI) Close() error {
	return nil
}
