// Package gemini wraps the generative-ai client used for cluster summaries
// and for the text embeddings behind quality clustering and topic anchors.
package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"osmon/internal/metrics"
)

type Client struct {
	client       *genai.Client
	summaryModel string
	embedModel   string
}

// NewClient connects to the API. The caller owns Close.
func NewClient(ctx context.Context, apiKey, summaryModel, embedModel string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Client{
		client:       client,
		summaryModel: summaryModel,
		embedModel:   embedModel,
	}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// GenerateText sends one prompt and returns the first candidate's text.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.summaryModel)
	model.SetTemperature(0.2)

	metrics.Global.IncrementModelCalls()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from model")
	}

	return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.client.EmbeddingModel(c.embedModel)

	metrics.Global.IncrementModelCalls()
	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding from model")
	}

	return resp.Embedding.Values, nil
}
