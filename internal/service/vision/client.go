package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/snapcal/snapcal/internal/logger"
)

const (
	CodeRetryAfter = "retry-after"
	CodeBadReply   = "bad-reply"
	CodeUnknown    = "unknown"
)

// Prompt the model answers with a single json object
const instruction = `You are a nutritionist. Look at the meal photo and answer with a single JSON object,
no prose: {"dish_name": string, "calories": number, "proteins_g": number,
"fats_g": number, "carbs_g": number, "weight_g": number, "confidence": number between 0 and 1}.
Estimate for the whole portion shown on the photo.`

type VisionError struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *VisionError) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %d, error: %v", e.Code, e.RetryAfter, e.Err)
}

func (e *VisionError) Unwrap() error {
	return e.Err
}

func NewVisionError(code string, retryAfter int, err error) *VisionError {
	return &VisionError{
		Code:       code,
		RetryAfter: time.Duration(retryAfter) * time.Second,
		Err:        err,
	}
}

// Nutrition facts the model read from one meal photo
type Analysis struct {
	DishName   string          `json:"dish_name"`
	Calories   decimal.Decimal `json:"calories"`
	ProteinsG  decimal.Decimal `json:"proteins_g"`
	FatsG      decimal.Decimal `json:"fats_g"`
	CarbsG     decimal.Decimal `json:"carbs_g"`
	WeightG    decimal.Decimal `json:"weight_g"`
	Confidence decimal.Decimal `json:"confidence"`
}

type Config struct {
	// Base url of the generative api, e.g. https://generativelanguage.googleapis.com
	BaseURL string

	// Model to ask, e.g. gemini-2.0-flash
	Model string

	// Key sent in the x-goog-api-key header
	APIKey string
}

type Client struct {
	baseURL string
	model   string
	apiKey  string

	client *http.Client
	logger logger.Logger
}

func NewClient(cfg Config, l logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		client:  &http.Client{},
		logger:  l,
	}
}

// Request and response slices of the generateContent wire format
// Only the fields we read or write
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the photo to the model and returns the parsed nutrition facts
func (c *Client) Analyze(ctx context.Context, image []byte, mimeType string) (Analysis, error) {
	var analysis Analysis

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: instruction},
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
	})
	if err != nil {
		return analysis, NewVisionError(CodeUnknown, 0, fmt.Errorf("failed to marshal request: %w", err))
	}

	url := c.baseURL + "/v1beta/models/" + c.model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return analysis, NewVisionError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return analysis, NewVisionError(CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		return c.processSuccess(resp)
	case http.StatusTooManyRequests:
		return c.processTooManyRequests(resp)
	default:
		c.logger.Warn("Vision request failed", "status_code", resp.StatusCode, "model", c.model)
		return analysis, NewVisionError(CodeUnknown, 0, fmt.Errorf("unknown status code %d from vision api", resp.StatusCode))
	}
}

func (c *Client) processSuccess(resp *http.Response) (Analysis, error) {
	var reply generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		c.logger.Warn("Failed to decode response", "error", err)
		return Analysis{}, NewVisionError(CodeBadReply, 0, fmt.Errorf("failed to decode response: %w", err))
	}

	if len(reply.Candidates) == 0 || len(reply.Candidates[0].Content.Parts) == 0 {
		return Analysis{}, NewVisionError(CodeBadReply, 0, fmt.Errorf("response has no candidates"))
	}

	// The model often wraps json in a markdown fence, strip it first
	text := unfence(reply.Candidates[0].Content.Parts[0].Text)

	var analysis Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		c.logger.Warn("Model reply is not valid json", "error", err)
		return Analysis{}, NewVisionError(CodeBadReply, 0, fmt.Errorf("failed to parse model reply: %w", err))
	}

	c.logger.Debug("Vision response", "dish", analysis.DishName, "calories", analysis.Calories)
	return analysis, nil
}

func (c *Client) processTooManyRequests(resp *http.Response) (Analysis, error) {
	header := resp.Header.Get("Retry-After")
	retryAfter, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		retryAfter = 60 // default to 60 seconds if parsing fails
	}

	c.logger.Warn("Vision api throttled", "retry_after", retryAfter)
	return Analysis{}, NewVisionError(CodeRetryAfter, retryAfter, fmt.Errorf("retry after %d seconds", retryAfter))
}

// Strip the ```json fence the model tends to wrap replies in
func unfence(text string) string {
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	return strings.TrimSpace(text)
}
