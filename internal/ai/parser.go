// Package ai turns voucher photos into structured candidate fields using the
// Gemini API. Model output is treated as untrusted raw input; the pipeline
// validates it like any other channel.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/mkitdev/mkit-input-voucher/internal/config"
)

// ParsedVoucher is the structured candidate a photo parse produces
type ParsedVoucher struct {
	SerialNumber  string  `json:"serial_number"`
	VoucherNumber string  `json:"voucher_number"`
	ProductCode   string  `json:"product_code"`
	Denomination  string  `json:"denomination"`
	ExpiryDate    string  `json:"expiry_date"`
	Confidence    float64 `json:"confidence"`
}

// Fields flattens the candidate into the normalizer's field map
func (p ParsedVoucher) Fields() map[string]string {
	return map[string]string{
		"serial_number":  p.SerialNumber,
		"voucher_number": p.VoucherNumber,
		"product_code":   p.ProductCode,
		"denomination":   p.Denomination,
		"expiry_date":    p.ExpiryDate,
	}
}

// PhotoParser extracts voucher fields from an image. Implemented by the
// Gemini client; faked in tests.
type PhotoParser interface {
	ParseVoucherPhoto(ctx context.Context, image []byte, mimeType string) (ParsedVoucher, error)
}

// GeminiParser interacts with the Gemini API using the official SDK
type GeminiParser struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiParser creates a Gemini-backed photo parser
func NewGeminiParser(ctx context.Context, cfg config.GeminiConfig) (*GeminiParser, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.ResponseMIMEType = "application/json"

	return &GeminiParser{client: client, model: model}, nil
}

// Close closes the client connection
func (p *GeminiParser) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

// ParseVoucherPhoto sends the image and extraction prompt to Gemini and
// decodes the structured candidate fields
func (p *GeminiParser) ParseVoucherPhoto(ctx context.Context, image []byte, mimeType string) (ParsedVoucher, error) {
	format := strings.TrimPrefix(mimeType, "image/")
	resp, err := p.model.GenerateContent(ctx,
		genai.ImageData(format, image),
		genai.Text(VoucherExtractionPrompt),
	)
	if err != nil {
		return ParsedVoucher{}, fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return ParsedVoucher{}, fmt.Errorf("empty response from gemini")
	}

	var fullText string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			fullText += string(txt)
		}
	}

	return DecodeCandidate(fullText)
}

// DecodeCandidate parses the model's JSON reply, tolerating markdown fences
// some models still emit despite instructions
func DecodeCandidate(reply string) (ParsedVoucher, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed ParsedVoucher
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return ParsedVoucher{}, fmt.Errorf("model reply is not valid JSON: %w", err)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return ParsedVoucher{}, fmt.Errorf("model confidence %v outside [0,1]", parsed.Confidence)
	}
	return parsed, nil
}
