// Package verification produces an advisory assessment of an uploaded
// supporting document by forwarding it to a multimodal AI gateway. The
// assessment annotates an application; it never decides one.
package verification

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"backend/internal/config"
	"backend/internal/model"
	"backend/pkg/apperror"
)

// Findings groups the free-text observations the assistant reports.
type Findings struct {
	Strengths          []string `json:"strengths"`
	Concerns           []string `json:"concerns"`
	MissingInformation []string `json:"missingInformation"`
}

// ExtractedData holds fields the assistant managed to read off the document.
type ExtractedData struct {
	Name     *string `json:"name"`
	IDNumber *string `json:"idNumber"`
	Date     *string `json:"date"`
	Amount   *string `json:"amount"`
}

// Result is the structured verdict parsed from the assistant's reply.
type Result struct {
	IsComplete     bool          `json:"isComplete"`
	IsValid        bool          `json:"isValid"`
	Confidence     float64       `json:"confidence"` // 0-100
	DocumentType   string        `json:"documentType"`
	Findings       Findings      `json:"findings"`
	ExtractedData  ExtractedData `json:"extractedData"`
	Recommendation string        `json:"recommendation"` // approve | review | reject
	Reason         string        `json:"reason"`
}

// Verification pairs the parsed result with the advisory status derived
// from it.
type Verification struct {
	Status string
	Result Result
}

// DocumentVerifier is the capability the workflow depends on; the real
// implementation talks to the AI gateway, tests use fakes.
type DocumentVerifier interface {
	Verify(ctx context.Context, documentURL string) (Verification, error)
}

const systemPrompt = `You are an AI document verification assistant for a loan application system. Analyze uploaded documents and provide a structured assessment.

Your response MUST be valid JSON with this exact structure:
{
  "isComplete": boolean,
  "isValid": boolean,
  "confidence": number (0-100),
  "documentType": string,
  "findings": {
    "strengths": [string],
    "concerns": [string],
    "missingInformation": [string]
  },
  "extractedData": {
    "name": string or null,
    "idNumber": string or null,
    "date": string or null,
    "amount": string or null
  },
  "recommendation": "approve" | "review" | "reject",
  "reason": string
}`

const userPrompt = `Please analyze this loan application supporting document. Check for: 1) Completeness - does it contain all necessary information? 2) Validity - does it appear legitimate? 3) Extract any relevant data (name, ID numbers, dates, amounts). Respond ONLY with the JSON structure specified.`

type gatewayVerifier struct {
	cfg    config.VerificationConfig
	client *http.Client
}

// NewGatewayVerifier returns a DocumentVerifier backed by an OpenAI-compatible
// chat completions endpoint.
func NewGatewayVerifier(cfg config.VerificationConfig) DocumentVerifier {
	return &gatewayVerifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// chat completions request/response wire shapes (only the fields used).
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (v *gatewayVerifier) Verify(ctx context.Context, documentURL string) (Verification, error) {
	document, mimeType, err := v.fetchDocument(ctx, documentURL)
	if err != nil {
		return Verification{}, err
	}

	content, err := v.complete(ctx, document, mimeType)
	if err != nil {
		return Verification{}, err
	}

	result := ParseResult(content)
	return Verification{Status: StatusFor(result), Result: result}, nil
}

func (v *gatewayVerifier) fetchDocument(ctx context.Context, documentURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return nil, "", apperror.Wrap(apperror.KindValidation, "invalid document URL", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, "", apperror.Wrap(apperror.KindUpstreamUnavailable, "failed to fetch document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", apperror.New(apperror.KindUpstreamUnavailable,
			fmt.Sprintf("failed to fetch document: status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperror.Wrap(apperror.KindUpstreamUnavailable, "failed to read document", err)
	}

	return body, MIMETypeFor(documentURL), nil
}

// MIMETypeFor infers the inline MIME type from the file extension. Anything
// unrecognized is treated as a PDF.
func MIMETypeFor(documentURL string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(documentURL), ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "application/pdf"
	}
}

func (v *gatewayVerifier) complete(ctx context.Context, document []byte, mimeType string) (string, error) {
	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(document))

	payload := chatRequest{
		Model: v.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: userPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			}},
		},
		Temperature: 0.3,
		MaxTokens:   1000,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", apperror.Wrap(apperror.KindUpstreamUnavailable, "AI verification service unavailable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return "", apperror.New(apperror.KindRateLimited, "AI gateway rate limit exceeded")
	case http.StatusPaymentRequired:
		return "", apperror.New(apperror.KindQuotaExceeded, "AI gateway credits depleted")
	default:
		return "", apperror.New(apperror.KindUpstreamUnavailable,
			fmt.Sprintf("AI verification service unavailable: status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperror.Wrap(apperror.KindParse, "malformed AI gateway response", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", apperror.New(apperror.KindUpstreamUnavailable, "no response from AI verification")
	}

	return parsed.Choices[0].Message.Content, nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseResult parses the assistant's reply, tolerating a fenced code block
// wrapper. A reply that cannot be parsed yields a conservative fallback that
// routes the document to manual review — it never raises.
func ParseResult(content string) Result {
	raw := content
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		raw = m[1]
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{
			IsComplete:   false,
			IsValid:      false,
			Confidence:   50,
			DocumentType: "unknown",
			Findings: Findings{
				Strengths:          []string{},
				Concerns:           []string{"Unable to fully analyze document"},
				MissingInformation: []string{},
			},
			Recommendation: "review",
			Reason:         "Document requires manual review due to analysis error",
		}
	}
	return result
}

// StatusFor maps the assistant's recommendation and confidence to the stored
// advisory status. Only a clear approval with high confidence verifies.
func StatusFor(result Result) string {
	switch {
	case result.Recommendation == "approve" && result.Confidence >= 80:
		return model.VerificationVerified
	case result.Recommendation == "reject":
		return model.VerificationRejected
	default:
		return model.VerificationPending
	}
}
