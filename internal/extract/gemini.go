package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"quickestimate/internal"
	"quickestimate/internal/config"
)

const sheetPrompt = `You are reading a photographed billing sheet.
The sheet has one printed row per size in feet (6, 6.5, 8, 10 and 12), each with its size in meters next to it.
For every printed size row read only the handwritten values:
- PCS: the piece count
- RATE: the rate per meter
Report the printed feet size as sizeFt.
If a row has no handwritten PCS or RATE, report 0 for that field.
Never guess a number that is not written on the sheet.`

// responseSchema constrains the model to {extractedRows: [{sizeFt, pcs, rate}]}.
var responseSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"extractedRows": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"sizeFt": map[string]any{"type": "NUMBER", "description": "Printed size in feet of the row (6, 6.5, 8, 10 or 12)"},
					"pcs":    map[string]any{"type": "NUMBER", "description": "Handwritten PCS count, 0 when blank"},
					"rate":   map[string]any{"type": "NUMBER", "description": "Handwritten rate, 0 when blank"},
				},
				"required": []string{"sizeFt", "pcs", "rate"},
			},
		},
	},
	"required": []string{"extractedRows"},
}

// GeminiExtractor sends a sheet photo to the Gemini generateContent API
// and returns the rows it read.
type GeminiExtractor struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

func NewGeminiExtractor(cfg config.Config) *GeminiExtractor {
	return &GeminiExtractor{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.ExtractTimeout()},
		limiter:    NewRateLimiter(cfg.ExtractRateLimitRPS),
	}
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content      `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *GeminiExtractor) Extract(ctx context.Context, image []byte) ([]internal.ExtractedPatch, error) {
	if strings.TrimSpace(g.cfg.GeminiAPIKey) == "" {
		return nil, newError(KindInput, "gemini", errors.New("missing GEMINI_API_KEY"))
	}
	img, err := encodeImage(image)
	if err != nil {
		return nil, newError(KindInput, "gemini", err)
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: sheetPrompt}, {InlineData: &img}},
		}},
		GenerationConfig: map[string]any{
			"temperature":      0,
			"responseMimeType": "application/json",
			"responseSchema":   responseSchema,
		},
	})
	if err != nil {
		return nil, newError(KindInput, "gemini", err)
	}

	raw, err := g.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, newError(KindDecode, "gemini", fmt.Errorf("response envelope: %w", err))
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, newError(KindStatus, "gemini", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return nil, newError(KindDecode, "gemini", errors.New("empty gemini response"))
	}
	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return DecodeRows([]byte(text.String()), internal.SourceImage)
}

func (g *GeminiExtractor) post(ctx context.Context, body []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(g.cfg.GeminiBaseURL, "/"), url.PathEscape(g.cfg.GeminiModel))

	if err := g.limiter.WaitTurn(ctx); err != nil {
		return nil, Wrap("gemini", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindInput, "gemini", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.GeminiAPIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, Wrap("gemini", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, Wrap("gemini", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newError(KindStatus, "gemini", fmt.Errorf("status=%d body=%s", resp.StatusCode, truncate(string(raw), 512)))
	}
	return raw, nil
}

// encodeImage prepares image bytes for an inline request part. A data URI
// ("data:image/png;base64,...") keeps its own MIME type and payload; raw
// bytes are base64 encoded and sent as JPEG unless they sniff as another
// image type.
func encodeImage(image []byte) (inlineData, error) {
	if len(bytes.TrimSpace(image)) == 0 {
		return inlineData{}, errors.New("empty image")
	}
	if bytes.HasPrefix(image, []byte("data:")) {
		header, payload, ok := strings.Cut(string(image), ",")
		if !ok || payload == "" {
			return inlineData{}, errors.New("malformed data URI")
		}
		mime := strings.TrimPrefix(header, "data:")
		mime, _, _ = strings.Cut(mime, ";")
		if mime == "" {
			mime = "image/jpeg"
		}
		return inlineData{MimeType: mime, Data: strings.TrimSpace(payload)}, nil
	}
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return inlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(image)}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
