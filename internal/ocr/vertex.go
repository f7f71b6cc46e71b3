package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
)

// vertexOCRPrompt instructs the model to transcribe rather than summarize.
const vertexOCRPrompt = `Transcribe all readable text from the attached document exactly as it appears, in reading order. Preserve paragraph breaks. Do not summarize, translate, or add commentary. Output only the transcribed text.`

// VertexProvider performs OCR through a Vertex AI multimodal model.
type VertexProvider struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
	modelName  string
}

// NewVertexProvider builds a Vertex-backed provider.
func NewVertexProvider(ctx context.Context, projectID, region, modelName string) (*VertexProvider, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("ocr: vertex projectID and region are required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("ocr: vertex client: %w", err)
	}

	model := baseClient.GenerativeModel(modelName)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &VertexProvider{model: model, baseClient: baseClient, modelName: modelName}, nil
}

// Name identifies the provider.
func (p *VertexProvider) Name() string {
	return "vertex:" + p.modelName
}

// Extract sends the blob to the model and collects the transcription.
func (p *VertexProvider) Extract(ctx context.Context, raw []byte, mediaType string, pageCount int, opts Options) (*Result, error) {
	prompt := vertexOCRPrompt
	if opts.Language != "" {
		prompt += "\nThe document language is " + opts.Language + "."
	}

	started := time.Now()
	resp, errGenerate := p.model.GenerateContent(ctx,
		genai.Blob{MIMEType: mediaType, Data: raw},
		genai.Text(prompt),
	)
	if errGenerate != nil {
		return nil, fmt.Errorf("ocr: vertex generate: %w", errGenerate)
	}

	text := collectVertexText(resp)
	if text == "" {
		return nil, fmt.Errorf("ocr: vertex returned no text")
	}

	result := &Result{
		Text:             text,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		PagesProcessed:   pageCount,
	}
	if resp.UsageMetadata != nil {
		result.TokensUsed = int64(resp.UsageMetadata.TotalTokenCount)
	}
	return result, nil
}

// collectVertexText concatenates the text parts of the first candidate.
func collectVertexText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}

// Close releases the underlying client.
func (p *VertexProvider) Close() error {
	if p.baseClient != nil {
		return p.baseClient.Close()
	}
	return nil
}
