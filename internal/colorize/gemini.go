package colorize

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

var harmCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

// GeminiModel calls a Gemini image model through the Gen AI SDK.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates the SDK client once; it is safe for concurrent use.
func NewGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiModel{client: client, model: model}, nil
}

// Generate implements Model.
func (m *GeminiModel) Generate(ctx context.Context, req *GenerateRequest) (*Response, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(req.Prompt),
			genai.NewPartFromBytes(req.Image, req.MIMEType),
		}, genai.RoleUser),
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, generateConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	return fromGenAI(resp), nil
}

func generateConfig(req *GenerateRequest) *genai.GenerateContentConfig {
	threshold := genai.HarmBlockThresholdBlockOnlyHigh
	if req.SafetyThreshold == SafetyBlockMediumAndAbove {
		threshold = genai.HarmBlockThresholdBlockMediumAndAbove
	}

	safety := make([]*genai.SafetySetting, 0, len(harmCategories))
	for _, category := range harmCategories {
		safety = append(safety, &genai.SafetySetting{
			Category:  category,
			Threshold: threshold,
		})
	}

	return &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(req.Temperature),
		CandidateCount:     req.CandidateCount,
		SafetySettings:     safety,
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
}

func fromGenAI(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}

	for _, cand := range resp.Candidates {
		var c Candidate
		if cand != nil && cand.Content != nil {
			for _, p := range cand.Content.Parts {
				if p == nil {
					continue
				}
				part := Part{}
				if p.InlineData != nil {
					part.MIMEType = p.InlineData.MIMEType
					part.Inline = BytesPayload(p.InlineData.Data)
				}
				c.Parts = append(c.Parts, part)
			}
		}
		out.Candidates = append(out.Candidates, c)
	}

	return out
}
