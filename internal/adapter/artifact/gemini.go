package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"credit-mint-engine/config"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/pkg/apperror"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiGenerator implements ports.ArtifactGenerator on the Gemini API.
type GeminiGenerator struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewGeminiGenerator creates a generator. Timeouts come from the caller's context.
func NewGeminiGenerator(cfg config.GeneratorConfig, httpClient *http.Client, log zerolog.Logger) *GeminiGenerator {
	return &GeminiGenerator{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      cfg.Model,
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		httpClient: httpClient,
		log:        log,
	}
}

func (g *GeminiGenerator) client(ctx context.Context) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:     g.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	return genai.NewClient(ctx, cc)
}

// Generate renders the prompt and returns the first inline image.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt ports.ArtifactPrompt) (*ports.Artifact, error) {
	if g.apiKey == "" {
		return nil, apperror.ErrConfigMissing("generator.api_key")
	}

	client, err := g.client(ctx)
	if err != nil {
		return nil, apperror.ErrGenerationFailed(fmt.Errorf("generator client: %w", err))
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(prompt)), &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	})
	if err != nil {
		g.log.Warn().Err(err).Str("model", g.model).Msg("generator call failed")
		return nil, apperror.ErrGenerationFailed(fmt.Errorf("generate content: %w", err))
	}

	return firstImage(resp)
}

func firstImage(resp *genai.GenerateContentResponse) (*ports.Artifact, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, apperror.ErrGenerationFailed(errors.New("generator returned no candidates"))
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return nil, apperror.ErrGenerationFailed(errors.New("generator returned empty content"))
	}

	for _, p := range cand.Content.Parts {
		if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
			continue
		}
		contentType := p.InlineData.MIMEType
		if contentType == "" {
			contentType = "image/png"
		}
		return &ports.Artifact{Data: p.InlineData.Data, ContentType: contentType}, nil
	}
	return nil, apperror.ErrGenerationFailed(errors.New("generator returned no image data"))
}

// BuildPrompt renders the image prompt for a description and its hints.
func BuildPrompt(p ports.ArtifactPrompt) string {
	style := strings.TrimSpace(p.StyleHint)
	if style == "" {
		style = "artifact"
	}
	category := strings.TrimSpace(p.CategoryHint)
	if category == "" {
		category = "general"
	}
	return fmt.Sprintf(
		"A collectible digital artifact. Concept: %s. Visual theme: %s. Category: %s. Cinematic lighting, detailed surfaces, 1:1",
		strings.TrimSpace(p.Description), style, category,
	)
}
