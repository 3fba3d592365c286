package artifact

import (
	"context"
	"encoding/base64"

	"credit-mint-engine/internal/core/ports"
)

// placeholderPNG is a 1x1 transparent PNG.
const placeholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// StaticGenerator returns the same image for every prompt. Local development only.
type StaticGenerator struct {
	image []byte
}

func NewStaticGenerator() *StaticGenerator {
	img, _ := base64.StdEncoding.DecodeString(placeholderPNG)
	return &StaticGenerator{image: img}
}

func (s *StaticGenerator) Generate(ctx context.Context, _ ports.ArtifactPrompt) (*ports.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := make([]byte, len(s.image))
	copy(data, s.image)
	return &ports.Artifact{Data: data, ContentType: "image/png"}, nil
}
