package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/studyhub-platform/studyindexer/internal/config"
)

// Provider converts text into fixed-dimension float vectors. Batched calls
// exist purely for throughput and must produce the same vectors as
// per-item calls.
type Provider interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// BatchSize is the number of chunks embedded per upstream call.
const BatchSize = 32

type Service struct {
	client *openai.Client
	model  string
}

func NewService(cfg config.EmbeddingConfig) *Service {
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Service{
		client: openai.NewClient(cfg.OpenAIKey),
		model:  model,
	}
}

func (s *Service) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vecs[0], nil
}

func (s *Service) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for i := 0; i < len(texts); i += BatchSize {
		end := i + BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[i:end],
			Model: openai.EmbeddingModel(s.model),
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", i/BatchSize, err)
		}

		for _, d := range resp.Data {
			all = append(all, d.Embedding)
		}
	}

	if len(all) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(all), len(texts))
	}

	return all, nil
}
