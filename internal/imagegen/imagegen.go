// Package imagegen picks a picture for listings created without one.
package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"banksim/internal/bank"
)

type Kind string

const (
	KindProduct  Kind = "product"
	KindProperty Kind = "property"
)

type imageClient interface {
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
}

type Generator struct {
	client  imageClient
	model   string
	timeout time.Duration
	log     *slog.Logger
}

// New returns a generator that only serves placeholders when apiKey is empty.
func New(apiKey, model string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{model: model, timeout: 20 * time.Second, log: logger}
	if strings.TrimSpace(apiKey) != "" {
		g.client = openai.NewClient(apiKey)
	}
	if g.model == "" {
		g.model = openai.CreateImageModelDallE2
	}
	return g
}

func Placeholder(kind Kind) string {
	if kind == KindProperty {
		return bank.PlaceholderPropertyImage
	}
	return bank.PlaceholderProductImage
}

// ImageURL returns a generated image URL, or the placeholder for kind when
// generation is disabled or fails.
func (g *Generator) ImageURL(ctx context.Context, kind Kind, title, description string) string {
	if g == nil || g.client == nil {
		return Placeholder(kind)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt(kind, title, description),
		Model:          g.model,
		N:              1,
		Size:           openai.CreateImageSize512x512,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		g.log.Warn("image generation failed", "kind", kind, "err", err)
		return Placeholder(kind)
	}
	if len(resp.Data) == 0 || strings.TrimSpace(resp.Data[0].URL) == "" {
		g.log.Warn("image generation returned no url", "kind", kind)
		return Placeholder(kind)
	}
	return resp.Data[0].URL
}

func prompt(kind Kind, title, description string) string {
	subject := strings.TrimSpace(title)
	if d := strings.TrimSpace(description); d != "" {
		subject = subject + ", " + d
	}
	if kind == KindProperty {
		return fmt.Sprintf("Real estate listing photo of %s, bright daylight, wide angle", subject)
	}
	return fmt.Sprintf("Product photo of %s on a plain white background", subject)
}
