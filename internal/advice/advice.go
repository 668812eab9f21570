// Package advice produces the human-readable verdict shown next to a score.
package advice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/example/nutriscan/internal/llm"
	"github.com/example/nutriscan/internal/logging"
	"github.com/example/nutriscan/internal/nutrition"
)

// Fixed texts for safe products and for when the model cannot help.
const (
	SafeMessage           = "This product appears to be safe."
	SafeBetterProduct     = "This is already a better product."
	FallbackMessage       = "This product may contain high sugar, fat or sodium."
	FallbackBetterProduct = "Consider lower-sugar alternatives."
)

// Advice explains a classification and suggests an alternative.
type Advice struct {
	Message       string `json:"message" validate:"required"`
	BetterProduct string `json:"better_product" validate:"required"`
}

var adviceSchema = &llm.Schema{
	Name: "nutrition_advice",
	Schema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message":        map[string]interface{}{"type": "string"},
			"better_product": map[string]interface{}{"type": "string"},
		},
		"required":             []interface{}{"message", "better_product"},
		"additionalProperties": false,
	},
}

// Adviser asks the model for advice on products that are not safe.
type Adviser struct {
	llm      llm.Completer
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAdviser constructs an adviser around a completion client.
func NewAdviser(completer llm.Completer, logger *zap.Logger) *Adviser {
	return &Adviser{
		llm:      completer,
		validate: validator.New(),
		logger:   logger.Named("adviser"),
	}
}

// Advise never fails: model errors fall back to fixed text.
func (a *Adviser) Advise(ctx context.Context, record nutrition.Record, class nutrition.Classification) Advice {
	if class == nutrition.Safe {
		return Advice{Message: SafeMessage, BetterProduct: SafeBetterProduct}
	}

	requestID := logging.RequestID(ctx)
	opLogger := logging.WithOperation(a.logger, "advice.advise", requestID)

	advice, err := a.ask(ctx, record, class)
	if err != nil {
		opLogger.Warn("falling back to default advice", zap.Error(err), zap.String("classification", string(class)))
		return Advice{Message: FallbackMessage, BetterProduct: FallbackBetterProduct}
	}
	return advice
}

func (a *Adviser) ask(ctx context.Context, record nutrition.Record, class nutrition.Classification) (Advice, error) {
	nutrients, err := json.Marshal(record)
	if err != nil {
		return Advice{}, err
	}

	content, err := a.llm.Complete(ctx, llm.Request{
		System: buildPrompt(nutrients, class),
		Schema: adviceSchema,
	})
	if err != nil {
		return Advice{}, err
	}

	var advice Advice
	if err := json.Unmarshal([]byte(content), &advice); err != nil {
		return Advice{}, fmt.Errorf("decode advice: %w", err)
	}
	advice.Message = strings.TrimSpace(advice.Message)
	advice.BetterProduct = strings.TrimSpace(advice.BetterProduct)
	if err := a.validate.Struct(advice); err != nil {
		return Advice{}, fmt.Errorf("validate advice: %w", err)
	}
	return advice, nil
}

func buildPrompt(nutrients []byte, class nutrition.Classification) string {
	return fmt.Sprintf(`You are a nutrition coach. Given this nutrition data: %s
and classification: %s

Respond with a JSON object containing:
- "message": a brief 1-2 sentence explanation of why this product is %s
- "better_product": the name of a specific healthier alternative product`,
		nutrients, class, strings.ToLower(string(class)))
}
