// Package extraction turns raw nutrition-label text into a nutrition.Record
// using a schema-constrained LLM call.
package extraction

import (
	"context"
	"errors"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/example/nutriscan/internal/llm"
	"github.com/example/nutriscan/internal/logging"
	"github.com/example/nutriscan/internal/nutrition"
)

// ErrMalformedResponse is returned when the model reply is not a JSON object.
var ErrMalformedResponse = errors.New("extraction: response is not a JSON object")

const systemPrompt = `You will receive raw nutrition-label text (e.g. "Total Sugars: 15.1 g; Saturated Fat: 0.0 g; Sodium: 3.3 mg; Fiber: —; Protein: 0.0 g; Energy: 60.8 kcal").

Extract these fields and reply with a single JSON object, no explanations:

- sugar    : grams of sugar
- sat_fat  : grams of saturated fat
- sodium   : milligrams of sodium
- fiber    : grams of dietary fiber (0 if missing or marked as —)
- protein  : grams of protein
- calories : energy in kcal

Use 0 for any value that is not on the label.`

var nutrientFields = []string{"sugar", "sat_fat", "sodium", "fiber", "protein", "calories"}

func nutritionSchema() *llm.Schema {
	properties := make(map[string]interface{}, len(nutrientFields))
	required := make([]interface{}, 0, len(nutrientFields))
	for _, f := range nutrientFields {
		properties[f] = map[string]interface{}{"type": "number"}
		required = append(required, f)
	}
	return &llm.Schema{
		Name: "nutrition_facts",
		Schema: map[string]interface{}{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		},
	}
}

// Extractor asks the model for the six nutrient fields.
type Extractor struct {
	llm    llm.Completer
	logger *zap.Logger
}

// NewExtractor constructs an extractor around a completion client.
func NewExtractor(completer llm.Completer, logger *zap.Logger) *Extractor {
	return &Extractor{llm: completer, logger: logger.Named("extractor")}
}

// Extract returns the record for text. Fields the model leaves out or
// fills with non-numbers become 0.
func (e *Extractor) Extract(ctx context.Context, text string) (nutrition.Record, error) {
	requestID := logging.RequestID(ctx)

	content, err := e.llm.Complete(ctx, llm.Request{
		System: systemPrompt,
		User:   text,
		Schema: nutritionSchema(),
	})
	if err != nil {
		return nutrition.Record{}, logging.NewOperationError("extraction.complete", requestID, err)
	}

	if !gjson.Valid(content) || !gjson.Parse(content).IsObject() {
		logging.WithOperation(e.logger, "extraction.parse", requestID).Warn("model reply rejected",
			zap.Int("content_length", len(content)),
		)
		return nutrition.Record{}, logging.NewOperationError("extraction.parse", requestID, ErrMalformedResponse)
	}

	return nutrition.ParseRecord([]byte(content)), nil
}
