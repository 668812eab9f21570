package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/nutriscan/internal/advice"
	"github.com/example/nutriscan/internal/logging"
	"github.com/example/nutriscan/internal/nutrition"
	"github.com/example/nutriscan/internal/ocr"
	"github.com/example/nutriscan/internal/retry"
)

var (
	// ErrEmptyInput is returned when there is no label text to analyze.
	ErrEmptyInput = errors.New("no nutrition label text to analyze")
	// ErrExtraction wraps OCR and field-extraction failures.
	ErrExtraction = errors.New("nutrition facts extraction failed")
	// ErrOCRUnavailable is returned for images when no OCR reader is configured.
	ErrOCRUnavailable = errors.New("image analysis is not configured")
)

// TextExtractor turns label text into nutrient values.
type TextExtractor interface {
	Extract(ctx context.Context, text string) (nutrition.Record, error)
}

// Adviser explains a classification.
type Adviser interface {
	Advise(ctx context.Context, record nutrition.Record, class nutrition.Classification) advice.Advice
}

// Report is the outcome of one analysis request.
type Report struct {
	RequestID      string                   `json:"request_id"`
	Text           string                   `json:"text,omitempty"`
	Nutrients      nutrition.Record         `json:"nutrients"`
	Score          float64                  `json:"score"`
	Classification nutrition.Classification `json:"classification"`
	Message        string                   `json:"message"`
	BetterProduct  string                   `json:"better_product"`
}

// AnalysisUseCase runs OCR, extraction, scoring and advice for one label.
type AnalysisUseCase struct {
	reader    ocr.Reader
	extractor TextExtractor
	adviser   Adviser
	cache     Cache
	cacheTTL  time.Duration
	logger    *zap.Logger
	retry     retry.Policy
}

// NewAnalysisUseCase constructs a new use case instance. reader and cache
// may be nil to disable image analysis and extraction caching.
func NewAnalysisUseCase(reader ocr.Reader, extractor TextExtractor, adviser Adviser, cache Cache, cacheTTL time.Duration, logger *zap.Logger) *AnalysisUseCase {
	return &AnalysisUseCase{
		reader:    reader,
		extractor: extractor,
		adviser:   adviser,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger.Named("analysis_usecase"),
		retry:     retry.DefaultPolicy(),
	}
}

// AnalyzeImage reads the label text from image and analyzes it.
func (uc *AnalysisUseCase) AnalyzeImage(ctx context.Context, image []byte) (*Report, error) {
	requestID := uuid.NewString()
	ctx = logging.ContextWithRequestID(ctx, requestID)
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze_image", requestID)

	if uc.reader == nil {
		return nil, ErrOCRUnavailable
	}

	text, err := uc.reader.ReadText(ctx, image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.read_text", requestID, fmt.Errorf("%w: %w", ErrExtraction, err))
		opLogger.Error("ocr failed", zap.Error(err))
		return nil, wrapped
	}
	opLogger.Info("label text recognized", zap.Int("image_bytes", len(image)), zap.Int("text_length", len(text)))

	report, err := uc.analyze(ctx, requestID, text)
	if err != nil {
		return nil, err
	}
	report.Text = text
	return report, nil
}

// AnalyzeText analyzes pasted label text.
func (uc *AnalysisUseCase) AnalyzeText(ctx context.Context, text string) (*Report, error) {
	requestID := uuid.NewString()
	ctx = logging.ContextWithRequestID(ctx, requestID)
	return uc.analyze(ctx, requestID, text)
}

func (uc *AnalysisUseCase) analyze(ctx context.Context, requestID, text string) (*Report, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, logging.NewOperationError("usecase.analyze", requestID, ErrEmptyInput)
	}

	record, err := uc.extract(ctx, requestID, text)
	if err != nil {
		return nil, err
	}

	result := nutrition.Evaluate(record)
	verdict := uc.adviser.Advise(ctx, record, result.Classification)

	logging.WithOperation(uc.logger, "usecase.analyze", requestID).Info("label scored",
		zap.Float64("score", result.Score),
		zap.String("classification", string(result.Classification)),
	)

	return &Report{
		RequestID:      requestID,
		Nutrients:      record,
		Score:          result.Score,
		Classification: result.Classification,
		Message:        verdict.Message,
		BetterProduct:  verdict.BetterProduct,
	}, nil
}

func (uc *AnalysisUseCase) extract(ctx context.Context, requestID, text string) (nutrition.Record, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.extract", requestID)
	key := cacheKey(text)

	if record, ok := uc.cachedRecord(ctx, requestID, key); ok {
		opLogger.Debug("extraction cache hit")
		return record, nil
	}

	record, err := uc.extractor.Extract(ctx, text)
	if err != nil {
		opLogger.Error("field extraction failed", zap.Error(err))
		return nutrition.Record{}, logging.NewOperationError("usecase.extract", requestID, fmt.Errorf("%w: %w", ErrExtraction, err))
	}

	uc.storeRecord(ctx, requestID, key, record)
	return record, nil
}

func (uc *AnalysisUseCase) cachedRecord(ctx context.Context, requestID, key string) (nutrition.Record, bool) {
	if uc.cache == nil {
		return nutrition.Record{}, false
	}

	var (
		cached string
		found  bool
	)
	err := retry.Do(ctx, uc.retry, uc.logger, "cache.get.extraction", requestID, func() error {
		value, err := uc.cache.Get(ctx, key)
		if isCacheMiss(err) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		cached, found = value, true
		return nil
	})
	if err != nil {
		logging.WithOperation(uc.logger, "cache.get.extraction", requestID).Warn("failed to read cache", zap.Error(err))
		return nutrition.Record{}, false
	}
	if !found {
		return nutrition.Record{}, false
	}

	var record nutrition.Record
	if err := json.Unmarshal([]byte(cached), &record); err != nil {
		logging.WithOperation(uc.logger, "cache.get.extraction", requestID).Warn("failed to decode cached extraction", zap.Error(err))
		return nutrition.Record{}, false
	}
	return record, true
}

func (uc *AnalysisUseCase) storeRecord(ctx context.Context, requestID, key string, record nutrition.Record) {
	if uc.cache == nil {
		return
	}

	serialized, err := json.Marshal(record)
	if err != nil {
		logging.WithOperation(uc.logger, "cache.set.extraction", requestID).Warn("failed to serialize extraction", zap.Error(err))
		return
	}
	if err := retry.Do(ctx, uc.retry, uc.logger, "cache.set.extraction", requestID, func() error {
		return uc.cache.Set(ctx, key, string(serialized), uc.cacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.set.extraction", requestID).Warn("failed to cache extraction", zap.Error(err))
	}
}

func cacheKey(text string) string {
	sum := sha1.Sum([]byte(text))
	return "extraction:" + hex.EncodeToString(sum[:])
}
