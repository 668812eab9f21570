// Package awsocr reads label text with AWS Rekognition DetectText.
package awsocr

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"github.com/example/nutriscan/internal/logging"
	"github.com/example/nutriscan/internal/ocr"
)

// TextDetector is the subset of the Rekognition client used here.
type TextDetector interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Reader implements ocr.Reader on top of Rekognition.
type Reader struct {
	detector      TextDetector
	minConfidence float64
	logger        *zap.Logger
}

// NewReader loads the default AWS credential chain for region.
func NewReader(ctx context.Context, region string, minConfidence float64, logger *zap.Logger) (*Reader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, logging.NewOperationError("awsocr.load_config", "", err)
	}
	return NewReaderWithDetector(rekognition.NewFromConfig(cfg), minConfidence, logger), nil
}

// NewReaderWithDetector builds a reader around an existing detector.
func NewReaderWithDetector(detector TextDetector, minConfidence float64, logger *zap.Logger) *Reader {
	return &Reader{detector: detector, minConfidence: minConfidence, logger: logger.Named("ocr_rekognition")}
}

// ReadText keeps LINE detections; Rekognition reports confidence as a
// percentage, which is scaled to [0, 1] before filtering.
func (r *Reader) ReadText(ctx context.Context, image []byte) (string, error) {
	requestID := logging.RequestID(ctx)

	out, err := r.detector.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: image},
	})
	if err != nil {
		wrapped := logging.NewOperationError("awsocr.detect_text", requestID, err)
		r.logger.Error("rekognition call failed", zap.Error(wrapped))
		return "", wrapped
	}
	if out == nil {
		return "", logging.NewOperationError("awsocr.detect_text", requestID, fmt.Errorf("empty response"))
	}

	segments := make([]ocr.Segment, 0, len(out.TextDetections))
	for _, d := range out.TextDetections {
		if d.Type != types.TextTypesLine {
			continue
		}
		segments = append(segments, ocr.Segment{
			Text:       aws.ToString(d.DetectedText),
			Confidence: float64(aws.ToFloat32(d.Confidence)) / 100,
		})
	}
	return ocr.JoinSegments(segments, r.minConfidence), nil
}
