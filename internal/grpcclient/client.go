package grpcclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/nutriscan/internal/logging"
	"github.com/example/nutriscan/internal/ocr"
)

// ReadTextMethod is the unary method exposed by the OCR sidecar. It takes
// the raw image as google.protobuf.BytesValue and answers with a
// google.protobuf.Struct of the form {segments: [{text, confidence}]}.
const ReadTextMethod = "/nutriscan.ocr.v1.TextReader/ReadText"

// DialTextReader returns a ready-to-use OCR reader backed by the sidecar.
func DialTextReader(ctx context.Context, addr string, minConfidence float64, logger *zap.Logger) (ocr.Reader, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_text_reader", "", err)
		logger.Error("failed to dial ocr service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewTextReader(conn, minConfidence, logger), conn, nil
}

// NewTextReader wraps an existing connection.
func NewTextReader(conn grpc.ClientConnInterface, minConfidence float64, logger *zap.Logger) ocr.Reader {
	return &grpcTextReader{conn: conn, minConfidence: minConfidence, logger: logger.Named("ocr_grpc")}
}

type grpcTextReader struct {
	conn          grpc.ClientConnInterface
	minConfidence float64
	logger        *zap.Logger
}

func (g *grpcTextReader) ReadText(ctx context.Context, image []byte) (string, error) {
	requestID := logging.RequestID(ctx)

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, ReadTextMethod, wrapperspb.Bytes(image), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.read_text", requestID, err)
		g.logger.Error("ocr call failed", zap.Error(wrapped))
		return "", wrapped
	}

	segments, err := decodeSegments(resp)
	if err != nil {
		return "", logging.NewOperationError("grpcclient.decode_segments", requestID, err)
	}

	text := ocr.JoinSegments(segments, g.minConfidence)
	logging.WithOperation(g.logger, "grpcclient.read_text", requestID).Debug("ocr completed",
		zap.Int("segments", len(segments)),
		zap.Int("text_length", len(text)),
	)
	return text, nil
}

func decodeSegments(resp *structpb.Struct) ([]ocr.Segment, error) {
	field, ok := resp.GetFields()["segments"]
	if !ok {
		return nil, nil
	}
	list := field.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("segments is not a list")
	}

	segments := make([]ocr.Segment, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		item := v.GetStructValue()
		if item == nil {
			return nil, fmt.Errorf("segment %d is not an object", i)
		}
		fields := item.GetFields()
		segments = append(segments, ocr.Segment{
			Text:       fields["text"].GetStringValue(),
			Confidence: fields["confidence"].GetNumberValue(),
		})
	}
	return segments, nil
}
