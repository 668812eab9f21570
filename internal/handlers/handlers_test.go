package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/nutriscan/internal/auth"
	"github.com/example/nutriscan/internal/nutrition"
	"github.com/example/nutriscan/internal/usecase"
)

const testJWTSecret = "test-secret"

var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type stubAnalyzer struct {
	report *usecase.Report
	err    error
	images [][]byte
	texts  []string
}

func (s *stubAnalyzer) AnalyzeImage(ctx context.Context, image []byte) (*usecase.Report, error) {
	s.images = append(s.images, image)
	return s.report, s.err
}

func (s *stubAnalyzer) AnalyzeText(ctx context.Context, text string) (*usecase.Report, error) {
	s.texts = append(s.texts, text)
	return s.report, s.err
}

func newTestRouter(analyzer Analyzer) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, analyzer, auth.JWTMiddleware(testJWTSecret, ""), zap.NewNop())
	return router
}

func TestAnalyzeImageRejectsLargeUpload(t *testing.T) {
	router := newTestRouter(&usecase.AnalysisUseCase{})

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1))

	req := httptest.NewRequest(http.MethodPost, "/analyze/image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestAnalyzeImageRejectsUnsupportedContentType(t *testing.T) {
	router := newTestRouter(&usecase.AnalysisUseCase{})

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, "text/plain", []byte("hello"))

	req := httptest.NewRequest(http.MethodPost, "/analyze/image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestAnalyzeImageRejectsMismatchedContent(t *testing.T) {
	analyzer := &stubAnalyzer{}
	router := newTestRouter(analyzer)

	body, contentType := buildMultipartBody(t, "image/png", []byte("plain text pretending to be a png"))

	req := httptest.NewRequest(http.MethodPost, "/analyze/image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-123"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
	if len(analyzer.images) != 0 {
		t.Fatal("analyzer should not run for rejected uploads")
	}
}

func TestAnalyzeImageReturnsReport(t *testing.T) {
	analyzer := &stubAnalyzer{report: &usecase.Report{
		RequestID:      "req-1",
		Text:           "Sugar 15g",
		Nutrients:      nutrition.Record{Sugar: 15},
		Score:          43.75,
		Classification: nutrition.Safe,
		Message:        "fine",
		BetterProduct:  "water",
	}}
	router := newTestRouter(analyzer)

	body, contentType := buildMultipartBody(t, "image/png", pngMagic)
	req := httptest.NewRequest(http.MethodPost, "/analyze/image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-123"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	if len(analyzer.images) != 1 || !bytes.Equal(analyzer.images[0], pngMagic) {
		t.Fatal("expected uploaded bytes to reach the analyzer")
	}

	var got usecase.Report
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got != *analyzer.report {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestAnalyzeImageRequiresFile(t *testing.T) {
	router := newTestRouter(&stubAnalyzer{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("note", "no image"); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze/image", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-123"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestAnalyzeTextErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"empty input", fmt.Errorf("analyze: %w", usecase.ErrEmptyInput), http.StatusUnprocessableEntity},
		{"extraction", fmt.Errorf("%w: model offline", usecase.ErrExtraction), http.StatusBadGateway},
		{"ocr unavailable", usecase.ErrOCRUnavailable, http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubAnalyzer{err: tc.err})
			resp := postJSON(t, router, "/analyze/text", `{"text":"Sugar 3g"}`)

			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Fatalf("expected error body, got %s", resp.Body.String())
			}
		})
	}
}

func TestAnalyzeTextPassesText(t *testing.T) {
	analyzer := &stubAnalyzer{report: &usecase.Report{RequestID: "req-2", Classification: nutrition.Harmful}}
	router := newTestRouter(analyzer)

	resp := postJSON(t, router, "/analyze/text", `{"text":"Sodium 900mg"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if len(analyzer.texts) != 1 || analyzer.texts[0] != "Sodium 900mg" {
		t.Fatalf("unexpected texts: %v", analyzer.texts)
	}
}

func TestAnalyzeTextRejectsBadBody(t *testing.T) {
	for _, body := range []string{`{}`, `{"text": null}`, `not json`, `{"text": 3}`} {
		router := newTestRouter(&stubAnalyzer{})
		if resp := postJSON(t, router, "/analyze/text", body); resp.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d for %q, got %d", http.StatusBadRequest, body, resp.Code)
		}
	}
}

func TestAnalyzeTextBlankTextIsUnprocessable(t *testing.T) {
	uc := usecase.NewAnalysisUseCase(nil, nil, nil, nil, 0, zap.NewNop())
	router := newTestRouter(uc)

	for _, body := range []string{`{"text":""}`, `{"text":"  \n\t "}`} {
		resp := postJSON(t, router, "/analyze/text", body)
		if resp.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status %d for %s, got %d", http.StatusUnprocessableEntity, body, resp.Code)
		}
	}
}

func TestScoreEvaluatesRecord(t *testing.T) {
	router := newTestRouter(&stubAnalyzer{})

	resp := postJSON(t, router, "/score", `{"sugar": 15.1, "sodium": "3.3", "calories": 60.8, "fiber": null}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}

	var got scoreResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Score != 42.76 || got.Classification != nutrition.Safe {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.Nutrients != (nutrition.Record{Sugar: 15.1, Sodium: 3.3, Calories: 60.8}) {
		t.Fatalf("unexpected nutrients: %+v", got.Nutrients)
	}
}

func TestScoreRejectsNonObject(t *testing.T) {
	router := newTestRouter(&stubAnalyzer{})
	for _, body := range []string{`[1,2]`, `"sugar"`, `{"sugar": `} {
		if resp := postJSON(t, router, "/score", body); resp.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d for %q, got %d", http.StatusBadRequest, body, resp.Code)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(&stubAnalyzer{})

	req := httptest.NewRequest(http.MethodPost, "/score", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	router := newTestRouter(&stubAnalyzer{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
}

func postJSON(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-123"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
