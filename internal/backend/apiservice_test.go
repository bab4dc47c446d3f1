package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jo-hoe/gorotate/internal/common"
	"github.com/jo-hoe/gorotate/internal/core"
	"github.com/jo-hoe/gorotate/internal/rotation"
	"github.com/labstack/echo/v4"
)

func newTestEcho(t *testing.T, configure ...func(*core.ServiceConfig)) (*echo.Echo, *core.CoreService) {
	t.Helper()
	config := core.DefaultConfig()
	for _, fn := range configure {
		fn(config)
	}
	service, err := core.NewCoreService(context.Background(), config)
	if err != nil {
		t.Fatalf("NewCoreService error: %v", err)
	}
	t.Cleanup(func() { _ = service.Close() })

	e := echo.New()
	e.Validator = common.NewGenericEchoValidator()
	NewAPIService(config, service).SetRoutes(e)
	return e, service
}

func pngDataURL(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return rotation.EncodeDataURL(rotation.ImageBuffer{Data: buf.Bytes(), MediaType: rotation.MediaTypePNG})
}

func postRotate(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rotate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIService_Probe(t *testing.T) {
	e, _ := newTestEcho(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIService_ProbeDatabaseClosed(t *testing.T) {
	e, service := newTestEcho(t)
	if err := service.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAPIService_Metrics(t *testing.T) {
	e, _ := newTestEcho(t)
	postRotate(e, `{"image":"`+pngDataURL(t, 4, 2)+`"}`)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gorotate_rotations_total") {
		t.Errorf("expected rotation counter in metrics output")
	}
}

func TestAPIService_Rotate(t *testing.T) {
	tests := []struct {
		name       string
		angle      string
		wantWidth  int
		wantHeight int
	}{
		{name: "default angle", angle: "", wantWidth: 2, wantHeight: 6},
		{name: "half turn", angle: `,"angle":180`, wantWidth: 6, wantHeight: 2},
		{name: "three quarters", angle: `,"angle":270`, wantWidth: 2, wantHeight: 6},
		{name: "no turn", angle: `,"angle":0`, wantWidth: 6, wantHeight: 2},
	}

	e, _ := newTestEcho(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postRotate(e, `{"image":"`+pngDataURL(t, 6, 2)+`"`+tt.angle+`}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			var response RotateResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
				t.Fatalf("invalid response: %v", err)
			}
			if response.Width != tt.wantWidth || response.Height != tt.wantHeight {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantWidth, tt.wantHeight, response.Width, response.Height)
			}
			if response.MediaType != rotation.MediaTypePNG {
				t.Errorf("unexpected media type %q", response.MediaType)
			}

			buf, err := rotation.DecodeDataURL(response.Image)
			if err != nil {
				t.Fatalf("response image is not a data URL: %v", err)
			}
			decoded, err := png.Decode(bytes.NewReader(buf.Data))
			if err != nil {
				t.Fatalf("response image is not a png: %v", err)
			}
			if bounds := decoded.Bounds(); bounds.Dx() != tt.wantWidth || bounds.Dy() != tt.wantHeight {
				t.Errorf("decoded %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestAPIService_RotateErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "malformed json", body: `{"image":`, wantStatus: http.StatusBadRequest},
		{name: "missing image", body: `{"angle":90}`, wantStatus: http.StatusBadRequest},
		{name: "unsupported angle", body: `{"image":"data:image/png;base64,AA==","angle":45}`, wantStatus: http.StatusBadRequest},
		{name: "not a data url", body: `{"image":"https://example.com/a.png"}`, wantStatus: http.StatusBadRequest},
		{name: "broken base64", body: `{"image":"data:image/png;base64,***"}`, wantStatus: http.StatusBadRequest},
		{name: "undecodable png", body: `{"image":"data:image/png;base64,AAAA"}`, wantStatus: http.StatusBadRequest},
	}

	e, _ := newTestEcho(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postRotate(e, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAPIService_RotateBodyLimit(t *testing.T) {
	e, _ := newTestEcho(t, func(c *core.ServiceConfig) { c.Rotation.MaxUploadBytes = 1024 })
	payload := `{"image":"data:image/png;base64,` + strings.Repeat("A", 200<<10) + `"}`
	rec := postRotate(e, payload)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestAPIStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{rotation.ErrEncodeFailure, http.StatusUnprocessableEntity},
		{rotation.ErrDecodeFailure, http.StatusBadRequest},
		{rotation.ErrReadFailure, http.StatusBadRequest},
		{rotation.ErrUnsupportedAngle, http.StatusBadRequest},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := apiStatusForError(tt.err); got != tt.want {
			t.Errorf("apiStatusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
