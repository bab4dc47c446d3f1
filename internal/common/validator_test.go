package common

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type sampleRequest struct {
	Image string `json:"image" validate:"required"`
	Angle int    `json:"angle" validate:"oneof=0 90 180 270"`
}

func TestGenericEchoValidator_Validate(t *testing.T) {
	tests := []struct {
		name      string
		request   sampleRequest
		wantErr   bool
		wantField string
	}{
		{name: "valid", request: sampleRequest{Image: "data:,x", Angle: 90}},
		{name: "zero angle", request: sampleRequest{Image: "data:,x", Angle: 0}},
		{name: "missing image", request: sampleRequest{Angle: 90}, wantErr: true, wantField: "Image failed required"},
		{name: "bad angle", request: sampleRequest{Image: "data:,x", Angle: 45}, wantErr: true, wantField: "Angle failed oneof (0 90 180 270)"},
	}

	validator := &GenericEchoValidator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.request)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var httpErr *echo.HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("expected *echo.HTTPError, got %T", err)
			}
			if httpErr.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", httpErr.Code)
			}
			if msg, _ := httpErr.Message.(string); !strings.Contains(msg, tt.wantField) {
				t.Errorf("expected message to contain %q, got %q", tt.wantField, msg)
			}
		})
	}
}
