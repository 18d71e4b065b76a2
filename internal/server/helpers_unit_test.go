package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestClaimHasAudience(t *testing.T) {
	cases := []struct {
		name     string
		value    any
		audience string
		want     bool
	}{
		{"string match", "scoopai", "scoopai", true},
		{"string mismatch", "other", "scoopai", false},
		{"any slice match", []any{"first", "scoopai"}, "scoopai", true},
		{"any slice mismatch", []any{"first", "second"}, "scoopai", false},
		{"string slice match", []string{"scoopai"}, "scoopai", true},
		{"non string entry", []any{42}, "scoopai", false},
		{"nil value", nil, "scoopai", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := claimHasAudience(tc.value, tc.audience); got != tc.want {
				t.Fatalf("claimHasAudience(%v, %q) = %v, want %v", tc.value, tc.audience, got, tc.want)
			}
		})
	}
}

func TestNumberFromMap(t *testing.T) {
	cases := []struct {
		name string
		data map[string]any
		keys []string
		want float64
	}{
		{"float64", map[string]any{"age": 27.0}, []string{"age"}, 27},
		{"int", map[string]any{"age": 27}, []string{"age"}, 27},
		{"json number", map[string]any{"age": json.Number("27.5")}, []string{"age"}, 27.5},
		{"numeric string", map[string]any{"weight": "82.5"}, []string{"weight"}, 82.5},
		{"first key wins", map[string]any{"weight": 80.0, "mass": 90.0}, []string{"weight", "mass"}, 80},
		{"fallback key", map[string]any{"mass": 90.0}, []string{"weight", "mass"}, 90},
		{"missing", map[string]any{}, []string{"age"}, 0},
		{"nil map", nil, []string{"age"}, 0},
		{"unparseable string", map[string]any{"age": "unknown"}, []string{"age"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := numberFromMap(tc.data, tc.keys...); got != tc.want {
				t.Fatalf("numberFromMap(%v, %v) = %v, want %v", tc.data, tc.keys, got, tc.want)
			}
		})
	}
}

func TestStringFromMap(t *testing.T) {
	data := map[string]any{
		"occupation_category": "  office ",
		"age":                 27,
	}
	if got := stringFromMap(data, "occupation_category"); got != "office" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	if got := stringFromMap(data, "age"); got != "" {
		t.Fatalf("expected empty for non-string, got %q", got)
	}
	if got := stringFromMap(data, "missing"); got != "" {
		t.Fatalf("expected empty for missing key, got %q", got)
	}
	if got := stringFromMap(nil, "any"); got != "" {
		t.Fatalf("expected empty for nil map, got %q", got)
	}
}

func TestMustMarshalFrame(t *testing.T) {
	got := mustMarshalFrame(sseError{Type: "error", Detail: "boom"})
	if got != `{"type":"error","detail":"boom"}` {
		t.Fatalf("unexpected frame: %s", got)
	}

	// Unmarshalable values fall back to a generic error frame.
	if got := mustMarshalFrame(make(chan int)); !strings.Contains(got, "encoding failed") {
		t.Fatalf("expected fallback frame, got %s", got)
	}
}

func TestUserIDFromContext(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := userIDFromContext(c); ok {
		t.Fatalf("expected missing user id")
	}

	c.Set("userID", "user_123")
	userID, ok := userIDFromContext(c)
	if !ok || userID != "user_123" {
		t.Fatalf("expected user_123, got %q ok=%v", userID, ok)
	}

	c.Set("userID", "")
	if _, ok := userIDFromContext(c); ok {
		t.Fatalf("expected blank user id rejected")
	}
}

func TestWriteChatErrorClassification(t *testing.T) {
	app := &App{log: zap.NewNop()}
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{
			"missing key",
			errors.New("GEMINI_API_KEY is not configured"),
			http.StatusServiceUnavailable,
			"AI provider is not configured: set GEMINI_API_KEY",
		},
		{
			"timeout",
			errors.New("generate answer: context deadline exceeded"),
			http.StatusBadGateway,
			"AI provider request timed out",
		},
		{
			"provider error",
			errors.New("generate answer: gemini error (status 500): upstream exploded"),
			http.StatusBadGateway,
			"AI provider request failed",
		},
		{
			"unclassified",
			errors.New("something else broke"),
			http.StatusInternalServerError,
			"Failed to execute chat",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			app.writeChatError(c, tc.err)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if body["detail"] != tc.wantDetail {
				t.Fatalf("expected %q, got %v", tc.wantDetail, body["detail"])
			}
		})
	}
}
