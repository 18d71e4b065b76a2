package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// scriptedClient returns a canned answer, optionally after a delay, so the
// verifier's timeout path can be exercised without a network.
type scriptedClient struct {
	answer string
	err    error
	delay  time.Duration
	gotReq Request
}

func (s *scriptedClient) Generate(ctx context.Context, req Request) (Response, error) {
	s.gotReq = req
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Response{}, s.err
	}
	return Response{Answer: s.answer}, nil
}

func TestVerifyNumericFieldConfirms(t *testing.T) {
	client := &scriptedClient{answer: "25"}
	verifier := NewVerifier(client, "gemini-2.0-flash", time.Second)

	got, ok := verifier.VerifyNumericField(context.Background(), "25 წლის ვარ", "age", 25, true)
	if !ok || got != 25 {
		t.Fatalf("expected confirmed 25, got %v ok=%v", got, ok)
	}
	if !strings.Contains(client.gotReq.UserPrompt, "25 წლის ვარ") {
		t.Fatalf("expected message text in prompt, got %q", client.gotReq.UserPrompt)
	}
	if !strings.Contains(client.gotReq.UserPrompt, "RegEx-მა ამოიღო: 25") {
		t.Fatalf("expected extracted value in prompt, got %q", client.gotReq.UserPrompt)
	}
}

func TestVerifyNumericFieldCorrects(t *testing.T) {
	client := &scriptedClient{answer: "85"}
	verifier := NewVerifier(client, "gemini-2.0-flash", time.Second)

	got, ok := verifier.VerifyNumericField(context.Background(), "100 კგ კი არა, 85 კგ ვარ", "weight", 100, false)
	if !ok || got != 85 {
		t.Fatalf("expected corrected 85, got %v ok=%v", got, ok)
	}
}

func TestVerifyNumericFieldRejects(t *testing.T) {
	cases := []string{"null", "NULL", "none"}
	for _, answer := range cases {
		client := &scriptedClient{answer: answer}
		verifier := NewVerifier(client, "gemini-2.0-flash", time.Second)
		if _, ok := verifier.VerifyNumericField(context.Background(), "ძმა 30 წლისაა", "age", 30, true); ok {
			t.Fatalf("expected %q to reject the extraction", answer)
		}
	}
}

func TestVerifyNumericFieldKeepsValueOnTimeout(t *testing.T) {
	client := &scriptedClient{answer: "90", delay: 200 * time.Millisecond}
	verifier := NewVerifier(client, "gemini-2.0-flash", 20*time.Millisecond)

	got, ok := verifier.VerifyNumericField(context.Background(), "85 კგ ვარ", "weight", 85, false)
	if !ok || got != 85 {
		t.Fatalf("expected fail-open to regex value, got %v ok=%v", got, ok)
	}
}

func TestVerifyNumericFieldKeepsValueOnTransportError(t *testing.T) {
	client := &scriptedClient{err: errors.New("connection refused")}
	verifier := NewVerifier(client, "gemini-2.0-flash", time.Second)

	got, ok := verifier.VerifyNumericField(context.Background(), "85 კგ ვარ", "weight", 85, false)
	if !ok || got != 85 {
		t.Fatalf("expected fail-open on error, got %v ok=%v", got, ok)
	}
}

func TestVerifyNumericFieldKeepsValueOnGarbageAnswer(t *testing.T) {
	client := &scriptedClient{answer: "ოცდახუთი"}
	verifier := NewVerifier(client, "gemini-2.0-flash", time.Second)

	got, ok := verifier.VerifyNumericField(context.Background(), "25 წლის ვარ", "age", 25, true)
	if !ok || got != 25 {
		t.Fatalf("expected fail-open on non-numeric answer, got %v ok=%v", got, ok)
	}
}

func TestVerifyNumericFieldRequiresWholeNumberForAge(t *testing.T) {
	client := &scriptedClient{answer: "25.5"}
	verifier := NewVerifier(client, "gemini-2.0-flash", time.Second)

	got, ok := verifier.VerifyNumericField(context.Background(), "25 წლის ვარ", "age", 25, true)
	if !ok || got != 25 {
		t.Fatalf("expected fractional age to fall back to regex value, got %v ok=%v", got, ok)
	}
}
