package llm

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"scoopai/backend/internal/metrics"
)

const verifyPromptTemplate = `ტექსტში მომხმარებლის %s უნდა ამოვიღოთ.

ტექსტი: "%s"
RegEx-მა ამოიღო: %s

კითხვა: რა არის მომხმარებლის ნამდვილი %s?
- თუ %s სწორია, დააბრუნე: %s
- თუ სხვა მნიშვნელობაა სწორი, დააბრუნე ის რიცხვი
- თუ მომხმარებელი არ საუბრობს საკუთარ თავზე, დააბრუნე: null

მხოლოდ რიცხვი ან null დააბრუნე, არაფერი სხვა.`

// Verifier double-checks regex-extracted numeric profile fields against the
// message text. It is only consulted when a negation makes the regex reading
// ambiguous.
type Verifier struct {
	client  Client
	model   string
	timeout time.Duration
}

func NewVerifier(client Client, model string, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Verifier{client: client, model: model, timeout: timeout}
}

// VerifyNumericField returns the value to keep and whether to keep it at
// all. ok=false means the model decided the text is not about the speaker
// and the field must be dropped. Timeouts, transport errors, and answers
// that are not a plain number keep the regex value unchanged.
func (v *Verifier) VerifyNumericField(ctx context.Context, text, field string, value float64, wholeNumber bool) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	rendered := strconv.FormatFloat(value, 'f', -1, 64)
	prompt := fmt.Sprintf(verifyPromptTemplate, field, text, rendered, field, rendered, rendered)

	resp, err := v.client.Generate(ctx, Request{
		Model:           v.model,
		UserPrompt:      prompt,
		MaxOutputTokens: 16,
	})
	if err != nil {
		metrics.ProfileVerificationsTotal.WithLabelValues(field, "failed").Inc()
		return value, true
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Answer))
	if answer == "null" || answer == "none" {
		metrics.ProfileVerificationsTotal.WithLabelValues(field, "rejected").Inc()
		return 0, false
	}

	parsed, parseErr := strconv.ParseFloat(answer, 64)
	if parseErr != nil || (wholeNumber && parsed != math.Trunc(parsed)) {
		metrics.ProfileVerificationsTotal.WithLabelValues(field, "failed").Inc()
		return value, true
	}
	if parsed != value {
		metrics.ProfileVerificationsTotal.WithLabelValues(field, "corrected").Inc()
		return parsed, true
	}
	metrics.ProfileVerificationsTotal.WithLabelValues(field, "confirmed").Inc()
	return value, true
}
