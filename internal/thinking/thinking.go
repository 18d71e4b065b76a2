// Package thinking drives the progress messages shown while a streamed
// answer is being prepared. Strategies trade immediacy for noise: none
// stays silent, simple_loader plays staged Georgian messages, native
// relays model thoughts when the transport exposes them.
package thinking

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Strategy string

const (
	StrategyNone         Strategy = "none"
	StrategySimpleLoader Strategy = "simple_loader"
	StrategyNative       Strategy = "native"
)

// ParseStrategy maps a config value onto a Strategy. Unknown values fall
// back to the simple loader.
func ParseStrategy(value string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case StrategyNone:
		return StrategyNone
	case StrategyNative:
		return StrategyNative
	default:
		return StrategySimpleLoader
	}
}

// Event is one progress message in a streamed response.
type Event struct {
	Content string `json:"content"`
	Step    int    `json:"step"`
	Final   bool   `json:"is_final"`
}

type ssePayload struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Step    int    `json:"step"`
	Final   bool   `json:"is_final"`
}

// SSEData renders the event as the JSON payload of an SSE data line.
func (e Event) SSEData() string {
	encoded, err := json.Marshal(ssePayload{
		Type:    "thinking",
		Content: e.Content,
		Step:    e.Step,
		Final:   e.Final,
	})
	if err != nil {
		return `{"type":"thinking"}`
	}
	return string(encoded)
}

var stageMessages = map[string][]string{
	"search":         {"ვეძებ პროდუქტებს...", "ვაანალიზებ არჩევანს..."},
	"recommendation": {"ვაფასებ თქვენს მოთხოვნებს...", "ვამზადებ რეკომენდაციას..."},
	"general":        {"ვფიქრობ...", "ვამზადებ პასუხს..."},
	"profile":        {"ვამოწმებ თქვენს პროფილს..."},
}

// ordered: the first intent with a keyword hit wins
var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{"search", []string{"ძებნა", "მოძებნე", "რომელი", "რა ღირს", "პროტეინ", "კრეატინ", "ვიტამინ"}},
	{"recommendation", []string{"რეკომენდაცია", "ჯობია", "ურჩევ", "შესაფერის", "საუკეთესო"}},
	{"profile", []string{"პროფილი", "ალერგია", "მიზანი", "წონა", "სიმაღლე"}},
}

var functionCallMessages = map[string]string{
	"search_products":     "ვეძებ პროდუქტებს...",
	"get_user_profile":    "ვამოწმებ პროფილს...",
	"update_user_profile": "ვინახავ მონაცემებს...",
	"get_product_details": "ვიღებ დეტალებს...",
}

// Manager tracks progress-event state for a single streamed response.
// Not safe for concurrent use; create one per request.
type Manager struct {
	strategy Strategy
	custom   []string

	stepCount int
	complete  bool
	thoughts  []string
}

// NewManager builds a Manager. Custom messages, when given, replace the
// staged messages of the simple loader.
func NewManager(strategy Strategy, custom []string) *Manager {
	return &Manager{strategy: strategy, custom: custom}
}

// InitialEvents returns the messages to stream before the model call.
// The simple loader picks a staged sequence by detected intent; the other
// strategies stay silent here.
func (m *Manager) InitialEvents(userMessage string) []Event {
	if m.strategy != StrategySimpleLoader {
		return nil
	}

	messages := stageMessages[detectIntent(userMessage)]
	if len(m.custom) > 0 {
		messages = m.custom
	}

	events := make([]Event, 0, len(messages))
	for i, msg := range messages {
		m.stepCount++
		events = append(events, Event{
			Content: msg,
			Step:    m.stepCount,
			Final:   i == len(messages)-1,
		})
	}
	return events
}

// ProcessThought relays one model thought in native mode. Returns nil for
// other strategies and for blank thoughts.
func (m *Manager) ProcessThought(text string) *Event {
	if m.strategy != StrategyNative {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	m.thoughts = append(m.thoughts, text)
	m.stepCount++
	return &Event{Content: text, Step: m.stepCount}
}

// FunctionCallEvent announces a tool invocation.
func (m *Manager) FunctionCallEvent(functionName string) *Event {
	if m.strategy == StrategyNone {
		return nil
	}
	message, ok := functionCallMessages[functionName]
	if !ok {
		message = fmt.Sprintf("ვასრულებ: %s...", functionName)
	}
	m.stepCount++
	return &Event{Content: message, Step: m.stepCount}
}

// RetryEvent announces a second model pass after products were found but
// no text came back.
func (m *Manager) RetryEvent(productCount int) *Event {
	if m.strategy == StrategyNone {
		return nil
	}
	m.stepCount++
	return &Event{
		Content: fmt.Sprintf("ნაპოვნია %d პროდუქტი, ვამზადებ რეკომენდაციას...", productCount),
		Step:    m.stepCount,
	}
}

// CompletionEvent marks the thinking phase done. Emitted at most once;
// nil once complete or when the strategy is none.
func (m *Manager) CompletionEvent() *Event {
	if m.strategy == StrategyNone {
		return nil
	}
	if m.complete {
		return nil
	}
	m.complete = true
	m.stepCount++
	return &Event{Content: "მზადაა!", Step: m.stepCount, Final: true}
}

func (m *Manager) MarkComplete() {
	m.complete = true
}

func (m *Manager) IsComplete() bool {
	return m.complete
}

func (m *Manager) StepCount() int {
	return m.stepCount
}

// Thoughts returns the model thoughts accumulated in native mode.
func (m *Manager) Thoughts() []string {
	out := make([]string, len(m.thoughts))
	copy(out, m.thoughts)
	return out
}

// Reset clears state so the manager can drive another response.
func (m *Manager) Reset() {
	m.stepCount = 0
	m.complete = false
	m.thoughts = nil
}

func detectIntent(message string) string {
	lowered := strings.ToLower(message)
	for _, entry := range intentKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(lowered, keyword) {
				return entry.intent
			}
		}
	}
	return "general"
}
