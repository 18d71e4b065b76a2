package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"scoopai/backend/internal/llm"
	"scoopai/backend/internal/metrics"
	"scoopai/backend/internal/reasoning"
	"scoopai/backend/internal/thinking"
)

const chatSystemPrompt = `შენ ხარ Scoop AI - საკვები დანამატების მაღაზიის კონსულტანტი.
უპასუხე ქართულად, მოკლედ და კონკრეტულად.
გამოიყენე [ANALYSIS] და [USER_PROFILE] ბლოკების ინფორმაცია, მაგრამ თვითონ ბლოკები პასუხში არ ახსენო.
პროდუქტი ურჩიე მხოლოდ ნაპოვნი სიიდან, ფასების მითითებით.
სამედიცინო შეკითხვაზე ყოველთვის დაამატე ექიმთან კონსულტაციის რჩევა.`

// profileProcessTimeout bounds background profile extraction, which includes
// at most two verification calls against the model.
const profileProcessTimeout = 15 * time.Second

type chatResult struct {
	SessionID  string
	NewSession bool
	Answer     string
	Model      string
	Usage      llm.Usage
	Analysis   reasoning.QueryAnalysis
	Search     *reasoning.ConstrainedSearchResult
}

// thinkingEmitter forwards pipeline progress to a streaming client. A nil
// emitter (the synchronous endpoint) drops everything, so the engine calls
// it unconditionally.
type thinkingEmitter struct {
	manager *thinking.Manager
	send    func(payload string)
}

func (t *thinkingEmitter) emit(ev *thinking.Event) {
	if t == nil || ev == nil || t.send == nil {
		return
	}
	t.send(ev.SSEData())
}

func (t *thinkingEmitter) functionCall(name string) {
	if t == nil {
		return
	}
	t.emit(t.manager.FunctionCallEvent(name))
}

func (t *thinkingEmitter) productsFound(count int) {
	if t == nil {
		return
	}
	t.emit(t.manager.RetryEvent(count))
}

// runChat executes one exchange: load history, analyze the message, search
// the catalog when products are requested, inject the analysis context, ask
// the model, persist the turns, and hand the message to background profile
// extraction. Analyzer, search, and profile failures degrade to forwarding
// the raw message; only a failed model call aborts the exchange.
func (a *App) runChat(ctx context.Context, userID, sessionID, message string, progress *thinkingEmitter) (chatResult, error) {
	requested := strings.TrimSpace(sessionID)

	start := time.Now()
	history, resolvedID, _ := a.conversations.LoadHistory(ctx, userID, requested)
	observeStage("load_history", start)

	start = time.Now()
	analysis := a.analyzer.Analyze(message, history)
	observeStage("analyze", start)

	var searchResult *reasoning.ConstrainedSearchResult
	if len(analysis.ProductsRequested) > 0 {
		progress.functionCall("search_products")
		start = time.Now()
		result := a.search.Search(ctx, analysis, a.cfg.MaxPerCategory)
		observeStage("search", start)
		searchResult = &result
		if len(result.Products) > 0 {
			progress.productsFound(len(result.Products))
		}
	}

	profileView := a.loadProfileView(ctx, userID)
	injected := reasoning.InjectContext(message, analysis, searchResult, profileView)

	start = time.Now()
	resp, err := a.ai.Generate(ctx, llm.Request{
		Model:           a.cfg.GeminiModel,
		SystemPrompt:    chatSystemPrompt,
		History:         history,
		UserPrompt:      injected,
		MaxOutputTokens: a.cfg.AIMaxOutputTokens,
	})
	observeStage("generate", start)
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(a.cfg.GeminiModel, "error").Inc()
		return chatResult{}, fmt.Errorf("generate answer: %w", err)
	}
	metrics.LLMCallsTotal.WithLabelValues(resp.Model, "ok").Inc()

	// The stored history carries the raw message; analysis and profile
	// blocks are rebuilt on every request.
	turns := append(history,
		llm.Turn{Role: "user", Content: message},
		llm.Turn{Role: "assistant", Content: resp.Answer},
	)
	start = time.Now()
	if err := a.conversations.SaveHistory(ctx, userID, resolvedID, turns); err != nil {
		a.log.Warn("history save failed",
			zap.String("user_id", userID),
			zap.String("session_id", resolvedID),
			zap.Error(err))
	}
	observeStage("save_history", start)

	newSession := requested == "" || resolvedID != requested
	sessionsDelta := 0
	if newSession {
		sessionsDelta = 1
	}
	if err := a.users.IncrementStats(ctx, userID, 1, sessionsDelta); err != nil {
		a.log.Warn("stats update failed", zap.String("user_id", userID), zap.Error(err))
	}

	// Extraction runs after the answer is already on its way, on its own
	// context so the request's cancellation cannot cut it short.
	go a.processProfileMessage(userID, message)

	return chatResult{
		SessionID:  resolvedID,
		NewSession: newSession,
		Answer:     resp.Answer,
		Model:      resp.Model,
		Usage:      resp.Usage,
		Analysis:   analysis,
		Search:     searchResult,
	}, nil
}

func (a *App) processProfileMessage(userID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), profileProcessTimeout)
	defer cancel()

	result := a.processor.ProcessMessage(ctx, userID, message)
	if result.Error != "" {
		a.log.Warn("profile processing incomplete",
			zap.String("user_id", userID),
			zap.String("error", result.Error))
	}
}

// loadProfileView reduces the stored profile to the fields the prompt
// context renders. Returns nil when nothing useful is known, so the
// context injector skips the block entirely.
func (a *App) loadProfileView(ctx context.Context, userID string) *reasoning.ProfileView {
	stored, err := a.users.GetProfile(ctx, userID)
	if err != nil {
		a.log.Warn("profile load failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	view := &reasoning.ProfileView{
		Age:                int(numberFromMap(stored.Demographics, "age")),
		Weight:             numberFromMap(stored.PhysicalStats, "weight"),
		Height:             numberFromMap(stored.PhysicalStats, "height"),
		OccupationCategory: stringFromMap(stored.Demographics, "occupation_category"),
	}
	if view.Age == 0 && view.Weight == 0 && view.Height == 0 && view.OccupationCategory == "" {
		return nil
	}
	return view
}

func observeStage(stage string, start time.Time) {
	metrics.ChatStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
