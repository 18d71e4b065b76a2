package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"scoopai/backend/internal/llm"
)

const (
	defaultMaxMessages      = 100
	defaultMaxTokens        = 50000
	defaultSessionListLimit = 20
	maxSessionListLimit     = 100

	summaryRuneLimit     = 3200
	summaryLineRuneLimit = 180
	sessionTitleRuneMax  = 38
	sessionPreviewRunMax = 96

	// rough per-turn framing cost on top of the ~4 chars/token estimate
	turnTokenOverhead = 4
)

// ErrSessionNotFound is returned when a session id does not exist or
// belongs to a different user.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo is one row of a user's session list.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ConversationStore keeps each chat session as one row with the full turn
// list in a JSONB column. When a session outgrows the message or token
// budget the oldest turns are folded into a rolling summary string.
type ConversationStore struct {
	db          dbQuerier
	log         *zap.Logger
	maxMessages int
	maxTokens   int
}

func NewConversationStore(db dbQuerier, log *zap.Logger, maxMessages, maxTokens int) *ConversationStore {
	if log == nil {
		log = zap.NewNop()
	}
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &ConversationStore{db: db, log: log, maxMessages: maxMessages, maxTokens: maxTokens}
}

// LoadHistory never fails: a storage error yields an empty history under a
// fresh session id so the conversation can continue without persistence.
// An empty sessionID starts a new session; an unknown one is kept as-is and
// created lazily on the first SaveHistory.
func (s *ConversationStore) LoadHistory(ctx context.Context, userID, sessionID string) ([]llm.Turn, string, string) {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return []llm.Turn{}, newSessionID(), ""
	}

	var messagesRaw []byte
	var summary string
	err := s.db.QueryRow(
		ctx,
		`SELECT messages, COALESCE(summary, '')
		 FROM chat_sessions
		 WHERE id = $1 AND user_id = $2`,
		trimmed,
		userID,
	).Scan(&messagesRaw, &summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return []llm.Turn{}, trimmed, ""
	}
	if err != nil {
		s.log.Warn("load history failed, starting fresh session",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return []llm.Turn{}, newSessionID(), ""
	}
	return decodeTurns(messagesRaw), trimmed, summary
}

// SaveHistory upserts the full turn list for a session, pruning the oldest
// turns into the session summary when the history exceeds the configured
// message or token budget.
func (s *ConversationStore) SaveHistory(ctx context.Context, userID, sessionID string, turns []llm.Turn) error {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return fmt.Errorf("session id is required")
	}

	var existingSummary string
	err := s.db.QueryRow(
		ctx,
		`SELECT COALESCE(summary, '') FROM chat_sessions WHERE id = $1 AND user_id = $2`,
		trimmed,
		userID,
	).Scan(&existingSummary)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("load session summary: %w", err)
	}

	kept, pruned := pruneTurns(turns, s.maxMessages, s.maxTokens)
	summary := existingSummary
	if len(pruned) > 0 {
		summary = foldIntoSummary(existingSummary, pruned)
		s.log.Info("pruned session history",
			zap.String("session_id", trimmed),
			zap.Int("pruned_turns", len(pruned)),
			zap.Int("kept_turns", len(kept)),
		)
	}

	tag, err := s.db.Exec(
		ctx,
		`INSERT INTO chat_sessions (id, user_id, messages, summary, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, NOW(), NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET messages = EXCLUDED.messages,
		     summary = EXCLUDED.summary,
		     updated_at = NOW()
		 WHERE chat_sessions.user_id = EXCLUDED.user_id`,
		trimmed,
		userID,
		mustMarshalTurns(kept),
		summary,
	)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s belongs to another user", trimmed)
	}
	return nil
}

// SessionHistory returns the stored turns of one session for display.
func (s *ConversationStore) SessionHistory(ctx context.Context, userID, sessionID string) ([]llm.Turn, error) {
	var raw []byte
	err := s.db.QueryRow(
		ctx,
		`SELECT messages FROM chat_sessions WHERE id = $1 AND user_id = $2`,
		strings.TrimSpace(sessionID),
		userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return decodeTurns(raw), nil
}

// UserSessions lists a user's sessions, most recently active first.
func (s *ConversationStore) UserSessions(ctx context.Context, userID string, limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = defaultSessionListLimit
	}
	if limit > maxSessionListLimit {
		limit = maxSessionListLimit
	}

	rows, err := s.db.Query(
		ctx,
		`SELECT id, messages, created_at, updated_at
		 FROM chat_sessions
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]SessionInfo, 0, limit)
	for rows.Next() {
		var id string
		var raw []byte
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&id, &raw, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		turns := decodeTurns(raw)
		sessions = append(sessions, SessionInfo{
			SessionID:    id,
			Title:        deriveSessionTitle(turns),
			Preview:      derivePreview(turns),
			MessageCount: len(turns),
			CreatedAt:    createdAt,
			UpdatedAt:    updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ClearSession deletes one session. Returns ErrSessionNotFound when the id
// does not exist for this user.
func (s *ConversationStore) ClearSession(ctx context.Context, userID, sessionID string) error {
	tag, err := s.db.Exec(
		ctx,
		`DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2`,
		strings.TrimSpace(sessionID),
		userID,
	)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func newSessionID() string {
	id := uuid.New()
	return fmt.Sprintf("session_%x", id[:6])
}

func decodeTurns(raw []byte) []llm.Turn {
	if len(raw) == 0 {
		return []llm.Turn{}
	}
	var turns []llm.Turn
	if err := json.Unmarshal(raw, &turns); err != nil || turns == nil {
		return []llm.Turn{}
	}
	return turns
}

func mustMarshalTurns(turns []llm.Turn) string {
	if turns == nil {
		turns = []llm.Turn{}
	}
	encoded, err := json.Marshal(turns)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// pruneTurns splits the history into the suffix that stays in the session
// document and the prefix to fold into the summary. The most recent
// exchange always survives, even when it alone blows the token budget.
func pruneTurns(turns []llm.Turn, maxMessages, maxTokens int) (kept, pruned []llm.Turn) {
	if len(turns) == 0 {
		return []llm.Turn{}, nil
	}

	start := 0
	if maxMessages > 0 && len(turns) > maxMessages {
		start = len(turns) - maxMessages
	}
	if maxTokens > 0 {
		total := 0
		for i := len(turns) - 1; i >= start; i-- {
			total += estimateTurnTokens(turns[i])
			if total > maxTokens {
				start = i + 1
				break
			}
		}
	}

	floor := len(turns) - 2
	if floor < 0 {
		floor = 0
	}
	if start > floor {
		start = floor
	}
	if start == 0 {
		return turns, nil
	}
	return turns[start:], turns[:start]
}

// estimateTurnTokens approximates the prompt cost of one turn. Four
// characters per token holds roughly for Georgian and Latin text alike.
func estimateTurnTokens(turn llm.Turn) int {
	return utf8.RuneCountInString(turn.Content)/4 + turnTokenOverhead
}

func estimateHistoryTokens(turns []llm.Turn) int {
	total := 0
	for _, turn := range turns {
		total += estimateTurnTokens(turn)
	}
	return total
}

func foldIntoSummary(existing string, pruned []llm.Turn) string {
	lines := make([]string, 0, len(pruned)+8)
	if trimmed := strings.TrimSpace(existing); trimmed != "" {
		lines = append(lines, splitNonEmptyLines(trimmed)...)
	}
	for _, turn := range pruned {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		if role != "user" && role != "assistant" {
			continue
		}
		content := strings.Join(strings.Fields(turn.Content), " ")
		if content == "" {
			continue
		}
		speaker := "User"
		if role == "assistant" {
			speaker = "Assistant"
		}
		lines = append(lines, "- "+speaker+": "+truncateRunes(content, summaryLineRuneLimit))
	}
	if len(lines) == 0 {
		return ""
	}
	return trimToRuneLimit(strings.Join(lines, "\n"), summaryRuneLimit)
}

func deriveSessionTitle(turns []llm.Turn) string {
	for _, turn := range turns {
		if strings.ToLower(strings.TrimSpace(turn.Role)) != "user" {
			continue
		}
		normalized := strings.Join(strings.Fields(turn.Content), " ")
		if normalized == "" {
			continue
		}
		return truncateRunes(normalized, sessionTitleRuneMax)
	}
	return "New conversation"
}

func derivePreview(turns []llm.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		normalized := strings.Join(strings.Fields(turns[i].Content), " ")
		if normalized != "" {
			return truncateRunes(normalized, sessionPreviewRunMax)
		}
	}
	return "No messages yet"
}

func splitNonEmptyLines(text string) []string {
	parts := strings.Split(text, "\n")
	result := make([]string, 0, len(parts))
	for _, item := range parts {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func trimToRuneLimit(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || limit <= 0 {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return trimmed
	}

	const prefix = "(older memory compressed)\n"
	keep := limit - len([]rune(prefix))
	if keep < 64 {
		keep = limit
	}
	if keep > len(runes) {
		keep = len(runes)
	}
	tail := strings.TrimSpace(string(runes[len(runes)-keep:]))
	if keep == limit {
		return tail
	}
	return prefix + tail
}

func truncateRunes(value string, max int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || max <= 0 {
		return ""
	}
	runes := []rune(trimmed)
	if len(runes) <= max {
		return trimmed
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}
