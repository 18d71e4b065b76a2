package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// WeightEntry is one append-only weight measurement.
type WeightEntry struct {
	Weight     float64   `json:"weight"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Fact is one long-term statement remembered about a user.
type Fact struct {
	Text    string    `json:"text"`
	AddedAt time.Time `json:"added_at"`
}

// Profile is the full stored view of a user.
type Profile struct {
	UserID        string         `json:"user_id"`
	Name          string         `json:"name"`
	Demographics  map[string]any `json:"demographics"`
	PhysicalStats map[string]any `json:"physical_stats"`
	Lifestyle     map[string]any `json:"lifestyle"`
	WeightHistory []WeightEntry  `json:"weight_history"`
	Facts         []Fact         `json:"facts"`
	Allergies     []string       `json:"allergies"`
	MessageCount  int            `json:"message_count"`
	SessionCount  int            `json:"session_count"`
	LastActive    *time.Time     `json:"last_active,omitempty"`
	Language      string         `json:"language"`
}

// UserStore keeps one row per user with profile sections in JSONB columns.
// All writes are upserts so a user row materializes on first contact.
type UserStore struct {
	db dbQuerier
}

func NewUserStore(db dbQuerier) *UserStore {
	return &UserStore{db: db}
}

// GetProfile returns the stored profile. Unknown users get an empty profile
// rather than an error; they exist from their first message onward.
func (s *UserStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	profile := emptyProfile(userID)

	var demographicsRaw, physicalRaw, lifestyleRaw, weightRaw, factsRaw, allergiesRaw []byte
	var lastActive *time.Time
	err := s.db.QueryRow(
		ctx,
		`SELECT name, demographics, physical_stats, lifestyle, weight_history, facts, allergies,
		        message_count, session_count, last_active, language
		 FROM user_profiles
		 WHERE user_id = $1`,
		userID,
	).Scan(
		&profile.Name,
		&demographicsRaw,
		&physicalRaw,
		&lifestyleRaw,
		&weightRaw,
		&factsRaw,
		&allergiesRaw,
		&profile.MessageCount,
		&profile.SessionCount,
		&lastActive,
		&profile.Language,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return profile, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}

	profile.Demographics = parseJSONStringMap(demographicsRaw)
	profile.PhysicalStats = parseJSONStringMap(physicalRaw)
	profile.Lifestyle = parseJSONStringMap(lifestyleRaw)
	profile.WeightHistory = decodeWeightHistory(weightRaw)
	profile.Facts = decodeFacts(factsRaw)
	profile.Allergies = decodeStringSlice(allergiesRaw)
	profile.LastActive = lastActive
	return profile, nil
}

// UpdateDemographics merges the given fields into the demographics document.
func (s *UserStore) UpdateDemographics(ctx context.Context, userID string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO user_profiles (user_id, demographics)
		 VALUES ($1, $2::jsonb)
		 ON CONFLICT (user_id) DO UPDATE
		 SET demographics = user_profiles.demographics || EXCLUDED.demographics,
		     updated_at = NOW()`,
		userID,
		mustMarshalJSON(updates),
	)
	if err != nil {
		return fmt.Errorf("update demographics: %w", err)
	}
	return nil
}

// UpdatePhysicalStats merges height and body fat into the physical stats
// document. Nil fields are left untouched.
func (s *UserStore) UpdatePhysicalStats(ctx context.Context, userID string, height, bodyFatPercent *float64) error {
	updates := map[string]any{}
	if height != nil {
		updates["height"] = *height
	}
	if bodyFatPercent != nil {
		updates["body_fat_percent"] = *bodyFatPercent
	}
	if len(updates) == 0 {
		return nil
	}
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO user_profiles (user_id, physical_stats)
		 VALUES ($1, $2::jsonb)
		 ON CONFLICT (user_id) DO UPDATE
		 SET physical_stats = user_profiles.physical_stats || EXCLUDED.physical_stats,
		     updated_at = NOW()`,
		userID,
		mustMarshalJSON(updates),
	)
	if err != nil {
		return fmt.Errorf("update physical stats: %w", err)
	}
	return nil
}

// AddWeightEntry appends a measurement to the weight history and keeps
// physical_stats.weight pointing at the latest value.
func (s *UserStore) AddWeightEntry(ctx context.Context, userID string, weight float64) error {
	entry := WeightEntry{Weight: weight, RecordedAt: time.Now().UTC()}
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO user_profiles (user_id, weight_history, physical_stats)
		 VALUES ($1, jsonb_build_array($2::jsonb), jsonb_build_object('weight', $3::float8))
		 ON CONFLICT (user_id) DO UPDATE
		 SET weight_history = user_profiles.weight_history || $2::jsonb,
		     physical_stats = user_profiles.physical_stats || jsonb_build_object('weight', $3::float8),
		     updated_at = NOW()`,
		userID,
		mustMarshalJSON(entry),
		weight,
	)
	if err != nil {
		return fmt.Errorf("add weight entry: %w", err)
	}
	return nil
}

// WeightHistory returns all recorded measurements, oldest first.
func (s *UserStore) WeightHistory(ctx context.Context, userID string) ([]WeightEntry, error) {
	var raw []byte
	err := s.db.QueryRow(
		ctx,
		`SELECT weight_history FROM user_profiles WHERE user_id = $1`,
		userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []WeightEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load weight history: %w", err)
	}
	return decodeWeightHistory(raw), nil
}

// AddFact stores a long-term fact. Returns false without error when the
// exact text is already stored.
func (s *UserStore) AddFact(ctx context.Context, userID, fact string) (bool, error) {
	trimmed := strings.TrimSpace(fact)
	if trimmed == "" {
		return false, nil
	}
	entry := Fact{Text: trimmed, AddedAt: time.Now().UTC()}
	tag, err := s.db.Exec(
		ctx,
		`INSERT INTO user_profiles (user_id, facts)
		 VALUES ($1, jsonb_build_array($2::jsonb))
		 ON CONFLICT (user_id) DO UPDATE
		 SET facts = user_profiles.facts || $2::jsonb,
		     updated_at = NOW()
		 WHERE NOT user_profiles.facts @> jsonb_build_array(jsonb_build_object('text', $3::text))`,
		userID,
		mustMarshalJSON(entry),
		trimmed,
	)
	if err != nil {
		return false, fmt.Errorf("add fact: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Facts returns the stored long-term facts, oldest first.
func (s *UserStore) Facts(ctx context.Context, userID string) ([]Fact, error) {
	var raw []byte
	err := s.db.QueryRow(
		ctx,
		`SELECT facts FROM user_profiles WHERE user_id = $1`,
		userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []Fact{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	return decodeFacts(raw), nil
}

// IncrementStats bumps message/session counters and the last-active stamp.
func (s *UserStore) IncrementStats(ctx context.Context, userID string, messages, sessions int) error {
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO user_profiles (user_id, message_count, session_count, last_active)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET message_count = user_profiles.message_count + EXCLUDED.message_count,
		     session_count = user_profiles.session_count + EXCLUDED.session_count,
		     last_active = NOW(),
		     updated_at = NOW()`,
		userID,
		messages,
		sessions,
	)
	if err != nil {
		return fmt.Errorf("increment stats: %w", err)
	}
	return nil
}

// SetName stores the user's display name.
func (s *UserStore) SetName(ctx context.Context, userID, name string) error {
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO user_profiles (user_id, name)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET name = EXCLUDED.name,
		     updated_at = NOW()`,
		userID,
		strings.TrimSpace(name),
	)
	if err != nil {
		return fmt.Errorf("set name: %w", err)
	}
	return nil
}

// AddAllergy appends an allergy if not already present. Idempotent.
func (s *UserStore) AddAllergy(ctx context.Context, userID, allergy string) error {
	trimmed := strings.TrimSpace(allergy)
	if trimmed == "" {
		return nil
	}
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO user_profiles (user_id, allergies)
		 VALUES ($1, jsonb_build_array($2::text))
		 ON CONFLICT (user_id) DO UPDATE
		 SET allergies = user_profiles.allergies || to_jsonb($2::text),
		     updated_at = NOW()
		 WHERE NOT user_profiles.allergies ? $2`,
		userID,
		trimmed,
	)
	if err != nil {
		return fmt.Errorf("add allergy: %w", err)
	}
	return nil
}

// UpdateLifestyle merges workout/sleep/experience fields into the lifestyle
// document. Callers validate the keys.
func (s *UserStore) UpdateLifestyle(ctx context.Context, userID string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO user_profiles (user_id, lifestyle)
		 VALUES ($1, $2::jsonb)
		 ON CONFLICT (user_id) DO UPDATE
		 SET lifestyle = user_profiles.lifestyle || EXCLUDED.lifestyle,
		     updated_at = NOW()`,
		userID,
		mustMarshalJSON(updates),
	)
	if err != nil {
		return fmt.Errorf("update lifestyle: %w", err)
	}
	return nil
}

func emptyProfile(userID string) Profile {
	return Profile{
		UserID:        userID,
		Demographics:  map[string]any{},
		PhysicalStats: map[string]any{},
		Lifestyle:     map[string]any{},
		WeightHistory: []WeightEntry{},
		Facts:         []Fact{},
		Allergies:     []string{},
		Language:      "ka",
	}
}

func decodeWeightHistory(raw []byte) []WeightEntry {
	if len(raw) == 0 {
		return []WeightEntry{}
	}
	var entries []WeightEntry
	if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
		return []WeightEntry{}
	}
	return entries
}

func decodeFacts(raw []byte) []Fact {
	if len(raw) == 0 {
		return []Fact{}
	}
	var facts []Fact
	if err := json.Unmarshal(raw, &facts); err != nil || facts == nil {
		return []Fact{}
	}
	return facts
}

func decodeStringSlice(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil || values == nil {
		return []string{}
	}
	return values
}
