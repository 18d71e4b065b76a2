package profile

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ProcessingResult reports what a single message contributed to the stored
// profile. Error carries the first persistence failure or a recovered
// panic; the chat flow itself never sees either.
type ProcessingResult struct {
	Extraction           *ExtractionResult
	DemographicsUpdated  bool
	PhysicalStatsUpdated bool
	FactsAdded           int
	Error                string
}

// numericVerifier is implemented by llm.Verifier.
type numericVerifier interface {
	VerifyNumericField(ctx context.Context, text, field string, value float64, wholeNumber bool) (float64, bool)
}

// userStore is the subset of the user store the processor writes through.
type userStore interface {
	UpdateDemographics(ctx context.Context, userID string, updates map[string]any) error
	AddWeightEntry(ctx context.Context, userID string, weight float64) error
	UpdatePhysicalStats(ctx context.Context, userID string, height, bodyFatPercent *float64) error
	AddFact(ctx context.Context, userID, fact string) (bool, error)
}

// Processor folds per-message extraction into the persisted user profile.
// Each call is self-contained, so one Processor serves all users.
type Processor struct {
	extractor *Extractor
	verifier  numericVerifier
	store     userStore
	log       *zap.Logger
}

// NewProcessor wires the extraction pipeline to its collaborators. The
// verifier may be nil, in which case ambiguous values are kept as extracted.
func NewProcessor(extractor *Extractor, verifier numericVerifier, store userStore, log *zap.Logger) *Processor {
	if extractor == nil {
		extractor = NewExtractor(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{extractor: extractor, verifier: verifier, store: store, log: log}
}

// ProcessMessage extracts profile data from one message and persists it.
// It never fails the caller: every failure is caught, logged and surfaced
// only through the Error field. The chat engine runs it on its own
// goroutine after the response is already on its way to the user.
func (p *Processor) ProcessMessage(ctx context.Context, userID, message string) (result ProcessingResult) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("profile processing panicked",
				zap.String("user_id", userID), zap.Any("panic", r))
			result.Error = fmt.Sprintf("profile processing: %v", r)
		}
	}()

	extraction := p.extractor.Extract(message)

	// A negation trigger makes the regex reading ambiguous; the model gets
	// a chance to confirm, correct or reject age and weight before storage.
	if extraction.HasUpdates && hasNegation(message) {
		p.verifyAmbiguous(ctx, message, extraction)
	}

	// Data about a third party never lands in the speaker's profile.
	if extraction.HasUpdates && hasContextReference(message) {
		p.log.Info("context reference detected, discarding extraction",
			zap.String("user_id", userID))
		extraction = &ExtractionResult{}
	}

	result.Extraction = extraction
	if !extraction.HasUpdates {
		return result
	}

	if extraction.Age != nil || extraction.Occupation != "" {
		updates := map[string]any{}
		if extraction.Age != nil {
			updates["age"] = *extraction.Age
		}
		if extraction.Occupation != "" {
			updates["occupation"] = extraction.Occupation
			updates["occupation_category"] = extraction.OccupationCategory
		}
		if err := p.store.UpdateDemographics(ctx, userID, updates); err != nil {
			p.log.Error("demographics update failed",
				zap.String("user_id", userID), zap.Error(err))
			result.Error = fmt.Sprintf("update demographics: %v", err)
			return result
		}
		result.DemographicsUpdated = true
	}

	if extraction.Weight != nil || extraction.Height != nil {
		statsOK := true

		// Weight history is append-only; a failed entry must not block the
		// height update.
		if extraction.Weight != nil {
			if err := p.store.AddWeightEntry(ctx, userID, *extraction.Weight); err != nil {
				p.log.Error("weight entry failed",
					zap.String("user_id", userID), zap.Error(err))
				statsOK = false
			}
		}
		if extraction.Height != nil {
			if err := p.store.UpdatePhysicalStats(ctx, userID, extraction.Height, nil); err != nil {
				p.log.Error("physical stats update failed",
					zap.String("user_id", userID), zap.Error(err))
				result.Error = fmt.Sprintf("update physical stats: %v", err)
				return result
			}
		}
		result.PhysicalStatsUpdated = statsOK
	}

	// Facts are stored only when the message reads as a durable statement
	// rather than a today/right-now remark.
	if len(extraction.PotentialFacts) > 0 && isLongTermFact(message) {
		for _, fact := range extraction.PotentialFacts {
			added, err := p.store.AddFact(ctx, userID, fact)
			if err != nil {
				p.log.Error("fact store failed",
					zap.String("user_id", userID), zap.Error(err))
				continue
			}
			if added {
				result.FactsAdded++
			}
		}
	}

	if len(extraction.Confirmations) > 0 {
		p.log.Info("sensitive disclosure acknowledged",
			zap.String("user_id", userID),
			zap.Int("count", len(extraction.Confirmations)))
	}

	return result
}

func (p *Processor) verifyAmbiguous(ctx context.Context, message string, extraction *ExtractionResult) {
	if p.verifier == nil {
		return
	}

	if extraction.Age != nil {
		value, keep := p.verifier.VerifyNumericField(ctx, message, "age", float64(*extraction.Age), true)
		switch {
		case !keep:
			p.log.Info("age extraction rejected by verifier")
			extraction.Age = nil
		case int(value) != *extraction.Age:
			corrected := int(value)
			extraction.Age = &corrected
		}
	}

	if extraction.Weight != nil {
		value, keep := p.verifier.VerifyNumericField(ctx, message, "weight", *extraction.Weight, false)
		switch {
		case !keep:
			p.log.Info("weight extraction rejected by verifier")
			extraction.Weight = nil
		case value != *extraction.Weight:
			extraction.Weight = &value
		}
	}

	extraction.HasUpdates = extraction.Age != nil || extraction.Weight != nil ||
		extraction.Height != nil || extraction.Occupation != "" ||
		len(extraction.PotentialFacts) > 0
}
