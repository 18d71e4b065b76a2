package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scoopai/backend/internal/profile"
)

// Writable profile fields. The stores merge whatever map they are handed,
// so the handlers own the key validation.
var (
	demographicsKeys = map[string]struct{}{
		"age":                 {},
		"gender":              {},
		"occupation":          {},
		"occupation_category": {},
	}
	lifestyleKeys = map[string]struct{}{
		"workout_frequency": {},
		"experience_years":  {},
		"sleep_hours":       {},
		"activity_level":    {},
	}
)

type physicalStatsUpdate struct {
	Height         *float64 `json:"height"`
	BodyFatPercent *float64 `json:"body_fat_percent"`
}

type profileUpdateRequest struct {
	Name          *string              `json:"name"`
	Demographics  map[string]any       `json:"demographics"`
	Lifestyle     map[string]any       `json:"lifestyle"`
	PhysicalStats *physicalStatsUpdate `json:"physical_stats"`
	Allergies     []string             `json:"allergies"`
}

type weightEntryRequest struct {
	Weight float64 `json:"weight"`
}

func (a *App) getProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	stored, err := a.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		a.log.Error("profile load failed", zap.String("user_id", userID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to load profile")
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (a *App) updateProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload profileUpdateRequest
	if !mustJSON(c, &payload) {
		return
	}

	for key := range payload.Demographics {
		if _, ok := demographicsKeys[key]; !ok {
			writeError(c, http.StatusBadRequest, "Unsupported demographics field: "+key)
			return
		}
	}
	if _, ok := payload.Demographics["age"]; ok {
		if age := numberFromMap(payload.Demographics, "age"); age < 10 || age > 120 {
			writeError(c, http.StatusBadRequest, "age must be between 10 and 120")
			return
		}
	}
	for key := range payload.Lifestyle {
		if _, ok := lifestyleKeys[key]; !ok {
			writeError(c, http.StatusBadRequest, "Unsupported lifestyle field: "+key)
			return
		}
	}

	ctx := c.Request.Context()
	if payload.Name != nil {
		if name := strings.TrimSpace(*payload.Name); name != "" {
			if err := a.users.SetName(ctx, userID, name); err != nil {
				a.writeProfileUpdateError(c, userID, "set name", err)
				return
			}
		}
	}
	if len(payload.Demographics) > 0 {
		if err := a.users.UpdateDemographics(ctx, userID, payload.Demographics); err != nil {
			a.writeProfileUpdateError(c, userID, "update demographics", err)
			return
		}
	}
	if len(payload.Lifestyle) > 0 {
		if err := a.users.UpdateLifestyle(ctx, userID, payload.Lifestyle); err != nil {
			a.writeProfileUpdateError(c, userID, "update lifestyle", err)
			return
		}
	}
	if payload.PhysicalStats != nil {
		if err := a.users.UpdatePhysicalStats(ctx, userID, payload.PhysicalStats.Height, payload.PhysicalStats.BodyFatPercent); err != nil {
			a.writeProfileUpdateError(c, userID, "update physical stats", err)
			return
		}
	}
	for _, allergy := range payload.Allergies {
		if trimmed := strings.TrimSpace(allergy); trimmed != "" {
			if err := a.users.AddAllergy(ctx, userID, trimmed); err != nil {
				a.writeProfileUpdateError(c, userID, "add allergy", err)
				return
			}
		}
	}

	stored, err := a.users.GetProfile(ctx, userID)
	if err != nil {
		a.log.Error("profile reload failed", zap.String("user_id", userID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to load profile")
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (a *App) getWeightHistory(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	entries, err := a.users.WeightHistory(c.Request.Context(), userID)
	if err != nil {
		a.log.Error("weight history load failed", zap.String("user_id", userID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to load weight history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (a *App) addWeightEntry(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload weightEntryRequest
	if !mustJSON(c, &payload) {
		return
	}
	if payload.Weight < 30 || payload.Weight > 300 {
		writeError(c, http.StatusBadRequest, "weight must be between 30 and 300 kg")
		return
	}

	if err := a.users.AddWeightEntry(c.Request.Context(), userID, payload.Weight); err != nil {
		a.writeProfileUpdateError(c, userID, "add weight entry", err)
		return
	}

	confirmation := profile.GenerateConfirmation(&profile.ExtractionResult{Weight: &payload.Weight})
	c.JSON(http.StatusOK, gin.H{
		"status":       "saved",
		"weight":       payload.Weight,
		"confirmation": confirmation,
	})
}

func (a *App) writeProfileUpdateError(c *gin.Context, userID, action string, err error) {
	a.log.Error("profile update failed",
		zap.String("user_id", userID),
		zap.String("action", action),
		zap.Error(err))
	writeError(c, http.StatusInternalServerError, "Failed to update profile")
}
