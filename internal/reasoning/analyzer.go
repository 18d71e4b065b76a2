package reasoning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"scoopai/backend/internal/llm"
)

// Analyzer turns free-form user text into a QueryAnalysis. It is pure and
// deterministic for a fixed pattern set; a zero-result scan leaves the
// corresponding field at its default instead of failing.
type Analyzer struct {
	patterns *Patterns
}

func NewAnalyzer(patterns *Patterns) *Analyzer {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	return &Analyzer{patterns: patterns}
}

// Analyze extracts constraints, intent, myths, and goals from the message.
// History contributes context: the user-role turns among the last four are
// folded into the search text, so a budget stated two messages ago still
// binds the current request.
func (a *Analyzer) Analyze(message string, history []llm.Turn) QueryAnalysis {
	analysis := QueryAnalysis{Intent: "general", Complexity: "simple"}
	messageLower := strings.ToLower(message)

	fullContext := messageLower
	if len(history) > 0 {
		recent := history
		if len(recent) > 4 {
			recent = recent[len(recent)-4:]
		}
		for _, turn := range recent {
			if strings.EqualFold(strings.TrimSpace(turn.Role), "user") && turn.Content != "" {
				fullContext += " " + strings.ToLower(turn.Content)
			}
		}
	}

	// Budget: first pattern in table order wins, range form takes the
	// lower bound.
	for _, bp := range a.patterns.budget {
		match := bp.re.FindStringSubmatch(fullContext)
		if match == nil {
			continue
		}
		if value, err := strconv.ParseFloat(match[1], 64); err == nil {
			analysis.Budget = &value
		}
		break
	}

	for _, rule := range a.patterns.dietary {
		if containsAny(fullContext, rule.keywords) {
			analysis.DietaryRestrictions = appendUnique(analysis.DietaryRestrictions, rule.tag)
		}
	}

	for _, capture := range a.patterns.exclusionCaptures {
		for _, match := range capture.FindAllStringSubmatch(fullContext, -1) {
			excludedItem := strings.ToLower(match[1])
			for _, item := range a.patterns.exclusionItems {
				if strings.Contains(excludedItem, item.key) {
					analysis.Exclusions = appendUnique(analysis.Exclusions, item.tag)
				}
			}
		}
	}

	for _, group := range a.patterns.myths {
		if matchesAny(fullContext, group.res) {
			analysis.MythsDetected = appendUnique(analysis.MythsDetected, group.id)
		}
	}

	analysis.UnrealisticGoals = a.detectUnrealisticGoals(fullContext)

	for _, group := range a.patterns.medical {
		if matchesAny(fullContext, group.res) {
			analysis.MedicalConcerns = appendUnique(analysis.MedicalConcerns, group.id)
		}
	}

	for _, group := range a.patterns.safety {
		if matchesAny(fullContext, group.res) {
			analysis.SafetyConcerns = appendUnique(analysis.SafetyConcerns, group.id)
		}
	}

	// Symptoms ride along in medical_concerns with a symptom: prefix so the
	// injector can tell a complaint from a condition.
	for _, group := range a.patterns.symptoms {
		if matchesAny(fullContext, group.res) {
			analysis.MedicalConcerns = appendUnique(analysis.MedicalConcerns, "symptom:"+group.id)
		}
	}

	for _, group := range a.patterns.products {
		if containsAny(fullContext, group.keywords) {
			analysis.ProductsRequested = appendUnique(analysis.ProductsRequested, group.id)
		}
	}

	for _, re := range a.patterns.beginner {
		if re.MatchString(fullContext) {
			analysis.IsBeginner = true
			break
		}
	}

	for _, group := range a.patterns.goals {
		if matchesAny(fullContext, group.res) {
			analysis.GoalType = group.id
			break
		}
	}

	for _, dp := range a.patterns.durations {
		match := dp.re.FindStringSubmatch(fullContext)
		if match == nil {
			continue
		}
		value, err := strconv.Atoi(match[1])
		if err != nil {
			break
		}
		switch dp.unit {
		case "months", "duration":
			analysis.DurationMonths = &value
		case "weeks":
			months := max(1, value/4)
			analysis.DurationMonths = &months
		case "years":
			months := value * 12
			analysis.DurationMonths = &months
		}
		break
	}

	analysis.Complexity = scoreComplexity(analysis)
	analysis.Intent = a.resolveIntent(analysis, messageLower)

	return analysis
}

// detectUnrealisticGoals applies the embedded numeric policy: rapid muscle
// gain is flagged only above 2 kg/month, rapid weight loss above 1 kg/week.
// When the numbers cannot be parsed the bare goal id is still recorded.
func (a *Analyzer) detectUnrealisticGoals(fullContext string) []string {
	var goals []string
	for _, group := range a.patterns.unrealistic {
		for idx, re := range group.res {
			match := re.FindStringSubmatch(fullContext)
			if match == nil {
				continue
			}
			switch group.id {
			case "rapid_muscle":
				kg, months, err := parseTwoInts(match)
				if err != nil {
					goals = appendUnique(goals, group.id)
					break
				}
				if idx == 1 {
					// Second form states the duration first ("2 თვეში 10 კგ").
					kg, months = months, kg
				}
				if float64(kg)/float64(max(months, 1)) > 2 {
					goals = appendUnique(goals, fmt.Sprintf("%s:%dkg/%dmo", group.id, kg, months))
				}
			case "rapid_weight_loss":
				kg, weeks, err := parseTwoInts(match)
				if err != nil {
					goals = appendUnique(goals, group.id)
					break
				}
				if float64(kg)/float64(max(weeks, 1)) > 1 {
					goals = appendUnique(goals, fmt.Sprintf("%s:%dkg/%dwk", group.id, kg, weeks))
				}
			default:
				goals = appendUnique(goals, group.id)
			}
			break
		}
	}
	return goals
}

func scoreComplexity(analysis QueryAnalysis) string {
	score := 0
	if analysis.Budget != nil {
		score++
	}
	if len(analysis.DietaryRestrictions) > 0 {
		score++
	}
	if len(analysis.Exclusions) > 0 {
		score++
	}
	if len(analysis.MythsDetected) > 0 {
		score += 2
	}
	if len(analysis.UnrealisticGoals) > 0 {
		score += 2
	}
	if len(analysis.MedicalConcerns) > 0 {
		score += 2
	}
	if len(analysis.SafetyConcerns) > 0 {
		score += 2
	}
	if len(analysis.ProductsRequested) > 2 {
		score++
	}
	if analysis.IsBeginner && len(analysis.ProductsRequested) > 1 {
		// A beginner asking for many products needs guidance, not a list.
		score++
	}
	if score >= 2 {
		return "complex"
	}
	return "simple"
}

// resolveIntent assigns exactly one intent, first matching rule wins.
// Greeting keywords are only checked against the current message, not the
// carried history.
func (a *Analyzer) resolveIntent(analysis QueryAnalysis, messageLower string) string {
	switch {
	case len(analysis.MedicalConcerns) > 0 || len(analysis.SafetyConcerns) > 0:
		return "medical"
	case len(analysis.MythsDetected) > 0:
		return "myth_question"
	case len(analysis.ProductsRequested) > 0:
		return "product_search"
	case containsAny(messageLower, a.patterns.greetings):
		return "greeting"
	default:
		return "general"
	}
}

func parseTwoInts(match []string) (int, int, error) {
	if len(match) < 3 {
		return 0, 0, fmt.Errorf("expected two capture groups, got %d", len(match)-1)
	}
	first, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, 0, err
	}
	second, err := strconv.Atoi(match[2])
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

func matchesAny(text string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, value string) []string {
	for _, item := range list {
		if item == value {
			return list
		}
	}
	return append(list, value)
}
