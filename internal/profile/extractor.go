package profile

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ExtractionResult is what a single message stated about the user themselves.
// Numeric fields are nil when the message said nothing plausible about them.
type ExtractionResult struct {
	Age                *int
	Weight             *float64
	Height             *float64
	Occupation         string
	OccupationCategory string
	PotentialFacts     []string
	Confirmations      []string
	HasUpdates         bool
}

// Plausibility ranges. A numeric match outside its range is discarded
// silently so that distances, prices and years do not leak into the profile.
const (
	ageMin    = 10
	ageMax    = 120
	weightMin = 30
	weightMax = 300
	heightMin = 100
	heightMax = 250

	minFactRunes = 10

	defaultNegationWindow = 30
)

// Latin phonetic spellings rewritten to Georgian before pattern matching,
// ordered longest key first so longer spellings win over their prefixes
// ("wlis" before "wl", "santimetri" before "santi").
var transliterations = []struct {
	latin    string
	georgian string
}{
	{"programisti", "პროგრამისტი"},
	{"santimetri", "სანტიმეტრი"},
	{"mshenebeli", "მშენებელი"},
	{"vmushaobi", "ვმუშაობ"},
	{"vmushaoб", "ვმუშაობ"}, // mixed-keyboard spelling, trailing Cyrillic б
	{"simaghle", "სიმაღლე"},
	{"mzareuli", "მზარეული"},
	{"mdzgholi", "მძღოლი"},
	{"bankshi", "ბანკში"},
	{"ofisshi", "ოფისში"},
	{"viwoni", "ვიწონი"},
	{"santi", "სანტი"},
	{"maqvs", "მაქვს"},
	{"minda", "მინდა"},
	{"wlis", "წლის"},
	{"weli", "წელი"},
	{"kilo", "კილო"},
	{"wona", "წონა"},
	{"var", "ვარ"},
	{"wl", "წ"},
	{"kg", "კგ"},
	{"sm", "სმ"},
}

// Numeric field patterns. Age and height take the first plausible match in
// table order; weight collects every match across the whole table. \w in Go
// is ASCII-only, so the boundary class after წ is spelled out.
var (
	agePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{1,2})\s*წლის`),                  // "40 წლის"
		regexp.MustCompile(`(\d{1,2})\s*წ(?:[^\p{L}\p{N}_]|$)`), // "40წ."
		regexp.MustCompile(`ვარ\s*(\d{1,2})\s*წლის`),            // "ვარ 40 წლის"
		regexp.MustCompile(`(\d{1,2})\s*წლის\s*ვარ`),            // "40 წლის ვარ"
	}

	weightPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{2,3})\s*კგ`),     // "85 კგ"
		regexp.MustCompile(`(\d{2,3})\s*კილო`),   // "85 კილო"
		regexp.MustCompile(`ვიწონი\s*(\d{2,3})`), // "ვიწონი 85"
		regexp.MustCompile(`წონა.*?(\d{2,3})`),   // "წონა 85"
	}

	heightPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{3})\s*სმ`),      // "180 სმ"
		regexp.MustCompile(`(\d{3})\s*სანტი`),   // "180 სანტი"
		regexp.MustCompile(`სიმაღლე.*?(\d{3})`), // "სიმაღლე 180"
	}

	factPatterns = []*regexp.Regexp{
		regexp.MustCompile(`მაქვს\s+(.{10,})`),        // "I have ..."
		regexp.MustCompile(`მტკივა\s+(.{5,})`),        // "... hurts"
		regexp.MustCompile(`არ\s+შემიძლია\s+(.{5,})`), // "I can't ..."
		regexp.MustCompile(`პრობლემა.*?(.{10,})`),     // "problem ..."
		regexp.MustCompile(`უყვარს\s+(.{5,})`),        // "loves ..."
		regexp.MustCompile(`არ\s+უყვარს\s+(.{5,})`),   // "hates ..."
	}
)

// occupationKeywords maps keyword stems to an activity category. Slice, not
// map: collection order is the tie-break when two hits share a position.
var occupationKeywords = []struct {
	category string
	keywords []string
}{
	{"sedentary", []string{
		"ბანკ", "ოფის", "კომპიუტერ", "პროგრამ", "ბუღალტ",
		"იურისტ", "ადვოკატ", "მენეჯერ", "სექრეტარ", "დიზაინერ",
		"it-", "აითი", "დეველოპერ", "ინჟინერ",
	}},
	{"light", []string{
		"მაღაზია", "გამყიდველ", "მასწავლებ", "ექიმ", "ექთან",
		"მზარეულ", "შეფ", "მცხობელ",
	}},
	{"active", []string{
		"მძღოლ", "კურიერ", "ოფიცერ", "პოლიცი", "მწვრთნელ",
	}},
	{"heavy", []string{
		// "მუშა" is deliberately absent: it false-matches "ვმუშაობ".
		"მშენებ", "ფერმ", "მეხანძრ", "სპორტსმენ",
		"მეტყევე", "მეღვინე", "მჭედელ", "ტვირთმზიდ",
	}},
}

// sensitiveKeywords flag disclosures that get an explicit acknowledgement:
// pregnancy, diabetes, heart conditions, allergies, injuries.
var sensitiveKeywords = []string{
	"ორსულ", "ფეხმძიმ",
	"დიაბეტ", "შაქრიან",
	"გული", "არითმია",
	"ალერგია",
	"ტრავმა", "მოტეხილი", "დაზიანებ",
}

// negationTriggers mark statements that retract or supersede a value.
var negationTriggers = []string{
	"არ ვარ",   // "I am not"
	"კი არა",   // "not X, but"
	"აღარ",     // "no longer"
	"არა ვარ",  // alternative negation
	"დავკარგე", // "I lost"
	"წავედი",   // "I left"
	"აღარა",    // short negation form
	"ვიყავი",   // "I was"
	"ადრე",     // "previously"
}

// contextTriggers mark statements about somebody other than the speaker.
var contextTriggers = []string{
	"შვილ",  // child
	"ძმა",   // brother
	"და",    // sister; also the conjunction "and", context needed
	"მშობ",  // parent
	"მეგობ", // friend
}

// Extractor pulls structured profile data (age, weight, height, occupation)
// and candidate long-term facts out of a single chat message.
type Extractor struct {
	negationWindow int
}

// NewExtractor returns an extractor whose occupation conflict resolution
// drops candidates within negationWindow runes of a negation trigger.
// Values below 1 fall back to the default of 30, calibrated for Georgian
// phrase lengths.
func NewExtractor(negationWindow int) *Extractor {
	if negationWindow < 1 {
		negationWindow = defaultNegationWindow
	}
	return &Extractor{negationWindow: negationWindow}
}

// Extract runs every extraction pass over one message. Structured fields
// match against the transliterated, lower-cased text; facts and sensitive
// keywords match against the original so stored facts keep the user's
// literal wording.
func (e *Extractor) Extract(message string) *ExtractionResult {
	result := &ExtractionResult{}

	processed := applyTransliteration(message)

	if age, ok := e.extractAge(processed); ok {
		result.Age = &age
		result.HasUpdates = true
	}
	if weight, ok := e.extractWeight(processed); ok {
		result.Weight = &weight
		result.HasUpdates = true
	}
	if height, ok := e.extractHeight(processed); ok {
		result.Height = &height
		result.HasUpdates = true
	}
	if occupation, category, ok := e.extractOccupation(processed); ok {
		result.Occupation = occupation
		result.OccupationCategory = category
		result.HasUpdates = true
	}
	if facts := extractPotentialFacts(message); len(facts) > 0 {
		result.PotentialFacts = facts
		result.HasUpdates = true
	}

	// Sensitive disclosures alone never count as a profile update.
	result.Confirmations = checkSensitive(message)

	return result
}

func (e *Extractor) extractAge(message string) (int, bool) {
	for _, pattern := range agePatterns {
		m := pattern.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		age, err := strconv.Atoi(m[1])
		if err != nil || age < ageMin || age > ageMax {
			continue
		}
		return age, true
	}
	return 0, false
}

type valueAt struct {
	value    float64
	position int
}

// extractWeight collects every plausible weight mention. Without negation
// the first collected match wins; with a negation trigger and two or more
// candidates the positionally last one wins, reading it as the corrected
// value that supersedes the negated one ("90 კგ კი არა, 85 კგ" means 85).
func (e *Extractor) extractWeight(message string) (float64, bool) {
	var candidates []valueAt
	for _, pattern := range weightPatterns {
		for _, loc := range pattern.FindAllStringSubmatchIndex(message, -1) {
			value, err := strconv.ParseFloat(message[loc[2]:loc[3]], 64)
			if err != nil || value < weightMin || value > weightMax {
				continue
			}
			candidates = append(candidates, valueAt{
				value:    value,
				position: utf8.RuneCountInString(message[:loc[0]]),
			})
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}

	if hasNegation(message) && len(candidates) > 1 {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].position < candidates[j].position
		})
		return candidates[len(candidates)-1].value, true
	}

	return candidates[0].value, true
}

func (e *Extractor) extractHeight(message string) (float64, bool) {
	for _, pattern := range heightPatterns {
		m := pattern.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		height, err := strconv.ParseFloat(m[1], 64)
		if err != nil || height < heightMin || height > heightMax {
			continue
		}
		return height, true
	}
	return 0, false
}

type occupationCandidate struct {
	keyword  string
	position int
	category string
}

// extractOccupation resolves conflicting job mentions positionally:
//
//  1. Collect the first occurrence of every keyword with its rune position.
//  2. Zero candidates means no occupation; exactly one is returned directly.
//  3. Several candidates with a negation trigger: take the earliest trigger
//     position, drop candidates inside the negation window around it, and
//     return the earliest survivor ("ბანკში აღარ ვმუშაობ, ..." drops ბანკ).
//  4. Otherwise, and when the window filtered out everything, the candidate
//     mentioned last wins.
func (e *Extractor) extractOccupation(message string) (occupation, category string, ok bool) {
	lower := strings.ToLower(message)

	var candidates []occupationCandidate
	for _, group := range occupationKeywords {
		for _, keyword := range group.keywords {
			pos := runeIndex(lower, keyword)
			if pos < 0 {
				continue
			}
			candidates = append(candidates, occupationCandidate{
				keyword:  keyword,
				position: pos,
				category: group.category,
			})
		}
	}
	if len(candidates) == 0 {
		return "", "", false
	}
	if len(candidates) == 1 {
		return candidates[0].keyword, candidates[0].category, true
	}

	if hasNegation(message) {
		negationPos := -1
		for _, trigger := range negationTriggers {
			pos := runeIndex(lower, trigger)
			if pos >= 0 && (negationPos == -1 || pos < negationPos) {
				negationPos = pos
			}
		}

		var valid []occupationCandidate
		for _, cand := range candidates {
			if abs(cand.position-negationPos) > e.negationWindow {
				valid = append(valid, cand)
			}
		}
		if len(valid) > 0 {
			sort.SliceStable(valid, func(i, j int) bool {
				return valid[i].position < valid[j].position
			})
			return valid[0].keyword, valid[0].category, true
		}
	}

	last := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.position > last.position {
			last = cand
		}
	}
	return last.keyword, last.category, true
}

func extractPotentialFacts(message string) []string {
	var facts []string
	for _, pattern := range factPatterns {
		for _, m := range pattern.FindAllStringSubmatch(message, -1) {
			if utf8.RuneCountInString(m[1]) < minFactRunes {
				continue
			}
			facts = append(facts, strings.TrimSpace(m[1]))
		}
	}
	return facts
}

func checkSensitive(message string) []string {
	var confirmations []string
	lower := strings.ToLower(message)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			confirmations = append(confirmations, fmt.Sprintf(
				"დავიმახსოვრე ინფორმაცია: \"%s\" - ამის გათვალისწინებით მოგცემთ რჩევებს.", keyword))
		}
	}
	return confirmations
}

// GenerateConfirmation renders the Georgian summary of what was saved, for
// echoing back to the user after a manual or extracted profile update.
// Returns "" when there is nothing to confirm.
func GenerateConfirmation(result *ExtractionResult) string {
	var parts []string
	if result.Age != nil {
		parts = append(parts, fmt.Sprintf("ასაკი: %d წელი", *result.Age))
	}
	if result.Weight != nil {
		parts = append(parts, fmt.Sprintf("წონა: %s კგ", formatNumber(*result.Weight)))
	}
	if result.Height != nil {
		parts = append(parts, fmt.Sprintf("სიმაღლე: %s სმ", formatNumber(*result.Height)))
	}
	if result.Occupation != "" {
		parts = append(parts, "პროფესია: "+result.Occupation)
	}
	if len(parts) > 0 {
		return "ინფორმაცია დავიმახსოვრე: " + strings.Join(parts, ", ")
	}
	if len(result.Confirmations) > 0 {
		return result.Confirmations[0]
	}
	return ""
}

// applyTransliteration rewrites Latin phonetic spellings to Georgian so
// the pattern tables also match messages typed without a Georgian keyboard,
// e.g. "50 wlis var" becomes "50 წლის ვარ". Lower-cases as a side effect.
func applyTransliteration(text string) string {
	result := strings.ToLower(text)
	for _, tr := range transliterations {
		result = strings.ReplaceAll(result, tr.latin, tr.georgian)
	}
	return result
}

// hasNegation reports whether the message retracts or supersedes a value,
// which switches weight to last-match-wins and triggers verification of
// extracted age and weight.
func hasNegation(text string) bool {
	lower := strings.ToLower(text)
	for _, trigger := range negationTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// hasContextReference reports whether the message talks about a third party
// (child, sibling, parent, friend) whose data must not land in the
// speaker's profile.
func hasContextReference(text string) bool {
	lower := strings.ToLower(text)
	for _, trigger := range contextTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// isLongTermFact is a heuristic for whether a statement is durable enough
// to store: today/right-now wording rejects it, habitual wording accepts
// it, and everything else falls back to a length check.
func isLongTermFact(message string) bool {
	lower := strings.ToLower(message)

	temporary := []string{
		"დღეს", "ახლა", "ეხლა", "ამ წუთას", "ეს კვირა",
		"გუშინ", "ზეგ", "ხვალ",
	}
	for _, keyword := range temporary {
		if strings.Contains(lower, keyword) {
			return false
		}
	}

	longTerm := []string{
		"ყოველთვის", "ხშირად", "ჩვეულებრივ", "წლებია",
		"მუდმივად", "ჩემთვის", "მიყვარს", "არ მიყვარს",
	}
	for _, keyword := range longTerm {
		if strings.Contains(lower, keyword) {
			return true
		}
	}

	return utf8.RuneCountInString(message) > 30
}

// runeIndex is strings.Index measured in runes, so distance arithmetic
// means the same thing for Georgian (three bytes per letter) and Latin.
func runeIndex(s, substr string) int {
	idx := strings.Index(s, substr)
	if idx < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:idx])
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
