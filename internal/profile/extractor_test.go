package profile

import (
	"testing"
)

func TestExtractAge(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    int
		wantOK  bool
	}{
		{name: "verb first", message: "ვარ 30 წლის", want: 30, wantOK: true},
		{name: "verb last", message: "30 წლის ვარ", want: 30, wantOK: true},
		{name: "abbreviated with punctuation", message: "40წ. ვცხოვრობ თბილისში", want: 40, wantOK: true},
		{name: "abbreviated at end", message: "40წ", want: 40, wantOK: true},
		{name: "latin spelling", message: "50 wlis var", want: 50, wantOK: true},
		{name: "below range", message: "9 წლის ვარ", wantOK: false},
		{name: "no age", message: "პროტეინი მინდა", wantOK: false},
	}
	extractor := NewExtractor(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := extractor.Extract(tc.message)
			if !tc.wantOK {
				if result.Age != nil {
					t.Fatalf("expected no age, got %d", *result.Age)
				}
				return
			}
			if result.Age == nil {
				t.Fatalf("expected age %d, got none", tc.want)
			}
			if *result.Age != tc.want {
				t.Fatalf("expected age %d, got %d", tc.want, *result.Age)
			}
			if !result.HasUpdates {
				t.Fatal("expected HasUpdates when age extracted")
			}
		})
	}
}

func TestExtractWeight(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    float64
		wantOK  bool
	}{
		{name: "kg suffix", message: "85 კგ ვიწონი", want: 85, wantOK: true},
		{name: "kilo suffix", message: "ვიწონი 90 კილო", want: 90, wantOK: true},
		{name: "weight keyword", message: "ჩემი წონა არის 95", want: 95, wantOK: true},
		// Without a negation trigger the first mention wins, so a stated
		// goal weight after the current one does not overwrite it.
		{name: "goal weight ignored", message: "80 კგ ვიწონი, მიზანი 75 კგ", want: 80, wantOK: true},
		{name: "implausible", message: "ვიწონი 400", wantOK: false},
		{name: "no weight", message: "გამარჯობა", wantOK: false},
	}
	extractor := NewExtractor(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := extractor.Extract(tc.message)
			if !tc.wantOK {
				if result.Weight != nil {
					t.Fatalf("expected no weight, got %v", *result.Weight)
				}
				return
			}
			if result.Weight == nil {
				t.Fatalf("expected weight %v, got none", tc.want)
			}
			if *result.Weight != tc.want {
				t.Fatalf("expected weight %v, got %v", tc.want, *result.Weight)
			}
		})
	}
}

func TestExtractWeightNegationTakesLastMention(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    float64
	}{
		{name: "correction after no-wait", message: "100 კგ კი არა, 85 კგ ვარ", want: 85},
		{name: "correction in kilos", message: "90 კილო კი არ ვარ, 85 კილო ვარ", want: 85},
	}
	extractor := NewExtractor(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := extractor.Extract(tc.message)
			if result.Weight == nil {
				t.Fatalf("expected weight %v, got none", tc.want)
			}
			if *result.Weight != tc.want {
				t.Fatalf("expected corrected weight %v, got %v", tc.want, *result.Weight)
			}
		})
	}
}

func TestExtractHeight(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    float64
		wantOK  bool
	}{
		{name: "sm suffix", message: "180 სმ სიმაღლის ვარ", want: 180, wantOK: true},
		{name: "height keyword", message: "სიმაღლე 175 მაქვს", want: 175, wantOK: true},
		{name: "latin spelling", message: "chemi simaghle 178 santimetri", want: 178, wantOK: true},
		{name: "implausible", message: "330 სმ", wantOK: false},
	}
	extractor := NewExtractor(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := extractor.Extract(tc.message)
			if !tc.wantOK {
				if result.Height != nil {
					t.Fatalf("expected no height, got %v", *result.Height)
				}
				return
			}
			if result.Height == nil {
				t.Fatalf("expected height %v, got none", tc.want)
			}
			if *result.Height != tc.want {
				t.Fatalf("expected height %v, got %v", tc.want, *result.Height)
			}
		})
	}
}

func TestExtractOccupationSingleCandidate(t *testing.T) {
	cases := []struct {
		name         string
		message      string
		wantKeyword  string
		wantCategory string
	}{
		{name: "bank", message: "ბანკში ვმუშაობ", wantKeyword: "ბანკ", wantCategory: "sedentary"},
		{name: "cook", message: "მზარეული ვარ", wantKeyword: "მზარეულ", wantCategory: "light"},
		{name: "builder", message: "მშენებლად ვმუშაობ", wantKeyword: "მშენებ", wantCategory: "heavy"},
		{name: "latin spelling", message: "bankshi vmushaobi", wantKeyword: "ბანკ", wantCategory: "sedentary"},
	}
	extractor := NewExtractor(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := extractor.Extract(tc.message)
			if result.Occupation != tc.wantKeyword {
				t.Fatalf("expected occupation %q, got %q", tc.wantKeyword, result.Occupation)
			}
			if result.OccupationCategory != tc.wantCategory {
				t.Fatalf("expected category %q, got %q", tc.wantCategory, result.OccupationCategory)
			}
		})
	}
}

func TestExtractOccupationLastMentionWinsWithoutNegation(t *testing.T) {
	extractor := NewExtractor(0)
	result := extractor.Extract("დილით ოფისში ვარ, საღამოს კურიერად ვმუშაობ")
	if result.OccupationCategory != "active" {
		t.Fatalf("expected last mention to win with category active, got %q", result.OccupationCategory)
	}
	if result.Occupation != "კურიერ" {
		t.Fatalf("expected occupation კურიერ, got %q", result.Occupation)
	}
}

func TestExtractOccupationNegationDropsOldJob(t *testing.T) {
	// Both mentions sit inside the default window around "აღარ", so the
	// filter empties and the last mention still wins.
	extractor := NewExtractor(0)
	result := extractor.Extract("ბანკში აღარ ვმუშაობ, მზარეული ვარ")
	if result.OccupationCategory != "light" {
		t.Fatalf("expected category light after negation, got %q", result.OccupationCategory)
	}
	if result.Occupation != "მზარეულ" {
		t.Fatalf("expected occupation მზარეულ, got %q", result.Occupation)
	}
}

func TestExtractOccupationNegationWindowFiltersNearbyCandidate(t *testing.T) {
	// The old job sits right after the trigger, the current one well
	// outside the window, so the first surviving mention is returned.
	extractor := NewExtractor(0)
	message := "ადრე ვმუშაობდი ბანკში მაგრამ ახლა უკვე რამდენიმე წელია სხვა საქმეს ვაკეთებ, კერძოდ მზარეული ვარ რესტორანში"
	result := extractor.Extract(message)
	if result.OccupationCategory != "light" {
		t.Fatalf("expected category light, got %q", result.OccupationCategory)
	}
	if result.Occupation != "მზარეულ" {
		t.Fatalf("expected occupation მზარეულ, got %q", result.Occupation)
	}
}

func TestExtractOccupationWindowIsConfigurable(t *testing.T) {
	// With a tiny window both candidates survive the negation filter and
	// the earliest mention wins instead of the latest.
	extractor := NewExtractor(5)
	result := extractor.Extract("ბანკში აღარ ვმუშაობ, მზარეული ვარ")
	if result.OccupationCategory != "sedentary" {
		t.Fatalf("expected category sedentary with narrow window, got %q", result.OccupationCategory)
	}
	if result.Occupation != "ბანკ" {
		t.Fatalf("expected occupation ბანკ, got %q", result.Occupation)
	}
}

func TestExtractAgeAndOccupationTogether(t *testing.T) {
	extractor := NewExtractor(0)
	result := extractor.Extract("40 წლის ვარ და ბანკში ვმუშაობ")
	if result.Age == nil || *result.Age != 40 {
		t.Fatalf("expected age 40, got %v", result.Age)
	}
	if result.OccupationCategory != "sedentary" {
		t.Fatalf("expected category sedentary, got %q", result.OccupationCategory)
	}
	if !result.HasUpdates {
		t.Fatal("expected HasUpdates")
	}
}

func TestExtractPotentialFacts(t *testing.T) {
	extractor := NewExtractor(0)

	result := extractor.Extract("მაქვს უძილობის პრობლემა ხშირად")
	if len(result.PotentialFacts) != 1 {
		t.Fatalf("expected 1 fact, got %d: %v", len(result.PotentialFacts), result.PotentialFacts)
	}
	if result.PotentialFacts[0] != "უძილობის პრობლემა ხშირად" {
		t.Fatalf("unexpected fact %q", result.PotentialFacts[0])
	}
	if !result.HasUpdates {
		t.Fatal("expected HasUpdates when facts extracted")
	}

	// Captures shorter than the storable minimum are dropped.
	result = extractor.Extract("მტკივა მუხლი")
	if len(result.PotentialFacts) != 0 {
		t.Fatalf("expected short capture to be dropped, got %v", result.PotentialFacts)
	}
	if result.HasUpdates {
		t.Fatal("expected no updates for a short capture")
	}
}

func TestExtractFactPatternsOverlap(t *testing.T) {
	// The plain and the negated preference patterns both hit; the store
	// dedups identical facts later.
	extractor := NewExtractor(0)
	result := extractor.Extract("არ უყვარს ბროკოლი საერთოდ")
	if len(result.PotentialFacts) != 2 {
		t.Fatalf("expected 2 overlapping facts, got %d: %v", len(result.PotentialFacts), result.PotentialFacts)
	}
	if result.PotentialFacts[0] != "ბროკოლი საერთოდ" || result.PotentialFacts[1] != "ბროკოლი საერთოდ" {
		t.Fatalf("unexpected facts %v", result.PotentialFacts)
	}
}

func TestExtractSensitiveKeywordsDoNotCountAsUpdates(t *testing.T) {
	extractor := NewExtractor(0)

	result := extractor.Extract("დიაბეტი მაქვს")
	if len(result.Confirmations) != 1 {
		t.Fatalf("expected 1 confirmation, got %d", len(result.Confirmations))
	}
	want := "დავიმახსოვრე ინფორმაცია: \"დიაბეტ\" - ამის გათვალისწინებით მოგცემთ რჩევებს."
	if result.Confirmations[0] != want {
		t.Fatalf("expected confirmation %q, got %q", want, result.Confirmations[0])
	}
	if result.HasUpdates {
		t.Fatal("sensitive keywords alone must not set HasUpdates")
	}

	result = extractor.Extract("ორსულად ვარ და გული მაწუხებს")
	if len(result.Confirmations) != 2 {
		t.Fatalf("expected 2 confirmations, got %d", len(result.Confirmations))
	}
}

func TestExtractEmptyAndNoiseMessages(t *testing.T) {
	cases := []struct {
		name    string
		message string
	}{
		{name: "empty", message: ""},
		{name: "emoji only", message: "👋 🏋️ 💪"},
		{name: "greeting", message: "გამარჯობა, როგორ ხარ?"},
	}
	extractor := NewExtractor(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := extractor.Extract(tc.message)
			if result.HasUpdates {
				t.Fatalf("expected no updates, got %+v", result)
			}
			if result.Age != nil || result.Weight != nil || result.Height != nil {
				t.Fatalf("expected empty numeric fields, got %+v", result)
			}
		})
	}
}

func TestApplyTransliteration(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "age phrase", in: "50 WLIS VAR", want: "50 წლის ვარ"},
		{name: "weight phrase", in: "85 kg viwoni", want: "85 კგ ვიწონი"},
		// "santimetri" must be rewritten as a whole before "santi" and
		// "sm" get a chance to chew on its fragments.
		{name: "longest key first", in: "chemi simaghle 180 santimetri", want: "chemi სიმაღლე 180 სანტიმეტრი"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := applyTransliteration(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestHasNegation(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{message: "არ ვარ 20 წლის", want: true},
		{message: "20 წლის კი არა, 30-ის", want: true},
		{message: "ბანკში აღარ ვმუშაობ", want: true},
		{message: "ადრე ვმუშაობდი ოფისში", want: true},
		{message: "ვარ 30 წლის", want: false},
	}
	for _, tc := range cases {
		if got := hasNegation(tc.message); got != tc.want {
			t.Errorf("hasNegation(%q) = %v, expected %v", tc.message, got, tc.want)
		}
	}
}

func TestHasContextReference(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{message: "ჩემი შვილია 10 წლის", want: true},
		{message: "ძმა 25 წლის არის", want: true},
		{message: "ვარ 30 წლის", want: false},
	}
	for _, tc := range cases {
		if got := hasContextReference(tc.message); got != tc.want {
			t.Errorf("hasContextReference(%q) = %v, expected %v", tc.message, got, tc.want)
		}
	}
}

func TestIsLongTermFact(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    bool
	}{
		{name: "temporal wording", message: "დღეს ცუდად ვარ", want: false},
		{name: "habitual wording", message: "ყოველთვის მშია ვარჯიშის შემდეგ", want: true},
		{name: "short neutral", message: "კარგი", want: false},
		{name: "long neutral", message: "მაქვს ლაქტოზის აუტანლობა, შაქარს ვერიდები ბოლო პერიოდში", want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isLongTermFact(tc.message); got != tc.want {
				t.Fatalf("isLongTermFact(%q) = %v, expected %v", tc.message, got, tc.want)
			}
		})
	}
}

func TestGenerateConfirmation(t *testing.T) {
	age := 40
	weight := 85.5
	height := 180.0

	full := &ExtractionResult{
		Age:        &age,
		Weight:     &weight,
		Height:     &height,
		Occupation: "ბანკ",
	}
	want := "ინფორმაცია დავიმახსოვრე: ასაკი: 40 წელი, წონა: 85.5 კგ, სიმაღლე: 180 სმ, პროფესია: ბანკ"
	if got := GenerateConfirmation(full); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	sensitiveOnly := &ExtractionResult{Confirmations: []string{"დავიმახსოვრე ინფორმაცია"}}
	if got := GenerateConfirmation(sensitiveOnly); got != "დავიმახსოვრე ინფორმაცია" {
		t.Fatalf("expected sensitive confirmation passthrough, got %q", got)
	}

	if got := GenerateConfirmation(&ExtractionResult{}); got != "" {
		t.Fatalf("expected empty confirmation, got %q", got)
	}
}
