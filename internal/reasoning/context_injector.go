package reasoning

import (
	"fmt"
	"strconv"
	"strings"
)

// Georgian response tables rendered into the prompt context. The assistant
// model receives these pre-written corrections so it does not have to
// derive them per request.
var mythResponses = map[string]string{
	"protein_chemical": "პროტეინი არის ბუნებრივი ცილა რძიდან/მცენარეებიდან - იგივე რაც ხორცში ან კვერცხში. არანაირი ქიმია.",
	"soy_estrogen":     "ფიტოესტროგენი ≠ ადამიანის ესტროგენი. 100+ კვლევა ადასტურებს - სოიო არ ცვლის ტესტოსტერონს კაცებში.",
	"creatine_steroid": "კრეატინი ბუნებრივად გვხვდება ხორცში. WADA დამტკიცებული, არ არის დოპინგი და სრულიად ლეგალურია.",
	"protein_kidney":   "ჯანმრთელ ადამიანში პროტეინი უსაფრთხოა. თირკმელების პრობლემა მხოლოდ უკვე არსებული დაავადებისას.",
}

var goalCorrections = map[string]string{
	"rapid_muscle":      "ბუნებრივად შესაძლებელია თვეში 0.5-1კგ სუფთა კუნთის მომატება. {kg}კგ-ისთვის საჭიროა ~{months} თვე.",
	"impossible_price":  "100% ცილა ფიზიკურად შეუძლებელია - საუკეთესო იზოლატებიც 90-95%-ია. ხარისხიანი პროტეინი 80₾-დან იწყება.",
	"rapid_weight_loss": "ჯანსაღი წონის დაკლება კვირაში 0.5-1კგ-ია. სწრაფი დაკლება კუნთის დაკარგვას იწვევს.",
}

var medicalWarnings = map[string]string{
	"ssri_interaction": "SSRI/ანტიდეპრესანტი + კოფეინიანი პრე-ვორკაუთი = სეროტონინის სინდრომის რისკი. ექიმთან კონსულტაცია სავალდებულოა!",
	"kidney_concern":   "თირკმელების პრობლემისას კრეატინის მიღება ექიმის რეკომენდაციით. ჯანმრთელ ადამიანში უსაფრთხოა.",
	"liver_concern":    "ღვიძლის პრობლემისას ზოგიერთი დანამატი შეზღუდულია. ექიმთან კონსულტაცია რეკომენდებულია.",
	"heart_concern":    "გულის პრობლემისას კოფეინიანი პროდუქტები (პრე-ვორკაუთი) კონტრინდიცირებულია!",
	"blood_pressure":   "მაღალი წნევისას კოფეინიანი პროდუქტები სიფრთხილით. ექიმთან კონსულტაცია.",
	"diabetes":         "დიაბეტისას უშაქრო პროდუქტები უპირატესია. გეინერები და შაქრიანი პროდუქტები არ არის რეკომენდებული.",
	"pregnancy":        "ორსულობისას/ძუძუთი კვებისას: fat burners, თერმოგენიკები, კოფეინიანი პრე-ვორკაუთები აკრძალულია!",
	"thyroid":          "ფარისებრი ჯირკვლის პრობლემისას იოდიანი დანამატები ექიმის კონსულტაციით.",
}

var safetyResponses = map[string]string{
	"caffeine_overuse":     "კოფეინის tolerance ნიშანია რომ ორგანიზმს შესვენება სჭირდება. 1-2 კვირით შეაჩერე პრე-ვორკაუთი.",
	"eating_disorder_risk": "ცხიმისმწველი საკვების გარეშე არ მუშაობს! ჯერ კალორიული დეფიციტი და სწორი კვება, შემდეგ დანამატები.",
	"overdose_risk":        "ორმაგი დოზა არ ნიშნავს ორმაგ ეფექტს - მხოლოდ გვერდით ეფექტებს ზრდის.",
}

var symptomExplanations = map[string]string{
	"symptom:paresthesia":        "სახის/კანის ჩხვლეტა პრე-ვორკაუთის შემდეგ = ბეტა-ალანინის პარესთეზია. ეს ნორმალურია და უვნებელია!",
	"symptom:general_discomfort": "თუ ცუდად ხარ დანამატის მიღების შემდეგ, შეაჩერე მოხმარება და ექიმს მიმართე.",
	"symptom:digestive":          "საჭმლის მონელების პრობლემა? სცადე დანამატი საკვებთან ერთად ან დოზა შეამცირე.",
}

const beginnerWarning = `დამწყებისთვის ბევრი დანამატი ერთდროულად არ არის საჭირო!
დაიწყე მხოლოდ: პროტეინი + (ოპციურად) მულტივიტამინი.
3-6 თვის შემდეგ შეგიძლია კრეატინის დამატება.`

const genericMedicalAdvice = "ექიმთან კონსულტაცია რეკომენდებულია"

var goalDisplayNames = map[string]string{
	"weight_loss": "წონის დაკლება",
	"muscle_gain": "კუნთის მომატება",
	"maintenance": "შენარჩუნება",
	"endurance":   "გამძლეობა",
	"recovery":    "აღდგენა",
}

// ProfileView is the subset of a stored user profile rendered into the
// prompt context. Zero values mean the field is unknown.
type ProfileView struct {
	Age                int
	Weight             float64
	Height             float64
	OccupationCategory string
}

// InjectContext prepends structured [USER_PROFILE] and [ANALYSIS] blocks to
// the user's message. When neither block has content the original message
// passes through unmodified.
func InjectContext(originalMessage string, analysis QueryAnalysis, searchResult *ConstrainedSearchResult, profile *ProfileView) string {
	parts := make([]string, 0, 16)
	hasBudget := analysis.Budget != nil && *analysis.Budget > 0

	if hasBudget {
		line := fmt.Sprintf("💰 ბიუჯეტი: %s₾", formatAmount(*analysis.Budget))
		if searchResult != nil {
			switch searchResult.BudgetStatus {
			case BudgetStatusUnder:
				line += fmt.Sprintf(" ✓ ჯამი %.0f₾ ≤ %s₾", searchResult.TotalPrice, formatAmount(*analysis.Budget))
			case BudgetStatusUnderAfterDrop:
				line += " ⚠️ ბიუჯეტში ჩასატევად გამოვტოვე: " + strings.Join(searchResult.DroppedProducts, ", ")
			case BudgetStatusOver:
				line += fmt.Sprintf(" ✗ ჯამი %.0f₾ > %s₾", searchResult.TotalPrice, formatAmount(*analysis.Budget))
			}
		}
		parts = append(parts, line)
	}

	if len(analysis.DietaryRestrictions) > 0 {
		parts = append(parts, "🥗 დიეტა: "+strings.Join(analysis.DietaryRestrictions, ", "))
	}
	if len(analysis.Exclusions) > 0 {
		parts = append(parts, "🚫 გამორიცხულია: "+strings.Join(analysis.Exclusions, ", "))
	}
	if analysis.DurationMonths != nil && *analysis.DurationMonths > 0 {
		parts = append(parts, fmt.Sprintf("📅 მარაგი: %d თვე", *analysis.DurationMonths))
	}
	if analysis.GoalType != "" {
		name, ok := goalDisplayNames[analysis.GoalType]
		if !ok {
			name = analysis.GoalType
		}
		parts = append(parts, "🎯 მიზანი: "+name)
	}

	if len(analysis.MythsDetected) > 0 {
		parts = append(parts, "🔬 მითები გასაქარწყლებელი:")
		for _, myth := range analysis.MythsDetected {
			if response, ok := mythResponses[myth]; ok {
				parts = append(parts, "  • "+response)
			}
		}
	}

	if len(analysis.UnrealisticGoals) > 0 {
		parts = append(parts, "⚠️ რეალისტური კორექცია საჭირო:")
		for _, goal := range analysis.UnrealisticGoals {
			if correction, ok := renderGoalCorrection(goal); ok {
				parts = append(parts, "  • "+correction)
			}
		}
	}

	if len(analysis.MedicalConcerns) > 0 {
		parts = append(parts, "🏥 სამედიცინო გაფრთხილება:")
		for _, concern := range analysis.MedicalConcerns {
			switch {
			case medicalWarnings[concern] != "":
				parts = append(parts, "  • "+medicalWarnings[concern])
			case symptomExplanations[concern] != "":
				parts = append(parts, "  • "+symptomExplanations[concern])
			default:
				parts = append(parts, "  • "+genericMedicalAdvice)
			}
		}
	}

	if len(analysis.SafetyConcerns) > 0 {
		parts = append(parts, "⚠️ უსაფრთხოების გაფრთხილება:")
		for _, concern := range analysis.SafetyConcerns {
			if response, ok := safetyResponses[concern]; ok {
				parts = append(parts, "  • "+response)
			}
		}
	}

	beginnerAdvised := false
	if analysis.IsBeginner && len(analysis.ProductsRequested) > 2 {
		parts = append(parts, "👶 ახალბედას რჩევა:\n"+beginnerWarning)
		beginnerAdvised = true
	}
	if searchResult != nil && !beginnerAdvised && containsString(searchResult.Warnings, WarningBeginnerOverload) {
		parts = append(parts, "👶 ახალბედას რჩევა:\n"+beginnerWarning)
	}

	if searchResult != nil && len(searchResult.Products) > 0 {
		parts = append(parts, fmt.Sprintf("📦 ნაპოვნი პროდუქტები (%d):", len(searchResult.Products)))
		for _, p := range searchResult.Products {
			parts = append(parts, fmt.Sprintf("  • %s - %s₾ (%s)", p.Product.Name, formatAmount(p.Product.Price), p.Category))
		}
		if searchResult.TotalPrice > 0 {
			parts = append(parts, fmt.Sprintf("  💵 ჯამი: %.0f₾", searchResult.TotalPrice))
		}
	}

	profileBlock := buildProfileBlock(profile)
	if len(parts) > 0 {
		contextBlock := "[ANALYSIS]\n" + strings.Join(parts, "\n") + "\n[/ANALYSIS]\n\n"
		return profileBlock + contextBlock + originalMessage
	}
	if profileBlock != "" {
		return profileBlock + originalMessage
	}
	return originalMessage
}

// renderGoalCorrection resolves the correction template for an unrealistic
// goal tag like "rapid_muscle:20kg/2mo". When the tag carries a parseable kg
// figure, the template's placeholders get a realistic timeline spelled out.
func renderGoalCorrection(tag string) (string, bool) {
	goalType, params, hasParams := strings.Cut(tag, ":")
	correction, ok := goalCorrections[goalType]
	if !ok {
		return "", false
	}
	if hasParams && strings.Contains(params, "kg") {
		kgText, _, _ := strings.Cut(params, "kg")
		if kg, err := strconv.Atoi(kgText); err == nil {
			months := max(kg, kg*2)
			correction = strings.ReplaceAll(correction, "{kg}", strconv.Itoa(kg))
			correction = strings.ReplaceAll(correction, "{months}", fmt.Sprintf("%d-%d", kg, months))
		}
	}
	return correction, true
}

func buildProfileBlock(profile *ProfileView) string {
	if profile == nil {
		return ""
	}
	parts := make([]string, 0, 4)
	if profile.Age > 0 {
		parts = append(parts, fmt.Sprintf("👤 ასაკი: %d წ", profile.Age))
	}
	if profile.Weight > 0 {
		parts = append(parts, fmt.Sprintf("⚖️ წონა: %s კგ", formatAmount(profile.Weight)))
	}
	if profile.Height > 0 {
		parts = append(parts, fmt.Sprintf("📏 სიმაღლე: %s სმ", formatAmount(profile.Height)))
	}
	if profile.OccupationCategory != "" {
		parts = append(parts, "💼 საქმიანობა: "+profile.OccupationCategory)
	}
	if len(parts) == 0 {
		return ""
	}
	return "[USER_PROFILE]\n" + strings.Join(parts, "\n") + "\n[/USER_PROFILE]\n\n"
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
