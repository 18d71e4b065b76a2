package reasoning

import "regexp"

// QueryAnalysis is the structured reading of a single user message plus
// recent context. List fields hold each tag at most once, in pattern-table
// order.
type QueryAnalysis struct {
	Budget              *float64 `json:"budget,omitempty"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	Exclusions          []string `json:"exclusions,omitempty"`
	DurationMonths      *int     `json:"duration_months,omitempty"`

	Intent     string `json:"intent"`
	Complexity string `json:"complexity"`

	MythsDetected    []string `json:"myths_detected,omitempty"`
	UnrealisticGoals []string `json:"unrealistic_goals,omitempty"`
	MedicalConcerns  []string `json:"medical_concerns,omitempty"`
	SafetyConcerns   []string `json:"safety_concerns,omitempty"`

	ProductsRequested []string `json:"products_requested,omitempty"`

	IsBeginner bool   `json:"is_beginner"`
	GoalType   string `json:"goal_type,omitempty"`
}

type budgetPattern struct {
	re   *regexp.Regexp
	kind string // direct, implicit, range
}

// patternGroup is one detection category: the first regexp that matches
// decides, remaining ones are not tried.
type patternGroup struct {
	id  string
	res []*regexp.Regexp
}

type keywordGroup struct {
	id       string
	keywords []string
}

type durationPattern struct {
	re   *regexp.Regexp
	unit string // months, weeks, years, duration
}

type exclusionItem struct {
	key string
	tag string
}

type dietaryRule struct {
	tag      string
	keywords []string
}

// Patterns holds every detection table, compiled once at startup and shared
// read-only across requests. Tables are slices, not maps: their order is the
// tie-break priority.
type Patterns struct {
	budget []budgetPattern

	myths       []patternGroup
	unrealistic []patternGroup
	medical     []patternGroup
	safety      []patternGroup
	symptoms    []patternGroup

	products []keywordGroup
	goals    []patternGroup
	beginner []*regexp.Regexp

	durations []durationPattern

	exclusionCaptures []*regexp.Regexp
	exclusionItems    []exclusionItem
	dietary           []dietaryRule

	greetings []string
}

// DefaultPatterns compiles the full Georgian/English pattern set.
//
// Note on \p{L}: Go's \w only covers ASCII, so the morphological-suffix
// wildcard after Georgian stems is written as \p{L}* (the input is already
// lower-cased before matching, so no (?i) is needed).
func DefaultPatterns() *Patterns {
	return &Patterns{
		budget: []budgetPattern{
			{regexp.MustCompile(`(\d+)\s*(?:ლარ|₾|lari)`), "direct"},        // "150 ლარი", "150₾"
			{regexp.MustCompile(`ბიუჯეტ\p{L}*\s*(\d+)`), "direct"},          // "ბიუჯეტი 150"
			{regexp.MustCompile(`(\d+)\s*ბიუჯეტ`), "direct"},                // "150 ბიუჯეტი"
			{regexp.MustCompile(`სტიპენდია\s*(\d+)`), "implicit"},           // "სტიპენდია 100"
			{regexp.MustCompile(`ხელფას\p{L}*\s*(\d+)`), "implicit"},        // "ხელფასი 500"
			{regexp.MustCompile(`მაქვს\s*(?:სულ\s*)?(\d+)`), "direct"},      // "მაქვს სულ 150"
			{regexp.MustCompile(`მაქს(?:იმუმ)?\s*(\d+)`), "direct"},         // "მაქსიმუმ 200"
			{regexp.MustCompile(`(\d+)\s*მაქს`), "direct"},                  // "200 მაქს"
			{regexp.MustCompile(`არაუმეტეს\s*(\d+)`), "direct"},             // "არაუმეტეს 150"
			{regexp.MustCompile(`პენსია\s*(\d+)`), "implicit"},              // "პენსია 400"
			{regexp.MustCompile(`(\d+)-(\d+)\s*(?:ლარ|₾)`), "range"},        // "100-150 ლარი" (takes min)
		},

		myths: []patternGroup{
			{"protein_chemical", compileAll(
				`პროტეინ\p{L}*\s*(?:ქიმია|სინთეტიკ|ხელოვნურ|არაბუნებრივ)`,
				`პროტეინ\p{L}*\s*(?:არის|არის\s*ეს)\s*ქიმია`,
				`(?:ქიმია|სინთეტიკ)\p{L}*\s*პროტეინ`,
				`protein\s*(?:chemical|synthetic|artificial|unnatural)`,
				`whey\s*(?:chemical|synthetic)`,
				`პროტეინი\s*ბუნებრივი\s*არ\s*არის`,
			)},
			{"soy_estrogen", compileAll(
				`სოი\p{L}*\s*(?:ესტროგენ|ქალ|ჰორმონ|აქალებ)`,
				`სოი\p{L}*.*(?:კაც|მამაკაც).*(?:აქალებ|ქალ)`,
				`soy\s*(?:estrogen|feminine|hormone)`,
				`სოია\s*კაცს\s*აქალებს`,
				`სოი\p{L}*.*ესტროგენ\p{L}*`,
				`სოი\p{L}*.*(?:დავემსგავს|გავხდები|ვიქცევი).*ქალ`,
				`სოი\p{L}*.*ქალ\p{L}*\s*(?:დავემსგავს|გავხდები|ვიქცევი)`,
				`ესტროგენ\p{L}*.*სოი\p{L}*`,
			)},
			{"creatine_steroid", compileAll(
				`კრეატინ\p{L}*\s*(?:სტეროიდ|დოპინგ|არალეგალ)`,
				`კრეატინ\p{L}*\s*კანონიერ`,
				`creatine\s*(?:steroid|doping|illegal)`,
			)},
			{"protein_kidney", compileAll(
				`პროტეინ\p{L}*\s*(?:თირკმელ|კიდნი|kidney)`,
				`პროტეინ\p{L}*.*(?:აზიანებს|დააზიანებს).*თირკმელ`,
				`protein\s*(?:kidney|renal)\s*(?:damage|harm)`,
			)},
		},

		unrealistic: []patternGroup{
			{"rapid_muscle", compileAll(
				`(\d+)\s*კგ\s*(?:კუნთ|მასა)\p{L}*\s*(\d+)\s*(?:თვე|კვირა)`,
				`(\d+)\s*(?:თვე|კვირა)\p{L}*\s*(\d+)\s*კგ\s*(?:კუნთ|მასა)`,
			)},
			{"impossible_price", compileAll(
				`100\s*%\s*(?:ცილა|პროტეინ)\p{L}*\s*(\d+)\s*(?:ლარ|₾)`,
				`იაფ\p{L}*\s*100\s*%\s*(?:ცილა|პროტეინ)`,
				`100\s*%\s*(?:ცილა|პროტეინ)\p{L}*.*?(\d+)\s*(?:ლარ|₾)`,
				`100\s*%\s*ცილ\p{L}*.*პროტეინ\p{L}*.*?(\d+)\s*(?:ლარ|₾)`,
			)},
			{"rapid_weight_loss", compileAll(
				`(\d+)\s*კგ\s*(?:დაკლება|წონა)\p{L}*\s*(\d+)\s*(?:კვირა|დღე)`,
			)},
		},

		medical: []patternGroup{
			{"ssri_interaction", compileAll(
				`(?:ანტიდეპრესანტ|ssri|სეროტონინ)`,
				`(?:antidepressant|prozac|zoloft|lexapro|sertraline|escitalopram)`,
			)},
			{"kidney_concern", compileAll(
				`(?:კრეატინინ|თირკმელ\p{L}*\s*პრობლემ)`,
				`(?:kidney\s*(?:disease|problem)|renal|creatinine\s*high)`,
			)},
			{"liver_concern", compileAll(
				`(?:ღვიძლ\p{L}*\s*პრობლემ|ღვიძლის\s*დაავადება)`,
				`(?:liver\s*(?:disease|problem)|hepat)`,
			)},
			{"heart_concern", compileAll(
				`(?:გულ\p{L}*\s*პრობლემ|არითმია|გულის\s*დაავადება)`,
				`(?:heart\s*(?:disease|problem)|cardiac|arrhythmia)`,
			)},
			{"blood_pressure", compileAll(
				`(?:წნევა\s*მაღალ|ჰიპერტენზია)`,
				`(?:high\s*(?:blood\s*)?pressure|hypertension)`,
			)},
			{"diabetes", compileAll(
				`(?:დიაბეტ|შაქრიან\p{L}*\s*დიაბეტ)`,
				`(?:diabetes|blood\s*sugar|diabetic)`,
			)},
			{"pregnancy", compileAll(
				`(?:ორსულ|მეძუძური|ბავშვს\s*ვაძუძებ)`,
				`(?:pregnant|breastfeed|nursing)`,
			)},
			{"thyroid", compileAll(
				`(?:ფარისებრ\p{L}*\s*ჯირკვ)`,
				`(?:thyroid)`,
			)},
		},

		safety: []patternGroup{
			{"caffeine_overuse", compileAll(
				`(\d+)\s*(?:ჯერ|times).*(?:პრე-ვორკაუთ|preworkout|კოფეინ)`,
				`(?:აღარ\s*მშველის|არ\s*მუშაობს|tolerance)`,
				`დღეში\s*(\d+).*(?:პრე-ვორკაუთ|preworkout)`,
				`უფრო\s*ძლიერი.*(?:პრე-ვორკაუთ|preworkout)`,
			)},
			{"eating_disorder_risk", compileAll(
				`(?:არ\s*მიჭამია|არ\s*ვჭამ|not\s*eating)`,
				`მხოლოდ.*(?:ცხიმისმწველ|fat\s*burner)`,
				`(?:ანორექსია|ბულიმია|anorexia|bulimia)`,
			)},
			{"overdose_risk", compileAll(
				`(?:ორმაგი?\s*დოზ|double\s*dose)`,
				`(?:მეტი\s*მივიღო|take\s*more)`,
			)},
		},

		symptoms: []patternGroup{
			{"paresthesia", compileAll(
				`(?:მექავება|ჩხვლეტ|tingling|itching)`,
				`(?:სახე|face).*(?:მექავება|ჩხვლეტ|tingling)`,
				`(?:კანი|skin).*(?:მექავება|tingling)`,
			)},
			{"general_discomfort", compileAll(
				`(?:ცუდად|გულისრევა|nausea|sick|თავბრუ)`,
				`(?:მტკივა|ტკივილი|pain|hurts)`,
			)},
			{"digestive", compileAll(
				`(?:მუცელი\s*მტკივა|stomach\s*(?:pain|ache)|შებერილობა|bloating)`,
			)},
		},

		products: []keywordGroup{
			{"protein", []string{"პროტეინ", "ცილა", "whey", "protein", "casein", "კაზეინ"}},
			{"creatine", []string{"კრეატინ", "creatine"}},
			{"omega", []string{"ომეგა", "omega", "თევზის ცხიმი", "fish oil"}},
			{"bcaa", []string{"bcaa", "ამინო", "amino", "eaa"}},
			{"vitamin", []string{"ვიტამინ", "vitamin", "მულტივიტამინ", "multivitamin"}},
			{"preworkout", []string{"პრე-ვორკაუთ", "პრევორკაუთ", "preworkout", "pre-workout", "ენერგეტიკ"}},
			{"fat_burner", []string{"ცხიმისმწველ", "fat burner", "თერმოგენიკ", "thermogenic"}},
			{"mass_gainer", []string{"გეინერ", "gainer", "მას გეინერ", "mass"}},
			{"glutamine", []string{"გლუტამინ", "glutamine"}},
			{"collagen", []string{"კოლაგენ", "collagen"}},
		},

		goals: []patternGroup{
			{"weight_loss", compileAll(`(?:წონა.*დაკლება|დიეტა|გამოშრობა|წონის.*დაკლება|slim|cut|დაკლება)`)},
			{"muscle_gain", compileAll(`(?:კუნთ.*მომატება|მასა|bulk|muscle.*gain|კუნთები)`)},
			{"maintenance", compileAll(`(?:შენარჩუნება|maintain|მაინტენანს)`)},
			{"endurance", compileAll(`(?:გამძლეობა|endurance|სირბილ|მარათონ|კარდიო)`)},
			{"recovery", compileAll(`(?:აღდგენ|recovery|ტკივილ.*კუნთ|კუნთების.*აღდგენა)`)},
		},

		beginner: compileAll(
			`პირველად.*(?:დარბაზ|ვარჯიშ|gym|სპორტდარბაზ)`,
			`(?:ახალბედა|beginner|დამწყები)`,
			`არასდროს.*(?:ვარჯიშ|დანამატ)`,
			`ახლა\s*დავიწყე.*(?:ვარჯიშ|დარბაზ)`,
			`(?:რა\s*დავიწყო|საიდან\s*დავიწყო)`,
		),

		durations: []durationPattern{
			{regexp.MustCompile(`(\d+)\s*(?:თვე|თვის|month)`), "months"},
			{regexp.MustCompile(`(\d+)\s*(?:კვირა|week)`), "weeks"},
			{regexp.MustCompile(`(\d+)\s*(?:წელ|year)`), "years"},
			{regexp.MustCompile(`ეყოფა\s*(\d+)\s*(?:თვე|კვირა)`), "duration"},
		},

		exclusionCaptures: compileAll(
			`არ\s*მინდა\s*(\p{L}+)`,
			`(\p{L}+)\s*გარეშე`,
			`გამოვრიცხო\s*(\p{L}+)`,
			`without\s*(\p{L}+)`,
			`არ\s*შეიცავდეს\s*(\p{L}+)`,
			`თავი\s*აარიდოს\s*(\p{L}+)`,
		),

		exclusionItems: []exclusionItem{
			{"შაქარ", "sugar"},
			{"sugar", "sugar"},
			{"კოფეინ", "caffeine"},
			{"caffeine", "caffeine"},
			{"ლაქტოზ", "lactose"},
			{"lactose", "lactose"},
			{"გლუტენ", "gluten"},
			{"gluten", "gluten"},
			{"სოი", "soy"},
			{"soy", "soy"},
		},

		dietary: []dietaryRule{
			{"lactose-free", []string{"ლაქტოზ", "lactose", "რძის აუტანლობა"}},
			{"vegan", []string{"ვეგან", "vegan", "მცენარეულ"}},
			{"gluten-free", []string{"გლუტენ", "gluten"}},
		},

		greetings: []string{"გამარჯობა", "სალამი", "hello", "hi"},
	}
}

func compileAll(exprs ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		res = append(res, regexp.MustCompile(expr))
	}
	return res
}
