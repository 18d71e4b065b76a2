package reasoning

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"scoopai/backend/internal/catalog"
)

// Budget statuses reported on ConstrainedSearchResult.
const (
	BudgetStatusNone           = "no_budget"
	BudgetStatusUnder          = "under"
	BudgetStatusOver           = "over"
	BudgetStatusUnderAfterDrop = "under_after_drops"
)

// WarningBeginnerOverload flags a beginner requesting too many categories.
const WarningBeginnerOverload = "beginner_overload"

// productPriority ranks categories by how essential they are; higher ranks
// are searched first and survive budget drops the longest.
var productPriority = map[string]int{
	"protein":     100,
	"creatine":    80,
	"vitamin":     60,
	"omega":       50,
	"collagen":    40,
	"bcaa":        30,
	"glutamine":   20,
	"mass_gainer": 15,
	"fat_burner":  10,
	"preworkout":  10,
}

const defaultCategoryPriority = 50

// categoryQueries maps a requested category tag to the catalog search term.
var categoryQueries = map[string]string{
	"protein":     "პროტეინ",
	"creatine":    "კრეატინ",
	"vitamin":     "ვიტამინ",
	"omega":       "ომეგა",
	"bcaa":        "bcaa",
	"preworkout":  "პრევორკაუთ",
	"fat_burner":  "ცხიმისმწველ",
	"mass_gainer": "გეინერ",
	"glutamine":   "გლუტამინ",
	"collagen":    "კოლაგენ",
}

// SelectedProduct is a catalog product tagged with the requested category it
// was selected for and that category's priority weight.
type SelectedProduct struct {
	Product  catalog.Product `json:"product"`
	Category string          `json:"category"`
	Priority int             `json:"priority"`
}

// ConstrainedSearchResult is the outcome of a budget- and restriction-aware
// catalog search.
type ConstrainedSearchResult struct {
	Products        []SelectedProduct `json:"products"`
	TotalPrice      float64           `json:"total_price"`
	Budget          *float64          `json:"budget,omitempty"`
	BudgetStatus    string            `json:"budget_status"`
	DroppedProducts []string          `json:"dropped_products,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// ConstraintSearch selects catalog products per requested category while
// respecting budget, dietary restrictions, and exclusions.
type ConstraintSearch struct {
	searcher catalog.Searcher
	buffer   float64
	log      *zap.Logger
}

// NewConstraintSearch builds a search over the given catalog. buffer scales
// each category's proportional budget share; values <= 0 fall back to 1.5.
func NewConstraintSearch(searcher catalog.Searcher, buffer float64, log *zap.Logger) *ConstraintSearch {
	if buffer <= 0 {
		buffer = 1.5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ConstraintSearch{searcher: searcher, buffer: buffer, log: log}
}

// Search runs the constrained selection. Collaborator failures yield zero
// results for the failing category and never fail the search itself.
func (s *ConstraintSearch) Search(ctx context.Context, analysis QueryAnalysis, maxPerCategory int) ConstrainedSearchResult {
	result := ConstrainedSearchResult{
		Products:     []SelectedProduct{},
		Budget:       analysis.Budget,
		BudgetStatus: BudgetStatusNone,
	}
	if maxPerCategory < 0 {
		maxPerCategory = 0
	}

	categories := make([]string, len(analysis.ProductsRequested))
	copy(categories, analysis.ProductsRequested)
	sort.SliceStable(categories, func(i, j int) bool {
		return categoryPriority(categories[i]) > categoryPriority(categories[j])
	})

	hasBudget := analysis.Budget != nil && *analysis.Budget > 0
	totalPriority := 0
	for _, category := range categories {
		totalPriority += categoryPriority(category)
	}

	selected := make([]SelectedProduct, 0, len(categories)*maxPerCategory)
	for _, category := range categories {
		var maxPrice *float64
		if hasBudget && totalPriority > 0 {
			share := *analysis.Budget * (float64(categoryPriority(category)) / float64(totalPriority)) * s.buffer
			maxPrice = &share
		}

		query, ok := categoryQueries[category]
		if !ok {
			query = category
		}

		products, err := s.searcher.Search(ctx, query, maxPrice, true)
		if err != nil {
			s.log.Warn("catalog search failed",
				zap.String("category", category),
				zap.Error(err))
			products = nil
		}

		products = filterDietary(products, analysis.DietaryRestrictions)
		products = filterExclusions(products, analysis.Exclusions)

		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Price < products[j].Price
		})
		if len(products) > maxPerCategory {
			products = products[:maxPerCategory]
		}

		for _, p := range products {
			selected = append(selected, SelectedProduct{
				Product:  p,
				Category: category,
				Priority: categoryPriority(category),
			})
		}
	}

	totalPrice := sumPrices(selected)

	if hasBudget {
		if totalPrice <= *analysis.Budget {
			result.BudgetStatus = BudgetStatusUnder
		} else {
			result.BudgetStatus = BudgetStatusOver
			sort.SliceStable(selected, func(i, j int) bool {
				return selected[i].Priority < selected[j].Priority
			})
			for totalPrice > *analysis.Budget && len(selected) > 0 {
				dropped := selected[0]
				selected = selected[1:]
				result.DroppedProducts = append(result.DroppedProducts, dropped.Category)
				totalPrice = sumPrices(selected)
			}
			// Dropping every product is not convergence; the status
			// stays "over" to signal that nothing fit the budget.
			if len(selected) > 0 && totalPrice <= *analysis.Budget {
				result.BudgetStatus = BudgetStatusUnderAfterDrop
			}
		}
	}

	if analysis.IsBeginner && len(analysis.ProductsRequested) > 2 {
		result.Warnings = append(result.Warnings, WarningBeginnerOverload)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority > selected[j].Priority
	})

	result.Products = selected
	result.TotalPrice = totalPrice
	return result
}

func categoryPriority(category string) int {
	if p, ok := productPriority[category]; ok {
		return p
	}
	return defaultCategoryPriority
}

func sumPrices(products []SelectedProduct) float64 {
	total := 0.0
	for _, p := range products {
		total += p.Product.Price
	}
	return total
}

func filterDietary(products []catalog.Product, restrictions []string) []catalog.Product {
	for _, restriction := range restrictions {
		switch restriction {
		case "lactose-free":
			products = filterProducts(products, isLactoseFree)
		case "vegan":
			products = filterProducts(products, isVegan)
		case "gluten-free":
			products = filterProducts(products, isGlutenFree)
		}
	}
	return products
}

func filterExclusions(products []catalog.Product, exclusions []string) []catalog.Product {
	for _, exclusion := range exclusions {
		switch exclusion {
		case "sugar":
			products = filterProducts(products, isSugarFree)
		case "caffeine":
			products = filterProducts(products, isCaffeineFree)
		}
	}
	return products
}

func filterProducts(products []catalog.Product, keep func(catalog.Product) bool) []catalog.Product {
	filtered := products[:0:0]
	for _, p := range products {
		if keep(p) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func productText(p catalog.Product) string {
	return strings.ToLower(p.Name + " " + p.Brand)
}

// isLactoseFree treats isolates and plant proteins as safe; whey concentrate,
// casein, and gainers are assumed to contain milk.
func isLactoseFree(p catalog.Product) bool {
	name := productText(p)
	if containsAny(name, []string{"isolate", "plant", "vegan", "soy", "pea", "rice"}) {
		return true
	}
	if strings.Contains(name, "whey") && !strings.Contains(name, "isolate") {
		return false
	}
	if strings.Contains(name, "casein") {
		return false
	}
	if strings.Contains(name, "mass") || strings.Contains(name, "gainer") {
		return false
	}
	return true
}

func isVegan(p catalog.Product) bool {
	name := productText(p)
	if containsAny(name, []string{"plant", "vegan", "pea", "soy", "rice", "hemp"}) {
		return true
	}
	if containsAny(name, []string{"whey", "casein", "egg", "beef", "collagen"}) {
		return false
	}
	if containsAny(name, []string{"creatine", "vitamin", "mineral", "caffeine"}) {
		return true
	}
	return false
}

func isGlutenFree(p catalog.Product) bool {
	name := productText(p)
	return !containsAny(name, []string{"wheat", "barley", "oat"})
}

func isSugarFree(p catalog.Product) bool {
	name := productText(p)
	if containsAny(name, []string{"zero", "sugar free", "no sugar", "უშაქრო"}) {
		return true
	}
	if strings.Contains(name, "gainer") || strings.Contains(name, "mass") {
		return false
	}
	return true
}

func isCaffeineFree(p catalog.Product) bool {
	name := productText(p)
	if containsAny(name, []string{"preworkout", "pre-workout", "energy", "caffeine", "კოფეინ"}) {
		return false
	}
	if strings.Contains(name, "fat burner") || strings.Contains(name, "thermogenic") {
		return false
	}
	return true
}
