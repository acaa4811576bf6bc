package dictionary

import "github.com/treiswell/fintrack/internal/ledger"

// CategoryDef describes one selectable category for the configuration screens.
type CategoryDef struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var curated = map[ledger.Kind][]CategoryDef{
	ledger.KindIncome: {
		{Code: "salary", Label: "Salary"},
		{Code: "freelance", Label: "Freelance"},
		{Code: "interest", Label: "Interest"},
		{Code: "dividends", Label: "Dividends"},
		{Code: "rental_income", Label: "Rental Income"},
		{Code: "refund", Label: "Refund"},
		{Code: "other_income", Label: "Other Income"},
	},
	ledger.KindExpense: {
		{Code: "rent", Label: "Rent"},
		{Code: "utilities", Label: "Utilities"},
		{Code: "groceries", Label: "Groceries"},
		{Code: "eating_out", Label: "Eating Out"},
		{Code: "transport", Label: "Transport"},
		{Code: "subscriptions", Label: "Subscriptions"},
		{Code: "insurance", Label: "Insurance"},
		{Code: "health", Label: "Health"},
		{Code: "shopping", Label: "Shopping"},
		{Code: "entertainment", Label: "Entertainment"},
		{Code: "travel", Label: "Travel"},
		{Code: "general", Label: "General"},
	},
}

// ValidFor reports whether code is a curated category of the given kind.
// The empty code is always valid and means uncategorized.
func ValidFor(k ledger.Kind, code string) bool {
	if code == "" {
		return true
	}
	for _, c := range curated[k] {
		if c.Code == code {
			return true
		}
	}
	return false
}

// CategoriesFor lists the curated categories for a kind, or for all kinds when
// k is nil.
func CategoriesFor(k *ledger.Kind) []CategoryDef {
	if k == nil {
		out := make([]CategoryDef, 0)
		for _, list := range curated {
			out = append(out, list...)
		}
		return out
	}
	return curated[*k]
}
