package rules

import "youbble/model"

// FeeSchedule maps each category to its entry fee in whole currency units.
type FeeSchedule map[model.Category]int64

// DefaultFees is the fee schedule published with the competition rules.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		model.CategoryOpen:  20,
		model.CategoryTeen:  15,
		model.CategoryCover: 20,
		model.CategorySync:  30,
	}
}

// FeeLine is one category's share of a quote.
type FeeLine struct {
	Category model.Category `json:"category"`
	Amount   int64          `json:"amount"`
}

// Quote is the fee breakdown for a category selection.
type Quote struct {
	Lines []FeeLine `json:"lines"`
	Total int64     `json:"total"`
}

// Quote prices a category selection. Each selected category is charged once.
func (f FeeSchedule) Quote(categories []model.Category) Quote {
	q := Quote{Lines: make([]FeeLine, 0, len(categories))}
	for _, c := range categories {
		amount := f[c]
		q.Lines = append(q.Lines, FeeLine{Category: c, Amount: amount})
		q.Total += amount
	}
	return q
}
