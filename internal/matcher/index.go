package matcher

import (
	"sort"

	"github.com/shopspring/decimal"

	"bank-reconciliation-engine/internal/models"
)

// Candidate is an unscored statement/book pairing that passed the prefilters
type Candidate struct {
	Statement      *models.StatementTransaction
	Book           *models.BookTransaction
	StatementOrder int
	BookOrder      int
}

// indexedBook remembers where a book sat in the input list
type indexedBook struct {
	book  *models.BookTransaction
	order int
}

// BookAmountEntry groups books sharing one exact amount
type BookAmountEntry struct {
	Amount decimal.Decimal
	books  []indexedBook
}

// BookIndex provides range lookups over book transactions by amount
type BookIndex struct {
	// ExactAmountIndex maps exact amounts to their entry in AmountRangeIndex
	ExactAmountIndex map[string]*BookAmountEntry

	// AmountRangeIndex is sorted ascending by amount for binary search
	AmountRangeIndex []*BookAmountEntry

	size int
}

// NewBookIndex builds the index. Books keep their input position so that
// candidate lists and tie-breaks stay deterministic.
func NewBookIndex(books []*models.BookTransaction) *BookIndex {
	index := &BookIndex{
		ExactAmountIndex: make(map[string]*BookAmountEntry),
		size:             len(books),
	}

	for i, book := range books {
		amountKey := book.Amount.String()
		entry, exists := index.ExactAmountIndex[amountKey]
		if !exists {
			entry = &BookAmountEntry{Amount: book.Amount}
			index.ExactAmountIndex[amountKey] = entry
			index.AmountRangeIndex = append(index.AmountRangeIndex, entry)
		}
		entry.books = append(entry.books, indexedBook{book: book, order: i})
	}

	sort.Slice(index.AmountRangeIndex, func(i, j int) bool {
		return index.AmountRangeIndex[i].Amount.LessThan(index.AmountRangeIndex[j].Amount)
	})

	return index
}

// Size returns the number of indexed books
func (bi *BookIndex) Size() int {
	return bi.size
}

// GetByExactAmount returns books with exactly the given amount, in input order
func (bi *BookIndex) GetByExactAmount(amount decimal.Decimal) []*models.BookTransaction {
	entry, ok := bi.ExactAmountIndex[amount.String()]
	if !ok {
		return nil
	}
	books := make([]*models.BookTransaction, len(entry.books))
	for i, ib := range entry.books {
		books[i] = ib.book
	}
	return books
}

// getByAmountRange returns books within [minAmount, maxAmount] inclusive
func (bi *BookIndex) getByAmountRange(minAmount, maxAmount decimal.Decimal) []indexedBook {
	var result []indexedBook

	startIdx := sort.Search(len(bi.AmountRangeIndex), func(i int) bool {
		return bi.AmountRangeIndex[i].Amount.GreaterThanOrEqual(minAmount)
	})

	for i := startIdx; i < len(bi.AmountRangeIndex); i++ {
		entry := bi.AmountRangeIndex[i]
		if entry.Amount.GreaterThan(maxAmount) {
			break
		}
		result = append(result, entry.books...)
	}

	return result
}

// Candidates returns the books that pass the amount and date windows for one
// statement, ordered by book input position. When MaxCandidatesPerStatement is
// set only the closest candidates are kept.
func (bi *BookIndex) Candidates(stmt *models.StatementTransaction, stmtOrder int, config *MatchingConfig) []Candidate {
	tolerance := config.ToleranceFor(stmt.Amount)
	inRange := bi.getByAmountRange(stmt.Amount.Sub(tolerance), stmt.Amount.Add(tolerance))

	candidates := make([]Candidate, 0, len(inRange))
	for _, ib := range inRange {
		if models.DaysBetween(stmt.Date, ib.book.Date) > config.DateWindowDays {
			continue
		}
		candidates = append(candidates, Candidate{
			Statement:      stmt,
			Book:           ib.book,
			StatementOrder: stmtOrder,
			BookOrder:      ib.order,
		})
	}

	if limit := config.MaxCandidatesPerStatement; limit > 0 && len(candidates) > limit {
		sort.SliceStable(candidates, func(i, j int) bool {
			return closer(candidates[i], candidates[j])
		})
		candidates = candidates[:limit]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].BookOrder < candidates[j].BookOrder
	})

	return candidates
}

// closer orders candidates by date distance, then amount distance, then input position
func closer(a, b Candidate) bool {
	da := models.DaysBetween(a.Statement.Date, a.Book.Date)
	db := models.DaysBetween(b.Statement.Date, b.Book.Date)
	if da != db {
		return da < db
	}

	aa := a.Statement.Amount.Sub(a.Book.Amount).Abs()
	ab := b.Statement.Amount.Sub(b.Book.Amount).Abs()
	if cmp := aa.Cmp(ab); cmp != 0 {
		return cmp < 0
	}

	return a.BookOrder < b.BookOrder
}
