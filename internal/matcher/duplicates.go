package matcher

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bank-reconciliation-engine/internal/models"
)

// duplicateSimilarity is the description similarity above which two same-day,
// same-amount records are reported as possible duplicates
const duplicateSimilarity = 0.8

// DuplicateGroup is a set of records on one side that look like the same
// transaction entered more than once
type DuplicateGroup struct {
	GroupID    string          `json:"groupId"`
	Side       models.Side     `json:"side"`
	IDs        []string        `json:"ids"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
	Confidence float64         `json:"confidence"`
	Reason     string          `json:"reason"`
}

// duplicateKey is the projection of a transaction used for duplicate detection
type duplicateKey struct {
	id     string
	amount decimal.Decimal
	date   time.Time
	key    string
}

// DetectStatementDuplicates finds possible duplicate statement lines
func DetectStatementDuplicates(statements []*models.StatementTransaction) []DuplicateGroup {
	keys := make([]duplicateKey, len(statements))
	for i, s := range statements {
		keys[i] = duplicateKey{id: s.ID, amount: s.Amount, date: s.Date, key: s.DescriptionKey}
	}
	return detectDuplicates(models.SideStatement, keys)
}

// DetectBookDuplicates finds possible duplicate book entries
func DetectBookDuplicates(books []*models.BookTransaction) []DuplicateGroup {
	keys := make([]duplicateKey, len(books))
	for i, b := range books {
		keys[i] = duplicateKey{id: b.ID, amount: b.Amount, date: b.Date, key: b.DescriptionKey}
	}
	return detectDuplicates(models.SideBook, keys)
}

// detectDuplicates groups records with equal amount, equal date and similar
// description. Each record joins at most one group, the first it fits.
// Records are bucketed by amount and day first, so descriptions are only
// compared inside a bucket.
func detectDuplicates(side models.Side, records []duplicateKey) []DuplicateGroup {
	buckets := make(map[string][]int)
	for i, r := range records {
		key := r.amount.String() + "|" + r.date.Format(models.DateLayout)
		buckets[key] = append(buckets[key], i)
	}

	type found struct {
		first int
		group DuplicateGroup
	}
	var results []found

	for _, indexes := range buckets {
		if len(indexes) < 2 {
			continue
		}

		processed := make(map[int]bool, len(indexes))
		for pos, i := range indexes {
			if processed[i] {
				continue
			}
			first := records[i]

			members := []duplicateKey{first}
			similarityTotal := 0.0
			for _, j := range indexes[pos+1:] {
				if processed[j] {
					continue
				}
				if similar, score := isPotentialDuplicate(first, records[j]); similar {
					members = append(members, records[j])
					similarityTotal += score
					processed[j] = true
				}
			}
			processed[i] = true

			if len(members) > 1 {
				results = append(results, found{first: i, group: newDuplicateGroup(side, members, similarityTotal)})
			}
		}
	}

	sort.Slice(results, func(a, b int) bool { return results[a].first < results[b].first })

	groups := make([]DuplicateGroup, len(results))
	for i, r := range results {
		groups[i] = r.group
	}
	return groups
}

func newDuplicateGroup(side models.Side, members []duplicateKey, similarityTotal float64) DuplicateGroup {
	first := members[0]
	ids := make([]string, len(members))
	for k, m := range members {
		ids[k] = m.id
	}
	return DuplicateGroup{
		GroupID:    fmt.Sprintf("DUP_%s_%s", side, first.id),
		Side:       side,
		IDs:        ids,
		Amount:     first.amount,
		Date:       first.date,
		Confidence: similarityTotal / float64(len(members)-1),
		Reason: fmt.Sprintf("%d %s records with amount %s on %s and similar descriptions",
			len(members), side, first.amount.String(), first.date.Format(models.DateLayout)),
	}
}

func isPotentialDuplicate(a, b duplicateKey) (bool, float64) {
	if !a.amount.Equal(b.amount) || models.DaysBetween(a.date, b.date) != 0 {
		return false, 0
	}
	if a.key == "" && b.key == "" {
		return true, 1.0
	}
	score := DescriptionSimilarity(a.key, b.key)
	return score >= duplicateSimilarity, score
}
