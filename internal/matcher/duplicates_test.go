package matcher

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-reconciliation-engine/internal/models"
)

func TestDetectBookDuplicates(t *testing.T) {
	b1 := book("B1", "10.00", day(1))
	b1.DescriptionKey = "office supplies"
	b2 := book("B2", "10.00", day(1))
	b2.DescriptionKey = "office supplies"
	b3 := book("B3", "10.00", day(2))
	b3.DescriptionKey = "office supplies"
	b4 := book("B4", "10.00", day(1))
	b4.DescriptionKey = "payroll"
	b5 := book("B5", "10.00", day(1))
	b5.DescriptionKey = "offce supplies"

	groups := DetectBookDuplicates([]*models.BookTransaction{b1, b2, b3, b4, b5})

	require.Len(t, groups, 1)
	group := groups[0]
	assert.Equal(t, "DUP_book_B1", group.GroupID)
	assert.Equal(t, models.SideBook, group.Side)
	assert.Equal(t, []string{"B1", "B2", "B5"}, group.IDs)
	assert.Greater(t, group.Confidence, 0.8)
	assert.Contains(t, group.Reason, "3 book records")
}

func TestDetectStatementDuplicatesWithoutDescriptions(t *testing.T) {
	groups := DetectStatementDuplicates([]*models.StatementTransaction{
		statement("S1", "5.00", day(3)),
		statement("S2", "5.00", day(3)),
		statement("S3", "6.00", day(3)),
	})

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"S1", "S2"}, groups[0].IDs)
	assert.Equal(t, 1.0, groups[0].Confidence)
}

func TestDetectDuplicatesNone(t *testing.T) {
	assert.Empty(t, DetectStatementDuplicates(nil))
	assert.Empty(t, DetectBookDuplicates([]*models.BookTransaction{book("B1", "1.00", day(1))}))
}

// manyBooks returns n books with distinct amounts plus one copy of every
// hundredth book
func manyBooks(n int) []*models.BookTransaction {
	books := make([]*models.BookTransaction, 0, n+n/100)
	for i := 0; i < n; i++ {
		books = append(books, &models.BookTransaction{
			ID:             fmt.Sprintf("B%d", i),
			Amount:         decimal.New(int64(i+1), -2),
			Date:           day(i%28 + 1),
			DescriptionKey: fmt.Sprintf("vendor payment %d", i),
		})
	}
	for i := 0; i < n; i += 100 {
		dup := *books[i]
		dup.ID = fmt.Sprintf("DUP%d", i)
		books = append(books, &dup)
	}
	return books
}

func TestDetectBookDuplicatesLargeInput(t *testing.T) {
	groups := DetectBookDuplicates(manyBooks(5000))

	require.Len(t, groups, 50)
	for i, group := range groups {
		original := fmt.Sprintf("B%d", i*100)
		assert.Equal(t, []string{original, fmt.Sprintf("DUP%d", i*100)}, group.IDs)
		assert.Equal(t, "DUP_book_"+original, group.GroupID)
		assert.Equal(t, 1.0, group.Confidence)
	}
}

func BenchmarkDetectBookDuplicates(b *testing.B) {
	books := manyBooks(20000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		DetectBookDuplicates(books)
	}
}
