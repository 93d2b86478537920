package planner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanEvenSplit(t *testing.T) {
	// scenario 1 of spec.md §8: bank 0 has 6 members, bank 1 has 3, 30 buckets total.
	ranges, err := Plan([]int{6, 3}, 30)
	require.NoError(t, err)
	require.Len(t, ranges, 2)

	require.Equal(t, BankRange{Start: 0, End: 19}, ranges[0])
	require.Equal(t, BankRange{Start: 20, End: 29}, ranges[1])
}

func TestPlanPartitionCoversAllBuckets(t *testing.T) {
	ranges, err := Plan([]int{3, 5, 2}, 37)
	require.NoError(t, err)

	total := 0
	prevEnd := -1
	for _, r := range ranges {
		require.Equal(t, prevEnd+1, r.Start, "ranges must be contiguous")
		total += r.Size()
		prevEnd = r.End
	}
	require.Equal(t, 37, total)
	require.Equal(t, 36, prevEnd)
}

func TestPlanLeftoverGoesToLowestBanks(t *testing.T) {
	// 3 banks with 1 member each, 10 buckets: base=3, extra=1, bankExtra=0, leftover=1.
	// bank 0 gets the single leftover bucket.
	ranges, err := Plan([]int{1, 1, 1}, 10)
	require.NoError(t, err)

	require.Equal(t, 4, ranges[0].Size())
	require.Equal(t, 3, ranges[1].Size())
	require.Equal(t, 3, ranges[2].Size())
}

func TestPlanRejectsTooFewBuckets(t *testing.T) {
	_, err := Plan([]int{2, 2}, 3)
	require.Error(t, err)
}

func TestPlanRejectsNoBanks(t *testing.T) {
	_, err := Plan(nil, 10)
	require.Error(t, err)
}

func TestPlanIsDeterministic(t *testing.T) {
	a, err := Plan([]int{4, 1, 7}, 64)
	require.NoError(t, err)
	b, err := Plan([]int{4, 1, 7}, 64)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
