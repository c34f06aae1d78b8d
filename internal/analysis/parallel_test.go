package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-pgx/internal/vcf"
)

func feed(seqs ...int) <-chan WorkResult {
	ch := make(chan WorkResult, len(seqs))
	for _, s := range seqs {
		ch <- WorkResult{Seq: s}
	}
	close(ch)
	return ch
}

func TestOrderedCollect_Order(t *testing.T) {
	var got []int
	err := OrderedCollect(feed(2, 0, 3, 1, 4), func(r WorkResult) error {
		got = append(got, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestOrderedCollect_StopsOnError(t *testing.T) {
	stop := errors.New("stop")
	results := feed(0, 1, 2, 3)

	var got []int
	err := OrderedCollect(results, func(r WorkResult) error {
		got = append(got, r.Seq)
		if r.Seq == 1 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []int{0, 1}, got)

	_, open := <-results
	assert.False(t, open, "remaining results are drained")
}

func TestParallelEvaluate_AllItems(t *testing.T) {
	a := newTestAnalyzer(t)
	sample, err := vcf.Parse(readTestFile(t, "pgx_panel.vcf"))
	require.NoError(t, err)

	drugs := []string{"Codeine", "Aspirin", "Warfarin", "Simvastatin"}
	items := make(chan WorkItem, len(drugs))
	for i, d := range drugs {
		items <- WorkItem{Seq: i, Drug: d}
	}
	close(items)

	var order []string
	err = OrderedCollect(a.ParallelEvaluate(sample, "en-US", items, 3), func(r WorkResult) error {
		order = append(order, r.Drug)
		assert.True(t, (r.Output == nil) != (r.Err == nil), r.Drug)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, drugs, order)
}
