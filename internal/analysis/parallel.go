package analysis

import (
	"runtime"
	"sync"

	"github.com/inodb/vibe-pgx/internal/vcf"
)

// WorkItem is a drug queued for evaluation.
type WorkItem struct {
	Seq  int
	Drug string
}

// WorkResult holds the outcome for a single drug. Exactly one of Output and
// Err is set.
type WorkResult struct {
	Seq    int
	Drug   string
	Output *ClinicalOutput
	Err    *Error
}

// ParallelEvaluate evaluates work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func (a *Analyzer) ParallelEvaluate(sample *vcf.Sample, language string, items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for item := range items {
				out, err := a.Evaluate(sample, item.Drug, language)
				results <- WorkResult{
					Seq:    item.Seq,
					Drug:   item.Drug,
					Output: out,
					Err:    err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}
