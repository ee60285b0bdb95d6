package unityasset

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchInput names one input artifact for [ParseBatch].
type BatchInput struct {
	Name string
	Data []byte
}

// BatchResult pairs one BatchInput's outcome: exactly one of Context or
// Err is set.
type BatchResult struct {
	Name    string
	Context *AssetContext
	Err     error
}

// ParseBatch parses each input independently and concurrently, one
// [AssetContext] per input. Results are returned in the same order as
// inputs regardless of completion order.
//
// One input's fatal parse error does not cancel the others; it is
// reported only in that input's BatchResult.
func ParseBatch(ctx context.Context, inputs []BatchInput) []BatchResult {
	results := make([]BatchResult, len(inputs))
	var g errgroup.Group
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			ac, err := Parse(ctx, in.Name, in.Data)
			results[i] = BatchResult{Name: in.Name, Context: ac, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
