package ledger

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchTransfer issues the requested transfers with at most maxConcurrency
// in flight. Individual failures land in the corresponding result; the only
// error returned is context cancellation.
func BatchTransfer(ctx context.Context, l Ledger, requests []*TransferRequest, maxConcurrency int) ([]*TransferResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	results := make([]*TransferResult, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = &TransferResult{Success: false, Err: err}
				return err
			}
			results[i] = l.Transfer(gctx, req.ToAddress, req.Amount, req.TokenMint)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
