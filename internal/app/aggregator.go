package app

import (
	"context"
	"fmt"

	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

// RatingAggregator keeps a business's rating and review count equal to the
// aggregate of its current reviews. It is registered as a ReviewObserver.
type RatingAggregator struct {
	store domain.RatingStore
}

func NewRatingAggregator(s domain.RatingStore) *RatingAggregator {
	return &RatingAggregator{store: s}
}

// Recompute reads the business's review set and writes the summary back
// without triggering any further hooks. Concurrent calls are last-write-wins.
func (a *RatingAggregator) Recompute(ctx context.Context, businessID int64) (float64, int, error) {
	count, sum, err := a.store.ReviewStats(ctx, businessID)
	if err != nil {
		return 0, 0, fmt.Errorf("recompute rating: %w", err)
	}
	rating := domain.RoundedMean(sum, count)
	if err := a.store.SetBusinessRating(ctx, businessID, rating, count); err != nil {
		return 0, 0, fmt.Errorf("recompute rating: %w", err)
	}
	return rating, count, nil
}

func (a *RatingAggregator) ReviewCreated(ctx context.Context, r domain.Review) error {
	_, _, err := a.Recompute(ctx, r.BusinessID)
	return err
}

func (a *RatingAggregator) ReviewDeleted(ctx context.Context, r domain.Review) error {
	_, _, err := a.Recompute(ctx, r.BusinessID)
	return err
}
