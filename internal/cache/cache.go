package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/selcuk9494/react-sub001/internal/domain"
)

// BranchCache holds the branch list shown to each user. Entries carry no
// connection credentials.
type BranchCache interface {
	Get(ctx context.Context, userID int64) ([]domain.BranchSummary, bool, error)
	Set(ctx context.Context, userID int64, branches []domain.BranchSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, userID int64) error
}

func branchKey(userID int64) string {
	return "branches:user:" + strconv.FormatInt(userID, 10)
}

type NoopBranchCache struct{}

func (NoopBranchCache) Get(_ context.Context, _ int64) ([]domain.BranchSummary, bool, error) {
	return nil, false, nil
}

func (NoopBranchCache) Set(_ context.Context, _ int64, _ []domain.BranchSummary, _ time.Duration) error {
	return nil
}

func (NoopBranchCache) Invalidate(_ context.Context, _ int64) error {
	return nil
}
