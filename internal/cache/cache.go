package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.SalesSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesSummary, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.SalesSummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.SalesSummary, _ time.Duration) error {
	return nil
}

// SalesSummaryKey is stable for a given half-open [from, to) range.
func SalesSummaryKey(from, to time.Time) string {
	return fmt.Sprintf("pos:report:sales:%d:%d", from.UTC().Unix(), to.UTC().Unix())
}
