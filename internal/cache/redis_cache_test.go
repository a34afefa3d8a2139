package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

func newTestRedisCache(t *testing.T) (*RedisReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c := NewRedisReportCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisReportCacheRoundTripAndExpiry(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	key := SalesSummaryKey(from, to)

	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}

	summary := &domain.SalesSummary{
		From:       from,
		To:         to,
		Sales:      3,
		TotalCents: 3717,
		NetCents:   3394,
		ByPayment: []domain.SalesSummaryPayment{
			{PaymentMethod: domain.PaymentCash, Sales: 2, TotalCents: 2478},
		},
	}
	if err := c.Set(ctx, key, summary, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if got.Sales != 3 || got.TotalCents != 3717 || got.NetCents != 3394 {
		t.Fatalf("unexpected cached summary: %+v", got)
	}
	if len(got.ByPayment) != 1 || got.ByPayment[0].PaymentMethod != domain.PaymentCash {
		t.Fatalf("unexpected payment breakdown: %+v", got.ByPayment)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss after ttl, ok=%v err=%v", ok, err)
	}
}

func TestRedisReportCacheSkipsNilAndZeroTTL(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "nil", nil, time.Minute); err != nil {
		t.Fatalf("set nil: %v", err)
	}
	if err := c.Set(ctx, "zero", &domain.SalesSummary{Sales: 1}, 0); err != nil {
		t.Fatalf("set zero ttl: %v", err)
	}
	if mr.Exists("nil") || mr.Exists("zero") {
		t.Fatalf("expected no keys written")
	}
}

func TestRedisReportCacheCorruptValue(t *testing.T) {
	c, mr := newTestRedisCache(t)
	if err := mr.Set("bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := c.Get(context.Background(), "bad"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSalesSummaryKeyNormalizesZone(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	from := time.Date(2026, 3, 1, 7, 0, 0, 0, loc)
	if SalesSummaryKey(from, from.Add(time.Hour)) != SalesSummaryKey(from.UTC(), from.UTC().Add(time.Hour)) {
		t.Fatalf("expected zone-independent key")
	}
}
