package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"homeworkpoints/internal/config"
)

func newAutoSettle(repo *stubRepo, settlement *SettlementService, at time.Time) *AutoSettleService {
	return &AutoSettleService{
		Repo:       repo,
		Settlement: settlement,
		Now:        func() time.Time { return at },
	}
}

func seedAutoConfig(t *testing.T, repo *stubRepo, svc *AutoSettleService, enabled bool) {
	t.Helper()
	err := svc.EnsureDefaultConfig(context.Background(), config.AutoSettleConfig{
		Enabled:    enabled,
		DayOfMonth: 1,
		Hour:       2,
		Minute:     0,
	})
	if err != nil {
		t.Fatalf("EnsureDefaultConfig: %v", err)
	}
}

func TestInWindow(t *testing.T) {
	day := func(d, h, m int) time.Time {
		return time.Date(2026, time.September, d, h, m, 0, 0, time.UTC)
	}
	cases := []struct {
		at   time.Time
		want bool
	}{
		{day(1, 2, 0), true},
		{day(1, 2, 5), true},
		{day(1, 2, 6), false},
		{day(1, 1, 58), false},
		{day(1, 3, 0), false},
		{day(2, 2, 0), false},
	}
	for _, tc := range cases {
		if got := inWindow(tc.at, 1, 2, 0); got != tc.want {
			t.Fatalf("inWindow(%v, 1, 2, 0) = %v, want %v", tc.at, got, tc.want)
		}
	}

	// Minute tolerance never crosses into the neighboring hour.
	if inWindow(day(1, 2, 58), 1, 3, 0) {
		t.Fatalf("window leaked into previous hour")
	}
}

func TestTickSettlesPreviousMonthOnce(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	points, settlement := newTestServices(repo)
	at := time.Date(2026, time.September, 1, 2, 3, 0, 0, time.UTC)
	auto := newAutoSettle(repo, settlement, at)
	seedAutoConfig(t, repo, auto, true)

	record(t, points, "alice", "2026-08", "150")
	record(t, points, "bob", "2026-08", "30")

	if err := auto.Tick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	pool, _ := repo.GetMonthlyPrizePool(ctx, "2026-08")
	if pool == nil || !pool.IsSettled {
		t.Fatalf("previous month not settled by tick")
	}
	if repo.autoConfig.LastSettledMonth == nil || *repo.autoConfig.LastSettledMonth != "2026-08" {
		t.Fatalf("marker not advanced: %v", repo.autoConfig.LastSettledMonth)
	}

	// A second tick in the same window must be a no-op.
	if err := auto.Tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	settleLogs := 0
	for _, l := range repo.logs {
		if l.Action == "settle" {
			settleLogs++
		}
	}
	if settleLogs != 1 {
		t.Fatalf("settle logs = %d, want 1", settleLogs)
	}
}

func TestTickSkipsWhenDisabledOrOutsideWindow(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	points, settlement := newTestServices(repo)
	record(t, points, "alice", "2026-08", "10")

	inside := time.Date(2026, time.September, 1, 2, 0, 0, 0, time.UTC)
	auto := newAutoSettle(repo, settlement, inside)
	seedAutoConfig(t, repo, auto, false)
	if err := auto.Tick(ctx); err != nil {
		t.Fatalf("disabled tick: %v", err)
	}
	if pool, _ := repo.GetMonthlyPrizePool(ctx, "2026-08"); pool != nil && pool.IsSettled {
		t.Fatalf("disabled scheduler settled the month")
	}

	repo.autoConfig.Enabled = true
	outside := time.Date(2026, time.September, 15, 2, 0, 0, 0, time.UTC)
	auto.Now = func() time.Time { return outside }
	if err := auto.Tick(ctx); err != nil {
		t.Fatalf("outside-window tick: %v", err)
	}
	if pool, _ := repo.GetMonthlyPrizePool(ctx, "2026-08"); pool != nil && pool.IsSettled {
		t.Fatalf("scheduler fired outside its window")
	}
}

func TestTickResyncsMarkerAfterManualSettle(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	points, settlement := newTestServices(repo)
	at := time.Date(2026, time.September, 1, 2, 0, 0, 0, time.UTC)
	auto := newAutoSettle(repo, settlement, at)
	seedAutoConfig(t, repo, auto, true)

	record(t, points, "alice", "2026-08", "10")
	if _, err := settlement.Settle(ctx, "2026-08"); err != nil {
		t.Fatalf("manual settle: %v", err)
	}
	logsBefore := len(repo.logs)

	if err := auto.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if repo.autoConfig.LastSettledMonth == nil || *repo.autoConfig.LastSettledMonth != "2026-08" {
		t.Fatalf("marker not resynced: %v", repo.autoConfig.LastSettledMonth)
	}
	if len(repo.logs) != logsBefore {
		t.Fatalf("resync wrote %d new logs", len(repo.logs)-logsBefore)
	}
}

func TestUpdateConfigPreservesMarker(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	_, settlement := newTestServices(repo)
	auto := newAutoSettle(repo, settlement, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC))
	seedAutoConfig(t, repo, auto, true)

	month := "2026-08"
	repo.autoConfig.LastSettledMonth = &month

	updated, err := auto.UpdateConfig(ctx, AutoSettleConfigInput{
		Enabled:    true,
		DayOfMonth: 5,
		Hour:       6,
		Minute:     30,
	})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if updated.DayOfMonth != 5 || updated.Hour != 6 || updated.Minute != 30 {
		t.Fatalf("config not applied: %+v", updated)
	}
	if updated.LastSettledMonth == nil || *updated.LastSettledMonth != "2026-08" {
		t.Fatalf("marker lost on config update: %v", updated.LastSettledMonth)
	}
}

func TestValidateAutoSettleRanges(t *testing.T) {
	if err := validateAutoSettleRanges(1, 0, 0); err != nil {
		t.Fatalf("valid ranges rejected: %v", err)
	}
	if err := validateAutoSettleRanges(28, 23, 59); err != nil {
		t.Fatalf("valid boundary rejected: %v", err)
	}
	bad := [][3]int{{0, 2, 0}, {29, 2, 0}, {1, -1, 0}, {1, 24, 0}, {1, 2, -1}, {1, 2, 60}}
	for _, c := range bad {
		if err := validateAutoSettleRanges(c[0], c[1], c[2]); !errors.Is(err, ErrValidation) {
			t.Fatalf("validateAutoSettleRanges(%v) = %v, want ErrValidation", c, err)
		}
	}
}
