package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mgnregs/internal/core"
)

func newTestRepo(t *testing.T) *QueryLogRepository {
	t.Helper()
	repo, err := NewQueryLogRepository(filepath.Join(t.TempDir(), "nested", "mgnregs.db"))
	if err != nil {
		t.Fatalf("NewQueryLogRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func event(id, district string, outcome core.Outcome, records int, at time.Time) core.QueryEvent {
	return core.QueryEvent{
		ID:                 id,
		OccurredAt:         at,
		District:           district,
		NormalizedDistrict: core.NormalizeDistrict(district),
		Month:              "02",
		Year:               "2024",
		MonthName:          "Feb",
		FinYear:            "2023-2024",
		Outcome:            outcome,
		RecordCount:        records,
	}
}

func TestRecordAndListRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	first := event("e1", "Kabirdham", core.OutcomeOK, 4, base)
	first.FallbackUsed = true
	second := event("e2", "Raipur", core.OutcomeUpstreamFailed, 0, base.Add(time.Minute))

	for _, ev := range []core.QueryEvent{first, second} {
		if err := repo.RecordQuery(ctx, ev); err != nil {
			t.Fatalf("RecordQuery: %v", err)
		}
	}

	got, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != "e2" || got[1].ID != "e1" {
		t.Fatalf("expected newest first, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].NormalizedDistrict != "KAWARDHA" || !got[1].FallbackUsed || got[1].RecordCount != 4 {
		t.Fatalf("unexpected event: %+v", got[1])
	}
	if !got[1].OccurredAt.Equal(base) {
		t.Fatalf("occurred_at=%v, want %v", got[1].OccurredAt, base)
	}
	if got[0].Outcome != core.OutcomeUpstreamFailed {
		t.Fatalf("outcome=%q", got[0].Outcome)
	}
}

func TestRecordQueryIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ev := event("dup", "Raipur", core.OutcomeOK, 1, time.Now())

	for i := 0; i < 3; i++ {
		if err := repo.RecordQuery(ctx, ev); err != nil {
			t.Fatalf("RecordQuery #%d: %v", i, err)
		}
	}
	got, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
}

func TestListRecentLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		if err := repo.RecordQuery(ctx, event(id, "Durg", core.OutcomeOK, 1, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}
	got, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "c" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestCountByDistrict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	events := []core.QueryEvent{
		event("1", "Kabirdham", core.OutcomeOK, 3, now),
		event("2", "kawardha", core.OutcomeOK, 2, now),
		event("3", "Raipur", core.OutcomeOK, 5, now),
		event("4", "Raipur", core.OutcomeUpstreamFailed, 0, now),
	}
	for _, ev := range events {
		if err := repo.RecordQuery(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := repo.CountByDistrict(ctx)
	if err != nil {
		t.Fatalf("CountByDistrict: %v", err)
	}
	want := []DistrictCount{
		{District: "KAWARDHA", Queries: 2, Records: 5},
		{District: "RAIPUR", Queries: 1, Records: 5},
	}
	if len(counts) != len(want) {
		t.Fatalf("got %+v", counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("counts[%d]=%+v, want %+v", i, counts[i], want[i])
		}
	}
}

func TestMigrationsAreReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mgnregs.db")
	for i := 0; i < 2; i++ {
		repo, err := NewQueryLogRepository(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		repo.Close()
	}
}
