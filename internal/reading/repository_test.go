package reading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/coop-bridge/internal/infrastructure/database"
	"github.com/nerrad567/coop-bridge/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.Source()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestSQLiteRepository_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openTestDB(t).DB)

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i, v := range []float64{68, 69, 70, 71.5} {
		rd := Reading{Channel: ChannelTemperature, Value: v, ObservedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Append(ctx, rd); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := repo.Append(ctx, Reading{Channel: ChannelBrightness, Value: 40, ObservedAt: base}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		since time.Time
		limit int
		want  []float64
	}{
		{"all", base, 10, []float64{68, 69, 70, 71.5}},
		{"newest two", base, 2, []float64{70, 71.5}},
		{"window", base.Add(90 * time.Second), 10, []float64{70, 71.5}},
		{"empty window", base.Add(time.Hour), 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Recent(ctx, ChannelTemperature, tt.since, tt.limit)
			if err != nil {
				t.Fatalf("Recent() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Recent() len = %d, want %d", len(got), len(tt.want))
			}
			for i, v := range tt.want {
				if got[i].Value != v || got[i].Channel != ChannelTemperature {
					t.Errorf("Recent()[%d] = %+v, want %v", i, got[i], v)
				}
			}
		})
	}
}

func TestSQLiteRepository_BackfillsLog(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openTestDB(t).DB)

	now := time.Now()
	for i := 0; i < 5; i++ {
		rd := Reading{Channel: ChannelBrightness, Value: float64(i * 10), ObservedAt: now.Add(-time.Duration(5-i) * time.Minute)}
		if err := repo.Append(ctx, rd); err != nil {
			t.Fatal(err)
		}
	}

	l := NewLog(Config{MaxSamples: 3, Window: time.Hour})
	stored, err := repo.Recent(ctx, ChannelBrightness, now.Add(-time.Hour), 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Backfill(ChannelBrightness, stored); err != nil {
		t.Fatal(err)
	}

	got := l.Recent(ChannelBrightness)
	if len(got) != 3 || got[0].Value != 20 || got[2].Value != 40 {
		t.Errorf("backfilled Recent() = %+v", got)
	}
	if !got[0].ObservedAt.Equal(stored[0].ObservedAt) {
		t.Errorf("observed_at round trip: %v != %v", got[0].ObservedAt, stored[0].ObservedAt)
	}
}

func TestSQLiteRepository_UnknownChannel(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openTestDB(t).DB)

	if err := repo.Append(ctx, Reading{Channel: "humidity"}); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Append(humidity) error = %v", err)
	}
	if _, err := repo.Recent(ctx, "humidity", time.Time{}, 1); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Recent(humidity) error = %v", err)
	}
}
