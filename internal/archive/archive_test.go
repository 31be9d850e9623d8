package archive

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/reddit-digest/internal/model"
	"github.com/rcliao/reddit-digest/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestArchive(t *testing.T) (*Archive, *clock, *store.DB) {
	t.Helper()
	db, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	c := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return New(db, c.Now), c, db
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestArchive(t)

	if err := a.Save(ctx, "r/GoLang", model.PeriodWeek, json.RawMessage(`{"n":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := a.Load(ctx, "golang", "2025-03-01", model.PeriodWeek)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"n":1}` {
		t.Errorf("got %s", got)
	}
}

func TestSaveOverwritesSameDay(t *testing.T) {
	ctx := context.Background()
	a, c, db := newTestArchive(t)

	a.Save(ctx, "golang", model.PeriodWeek, json.RawMessage(`{"v":1}`))
	var id1 string
	var created1 int64
	db.QueryRow(ctx, `SELECT id, created_at FROM snapshots`).Scan(&id1, &created1)

	c.Set(c.Now().Add(3 * time.Hour))
	a.Save(ctx, "golang", model.PeriodWeek, json.RawMessage(`{"v":2}`))

	var count int
	db.QueryRow(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&count)
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
	var id2 string
	var created2 int64
	db.QueryRow(ctx, `SELECT id, created_at FROM snapshots`).Scan(&id2, &created2)
	if id1 != id2 || created1 != created2 {
		t.Errorf("row identity changed: %s/%d -> %s/%d", id1, created1, id2, created2)
	}
	got, _ := a.Load(ctx, "golang", "2025-03-01", model.PeriodWeek)
	if string(got) != `{"v":2}` {
		t.Errorf("got %s", got)
	}
}

func TestLoadWithoutPeriodReturnsLatest(t *testing.T) {
	ctx := context.Background()
	a, c, _ := newTestArchive(t)

	a.Save(ctx, "golang", model.PeriodMonth, json.RawMessage(`"month"`))
	c.Set(c.Now().Add(time.Hour))
	a.Save(ctx, "golang", model.PeriodDay, json.RawMessage(`"day"`))

	got, err := a.Load(ctx, "golang", "2025-03-01", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `"day"` {
		t.Errorf("got %s, want the most recent snapshot", got)
	}
}

func TestLoadNotFound(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestArchive(t)

	if _, err := a.Load(ctx, "golang", "2025-03-01", model.PeriodWeek); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := a.Load(ctx, "golang", "03/01/2025", ""); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected bad date error, got %v", err)
	}
}

func TestDates(t *testing.T) {
	ctx := context.Background()
	a, c, _ := newTestArchive(t)

	for _, day := range []int{3, 1, 2} {
		c.Set(time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC))
		a.Save(ctx, "golang", model.PeriodWeek, json.RawMessage(`{}`))
		a.Save(ctx, "golang", model.PeriodDay, json.RawMessage(`{}`))
	}
	a.Save(ctx, "rust", model.PeriodWeek, json.RawMessage(`{}`))

	dates, err := a.Dates(ctx, "GoLang")
	if err != nil {
		t.Fatalf("dates: %v", err)
	}
	want := []string{"2025-03-03", "2025-03-02", "2025-03-01"}
	if len(dates) != len(want) {
		t.Fatalf("got %v, want %v", dates, want)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("dates[%d] = %s, want %s", i, dates[i], want[i])
		}
	}

	empty, err := a.Dates(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Errorf("expected no dates, got %v, %v", empty, err)
	}
}

func TestSaveRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestArchive(t)

	if err := a.Save(ctx, "  ", model.PeriodWeek, json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for empty subreddit")
	}
	if err := a.Save(ctx, "golang", model.PeriodWeek, json.RawMessage(`{`)); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestSaveSurfacesErrors(t *testing.T) {
	ctx := context.Background()
	a, _, db := newTestArchive(t)
	db.Close()

	if err := a.Save(ctx, "golang", model.PeriodWeek, json.RawMessage(`{}`)); err == nil {
		t.Error("expected error from closed database")
	}
}
