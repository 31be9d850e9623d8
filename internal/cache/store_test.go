package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/reddit-digest/internal/model"
	"github.com/rcliao/reddit-digest/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type backendFactory struct {
	name string
	new  func(t *testing.T) Backend
}

var backendFactories = []backendFactory{
	{"memory", func(t *testing.T) Backend { return NewMemoryBackend() }},
	{"file", func(t *testing.T) Backend {
		b, err := NewFileBackend(filepath.Join(t.TempDir(), "cache"))
		if err != nil {
			t.Fatalf("new file backend: %v", err)
		}
		return b
	}},
	{"sqlite", func(t *testing.T) Backend {
		db, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "cache.db"))
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		return NewSQLBackend(db)
	}},
}

func newTestStore(t *testing.T, b Backend) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s := New(b, WithClock(clock.Now))
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b Backend)) {
	for _, f := range backendFactories {
		t.Run(f.name, func(t *testing.T) {
			fn(t, f.new(t))
		})
	}
}

func subjectKey(subject string, limit int, p model.Period) string {
	return SubjectKey{Subject: subject, Limit: limit, Period: p}.String()
}

func TestSetAndGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, _ := newTestStore(t, b)

		payload := json.RawMessage(`{"hello":"world"}`)
		if err := s.Set(ctx, "prompts", "some key", payload, time.Hour); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, ok := s.Get(ctx, "prompts", "some key")
		if !ok {
			t.Fatal("expected hit")
		}
		if string(got) != string(payload) {
			t.Errorf("got %s, want %s", got, payload)
		}

		key := subjectKey("golang", 20, model.PeriodWeek)
		if err := s.Set(ctx, SubjectNamespace, key, payload, time.Hour); err != nil {
			t.Fatalf("set subject: %v", err)
		}
		got, ok = s.Get(ctx, SubjectNamespace, key)
		if !ok || string(got) != string(payload) {
			t.Errorf("subject get = %s, %v", got, ok)
		}
	})
}

func TestGetMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, _ := newTestStore(t, b)

		if _, ok := s.Get(ctx, "ns", "nope"); ok {
			t.Error("expected miss for missing key")
		}
		if _, ok := s.Get(ctx, SubjectNamespace, subjectKey("golang", 5, model.PeriodDay)); ok {
			t.Error("expected miss for missing subject")
		}
		if _, ok := s.Get(ctx, SubjectNamespace, "not a subject key"); ok {
			t.Error("expected miss for unparsable key")
		}
	})
}

func TestSetOverwrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, _ := newTestStore(t, b)

		s.Set(ctx, "ns", "k", json.RawMessage(`1`), time.Hour)
		s.Set(ctx, "ns", "k", json.RawMessage(`2`), time.Hour)

		got, ok := s.Get(ctx, "ns", "k")
		if !ok || string(got) != "2" {
			t.Errorf("got %s, %v; want 2", got, ok)
		}
		ids, _ := b.List(ctx, "ns")
		if len(ids) != 1 {
			t.Errorf("expected 1 record, got %d", len(ids))
		}
	})
}

func TestExpiredEntryIsRemoved(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, clock := newTestStore(t, b)

		s.Set(ctx, "ns", "k", json.RawMessage(`"v"`), time.Minute)
		clock.Advance(time.Minute)

		if _, ok := s.Get(ctx, "ns", "k"); ok {
			t.Fatal("expected miss at expiry")
		}
		if _, err := b.Read(ctx, "ns", hashKey("k")); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected record removed, got err=%v", err)
		}
	})
}

func TestExpiredSubjectEntryIsRemoved(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, clock := newTestStore(t, b)

		short := subjectKey("golang", 10, model.PeriodWeek)
		long := subjectKey("golang", 20, model.PeriodWeek)
		s.Set(ctx, SubjectNamespace, short, json.RawMessage(`"short"`), time.Minute)
		s.Set(ctx, SubjectNamespace, long, json.RawMessage(`"long"`), time.Hour)
		clock.Advance(2 * time.Minute)

		if _, ok := s.Get(ctx, SubjectNamespace, short); ok {
			t.Fatal("expected miss for expired entry")
		}
		raw, err := b.Read(ctx, SubjectNamespace, "golang")
		if err != nil {
			t.Fatalf("read document: %v", err)
		}
		doc, err := decodeSubjectDocument(raw)
		if err != nil {
			t.Fatalf("decode document: %v", err)
		}
		if _, ok := doc.Week["limit=10"]; ok {
			t.Error("expected expired entry pruned from document")
		}
		if _, ok := s.Get(ctx, SubjectNamespace, long); !ok {
			t.Error("expected live sibling entry to survive")
		}
	})
}

func TestSubjectPeriodsDoNotOverwrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, _ := newTestStore(t, b)

		s.Set(ctx, SubjectNamespace, subjectKey("Golang", 20, model.PeriodDay), json.RawMessage(`"day"`), time.Hour)
		s.Set(ctx, SubjectNamespace, subjectKey("golang", 20, model.PeriodMonth), json.RawMessage(`"month"`), time.Hour)

		day, ok1 := s.Get(ctx, SubjectNamespace, subjectKey("golang", 20, model.PeriodDay))
		month, ok2 := s.Get(ctx, SubjectNamespace, subjectKey("GOLANG", 20, model.PeriodMonth))
		if !ok1 || !ok2 {
			t.Fatalf("expected both periods readable, got %v %v", ok1, ok2)
		}
		if string(day) != `"day"` || string(month) != `"month"` {
			t.Errorf("got day=%s month=%s", day, month)
		}
	})
}

func TestSubjectDocumentHasAllPeriods(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, _ := newTestStore(t, b)

		s.Set(ctx, SubjectNamespace, subjectKey("golang", 20, model.PeriodDay), json.RawMessage(`1`), time.Hour)

		raw, err := b.Read(ctx, SubjectNamespace, "golang")
		if err != nil {
			t.Fatalf("read document: %v", err)
		}
		var top map[string]map[string]json.RawMessage
		if err := json.Unmarshal(raw, &top); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		for _, p := range model.Periods {
			if _, ok := top[string(p)]; !ok {
				t.Errorf("missing %s bucket", p)
			}
		}
		if len(top[string(model.PeriodDay)]) != 1 {
			t.Errorf("expected 1 day entry, got %d", len(top[string(model.PeriodDay)]))
		}
	})
}

func TestCorruptRecordIsRemoved(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, _ := newTestStore(t, b)

		// Valid JSON with the wrong shape, so the SQL backend accepts it too.
		b.Write(ctx, Record{Namespace: "ns", ID: hashKey("k"), Data: []byte(`{"unexpected":true}`)})

		if _, ok := s.Get(ctx, "ns", "k"); ok {
			t.Fatal("expected miss for corrupt record")
		}
		if _, err := b.Read(ctx, "ns", hashKey("k")); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected corrupt record removed, got err=%v", err)
		}
	})
}

func TestCorruptSubjectDocumentIsRemoved(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, _ := newTestStore(t, b)

		// missing the 1month bucket
		b.Write(ctx, Record{Namespace: SubjectNamespace, ID: "golang", Data: []byte(`{"1d":{},"1week":{}}`)})

		if _, ok := s.Get(ctx, SubjectNamespace, subjectKey("golang", 20, model.PeriodDay)); ok {
			t.Fatal("expected miss for corrupt document")
		}
		if _, err := b.Read(ctx, SubjectNamespace, "golang"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected corrupt document removed, got err=%v", err)
		}
	})
}

func TestSetReplacesCorruptSubjectDocument(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	s, _ := newTestStore(t, b)

	b.Write(ctx, Record{Namespace: SubjectNamespace, ID: "golang", Data: []byte(`not json`)})
	key := subjectKey("golang", 20, model.PeriodDay)
	if err := s.Set(ctx, SubjectNamespace, key, json.RawMessage(`"fresh"`), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, ok := s.Get(ctx, SubjectNamespace, key); !ok || string(got) != `"fresh"` {
		t.Errorf("got %s, %v", got, ok)
	}
}

func TestSetPrunesExpiredInBucket(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	s, clock := newTestStore(t, b)

	s.Set(ctx, SubjectNamespace, subjectKey("golang", 5, model.PeriodWeek), json.RawMessage(`5`), time.Minute)
	clock.Advance(time.Hour)
	s.Set(ctx, SubjectNamespace, subjectKey("golang", 10, model.PeriodWeek), json.RawMessage(`10`), time.Hour)

	raw, _ := b.Read(ctx, SubjectNamespace, "golang")
	doc, err := decodeSubjectDocument(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Week) != 1 {
		t.Errorf("expected expired sibling pruned, bucket has %d entries", len(doc.Week))
	}
}

func TestSetRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, NewMemoryBackend())

	if err := s.Set(ctx, "ns", "k", json.RawMessage(`1`), 0); err == nil {
		t.Error("expected error for zero ttl")
	}
	if err := s.Set(ctx, "ns", "k", json.RawMessage(`{`), time.Hour); err == nil {
		t.Error("expected error for invalid json")
	}
	if err := s.Set(ctx, SubjectNamespace, "golang", json.RawMessage(`1`), time.Hour); err == nil {
		t.Error("expected error for bad subject key")
	}
}

func TestSetRejectsNullPayload(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, _ := newTestStore(t, b)

		if err := s.Set(ctx, "ns", "k", json.RawMessage(` null `), time.Hour); err == nil {
			t.Error("expected error for null payload")
		}
		if err := s.Set(ctx, SubjectNamespace, subjectKey("golang", 5, model.PeriodWeek), json.RawMessage(`null`), time.Hour); err == nil {
			t.Error("expected error for null subject payload")
		}
		if _, ok := s.Get(ctx, "ns", "k"); ok {
			t.Error("null payload was stored")
		}

		// every other json value round-trips
		for _, payload := range []string{`0`, `""`, `false`, `[]`, `{}`} {
			if err := s.Set(ctx, "ns", "k", json.RawMessage(payload), time.Hour); err != nil {
				t.Fatalf("set %s: %v", payload, err)
			}
			got, ok := s.Get(ctx, "ns", "k")
			if !ok || string(got) != payload {
				t.Errorf("get after set %s = %s, %v", payload, got, ok)
			}
		}
	})
}

func TestConcurrentSubjectWrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		s, _ := newTestStore(t, b)

		subjects := []string{"golang", "rust"}
		var wg sync.WaitGroup
		for _, subject := range subjects {
			for limit := 1; limit <= 10; limit++ {
				wg.Add(1)
				go func(subject string, limit int) {
					defer wg.Done()
					p := model.Periods[limit%len(model.Periods)]
					payload := json.RawMessage(fmt.Sprintf(`{"n":%d}`, limit))
					s.Set(ctx, SubjectNamespace, subjectKey(subject, limit, p), payload, time.Hour)
				}(subject, limit)
			}
		}
		wg.Wait()

		for _, subject := range subjects {
			raw, err := b.Read(ctx, SubjectNamespace, subject)
			if err != nil {
				t.Fatalf("read %s: %v", subject, err)
			}
			doc, err := decodeSubjectDocument(raw)
			if err != nil {
				t.Fatalf("decode %s: %v", subject, err)
			}
			if doc.Len() != 10 {
				t.Errorf("%s: expected 10 entries, got %d", subject, doc.Len())
			}
		}
	})
}

func TestConcurrentSameKeyWrites(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, NewMemoryBackend())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set(ctx, "ns", "k", json.RawMessage(fmt.Sprintf(`{"writer":%d}`, i)), time.Hour)
		}(i)
	}
	wg.Wait()

	got, ok := s.Get(ctx, "ns", "k")
	if !ok {
		t.Fatal("expected hit")
	}
	var v struct{ Writer int }
	if err := json.Unmarshal(got, &v); err != nil {
		t.Errorf("payload not a whole write: %s", got)
	}
}

func TestGetJSON(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, NewMemoryBackend())

	type payload struct{ N int }
	s.SetJSON(ctx, "ns", "k", payload{N: 7}, time.Hour)

	got, ok := GetJSON[payload](ctx, s, "ns", "k")
	if !ok || got.N != 7 {
		t.Errorf("got %+v, %v", got, ok)
	}
	if _, ok := GetJSON[[]int](ctx, s, "ns", "k"); ok {
		t.Error("expected miss for payload of another shape")
	}
}
