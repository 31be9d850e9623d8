// Package archive keeps one curated result per subreddit, day and period,
// independent of cache expiry.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/reddit-digest/internal/model"
	"github.com/rcliao/reddit-digest/internal/store"
)

// DateLayout is the format of snapshot dates.
const DateLayout = time.DateOnly

// ErrNotFound is returned by Load when no snapshot matches.
var ErrNotFound = errors.New("snapshot not found")

// Archive stores snapshots in the snapshots table.
type Archive struct {
	db  *store.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *rand.Rand
}

// New returns an Archive over db. now defaults to time.Now when nil.
func New(db *store.DB, now func() time.Time) *Archive {
	if now == nil {
		now = time.Now
	}
	return &Archive{
		db:      db,
		now:     now,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (a *Archive) newID(t time.Time) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), a.entropy).String()
}

// Save upserts today's snapshot for (subreddit, period). An existing row keeps
// its id, date and creation time; only data is replaced.
func (a *Archive) Save(ctx context.Context, subreddit string, period model.Period, data json.RawMessage) error {
	subject := strings.ToLower(model.NormalizeSubreddit(subreddit))
	if subject == "" {
		return fmt.Errorf("save snapshot: empty subreddit")
	}
	if !json.Valid(data) {
		return fmt.Errorf("save snapshot %s: data is not valid json", subject)
	}
	now := a.now().UTC()

	_, err := a.db.Exec(ctx, `
		INSERT INTO snapshots (id, subreddit, snap_date, period, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (subreddit, snap_date, period) DO UPDATE SET data = excluded.data`,
		a.newID(now), subject, now.Format(DateLayout), string(period), string(data), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", subject, err)
	}
	return nil
}

// Load returns the snapshot for (subreddit, date, period). With an empty
// period it returns the most recently created snapshot of that day.
func (a *Archive) Load(ctx context.Context, subreddit, date string, period model.Period) (json.RawMessage, error) {
	subject := strings.ToLower(model.NormalizeSubreddit(subreddit))
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("load snapshot: bad date %q: %w", date, err)
	}

	var row *sql.Row
	if period != "" {
		row = a.db.QueryRow(ctx, `
			SELECT data FROM snapshots
			WHERE subreddit = ? AND snap_date = ? AND period = ?`,
			subject, date, string(period))
	} else {
		row = a.db.QueryRow(ctx, `
			SELECT data FROM snapshots
			WHERE subreddit = ? AND snap_date = ?
			ORDER BY created_at DESC, id DESC
			LIMIT 1`,
			subject, date)
	}

	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot %s %s: %w", subject, date, err)
	}
	return json.RawMessage(data), nil
}

// Dates lists the distinct snapshot dates for subreddit, newest first.
func (a *Archive) Dates(ctx context.Context, subreddit string) ([]string, error) {
	subject := strings.ToLower(model.NormalizeSubreddit(subreddit))
	rows, err := a.db.Query(ctx, `
		SELECT DISTINCT snap_date FROM snapshots
		WHERE subreddit = ?
		ORDER BY snap_date DESC`, subject)
	if err != nil {
		return nil, fmt.Errorf("list snapshot dates %s: %w", subject, err)
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan snapshot date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
