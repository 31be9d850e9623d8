package cache

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/minio/sha256-simd"

	"github.com/rcliao/reddit-digest/internal/model"
)

// SubjectNamespace is the namespace whose entries are grouped into one
// SubjectDocument per subject instead of one record per key.
const SubjectNamespace = "subreddit_research"

const (
	keySep       = "::"
	limitPrefix  = "limit="
	periodPrefix = "period="
)

// SubjectKey is the logical key of a SubjectNamespace entry.
type SubjectKey struct {
	Subject string
	Limit   int
	Period  model.Period
}

// String serializes k as "<subject>::limit=<N>::period=<P>" with a lowercased subject.
func (k SubjectKey) String() string {
	return strings.ToLower(strings.TrimSpace(k.Subject)) + keySep +
		limitPrefix + strconv.Itoa(k.Limit) + keySep +
		periodPrefix + string(k.Period)
}

// LimitKey is the key of k inside its period bucket.
func (k SubjectKey) LimitKey() string {
	return limitPrefix + strconv.Itoa(k.Limit)
}

// ParseSubjectKey is the inverse of SubjectKey.String.
func ParseSubjectKey(raw string) (SubjectKey, error) {
	parts := strings.Split(raw, keySep)
	if len(parts) != 3 {
		return SubjectKey{}, fmt.Errorf("parse subject key %q: want 3 segments, got %d", raw, len(parts))
	}
	subject := strings.ToLower(strings.TrimSpace(parts[0]))
	if subject == "" {
		return SubjectKey{}, fmt.Errorf("parse subject key %q: empty subject", raw)
	}
	limit, err := parseLimitKey(parts[1])
	if err != nil {
		return SubjectKey{}, fmt.Errorf("parse subject key %q: %w", raw, err)
	}
	period, ok := strings.CutPrefix(parts[2], periodPrefix)
	if !ok || !model.Period(period).Valid() {
		return SubjectKey{}, fmt.Errorf("parse subject key %q: bad period segment", raw)
	}
	return SubjectKey{Subject: subject, Limit: limit, Period: model.Period(period)}, nil
}

func parseLimitKey(s string) (int, error) {
	digits, ok := strings.CutPrefix(s, limitPrefix)
	if !ok {
		return 0, fmt.Errorf("bad limit segment %q", s)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad limit segment %q", s)
	}
	return n, nil
}

// sanitizeID lowercases s and replaces anything outside [a-z0-9-_.] with '_'.
func sanitizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			b[i] = '_'
		}
	}
	if len(b) == 0 {
		return "_"
	}
	return string(b)
}

// hashKey is the physical id for keys outside SubjectNamespace.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
