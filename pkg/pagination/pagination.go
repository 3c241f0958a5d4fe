package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrMalformedCursor marks continuation tokens the server cannot interpret.
var ErrMalformedCursor = errors.New("malformed cursor")

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1

	cursorVersion = 1
)

// Params holds validated offset pagination parameters
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse extracts and validates page/limit from query parameters
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))

	if page < 1 {
		page = DefaultPage
	}
	if limit < MinLimit {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// ParseLimit validates a bare limit query parameter for cursor-based lists
func ParseLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	if limit < MinLimit {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit
}

// Cursor is an opaque continuation token for keyset pagination. Key-ordered
// collections set LastKey, time-ordered ones set Before; time-ordered
// collections whose timestamps can collide set both, with LastKey breaking
// the tie. The token is versioned so stale clients fail loudly instead of
// silently skipping rows.
type Cursor struct {
	Version int        `json:"v"`
	LastKey string     `json:"k,omitempty"`
	Before  *time.Time `json:"t,omitempty"`
}

// AfterKey builds a cursor continuing after the given ordering key
func AfterKey(key string) Cursor {
	return Cursor{Version: cursorVersion, LastKey: key}
}

// BeforeTime builds a cursor continuing before the given timestamp
func BeforeTime(t time.Time) Cursor {
	return Cursor{Version: cursorVersion, Before: &t}
}

// BeforeTimeKey builds a compound cursor continuing before the (timestamp,
// key) pair. Rows sharing the boundary timestamp are not skipped: only those
// with a key at or above the boundary key are excluded.
func BeforeTimeKey(t time.Time, key string) Cursor {
	return Cursor{Version: cursorVersion, Before: &t, LastKey: key}
}

// Encode serializes the cursor as a URL-safe opaque string
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a cursor previously produced by Encode. An empty token
// yields a zero cursor (start from the beginning).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}

	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	if c.Version != cursorVersion {
		return Cursor{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedCursor, c.Version)
	}
	return c, nil
}

// IsZero reports whether the cursor points at the start of the collection
func (c Cursor) IsZero() bool {
	return c.LastKey == "" && c.Before == nil
}

// CutPage trims a limit+1 fetch down to the page and reports whether more
// rows remain. Repositories over-fetch by one row to detect the last page.
func CutPage[T any](rows []T, limit int) ([]T, bool) {
	if len(rows) > limit {
		return rows[:limit], true
	}
	return rows, false
}

// SortTimeDesc orders rows newest-first by the given timestamp accessor,
// breaking timestamp ties by key descending so the order matches the
// compound keyset query. Used as the degraded path when the backing store
// cannot satisfy an ordered query: same semantics as the indexed query, at
// full-scan cost.
func SortTimeDesc[T any](rows []T, at func(T) time.Time, key func(T) string) {
	sort.SliceStable(rows, func(i, j int) bool {
		ti, tj := at(rows[i]), at(rows[j])
		if ti.Equal(tj) {
			return key(rows[i]) > key(rows[j])
		}
		return ti.After(tj)
	})
}

// FilterBefore keeps rows strictly before the (time, key) cursor bound,
// matching the compound keyset predicate of the ordered query. An empty
// beforeKey degrades to a plain time bound: rows sharing the boundary
// timestamp are dropped.
func FilterBefore[T any](rows []T, before *time.Time, beforeKey string, at func(T) time.Time, key func(T) string) []T {
	if before == nil {
		return rows
	}
	out := rows[:0]
	for _, r := range rows {
		t := at(r)
		if t.Before(*before) || (beforeKey != "" && t.Equal(*before) && key(r) < beforeKey) {
			out = append(out, r)
		}
	}
	return out
}
