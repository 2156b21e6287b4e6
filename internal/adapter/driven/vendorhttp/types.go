package vendorhttp

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// ID is a vendor identifier that may arrive as a JSON string or number.
type ID string

// UnmarshalJSON accepts strings, integers and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// EpochTime converts vendor unix-second timestamps; zero means absent.
func EpochTime(secs int64) *time.Time {
	if secs <= 0 {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

// ParseTime tries the timestamp layouts vendors use and returns nil when none
// match.
func ParseTime(s string, loc *time.Location) *time.Time {
	if s == "" {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		time.DateTime,
		"2006-01-02T15:04:05",
		time.DateOnly,
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return EpochTime(secs)
	}
	return nil
}

// Records decodes a JSON array element by element. Elements that fail to
// decode are counted in Skipped instead of failing the whole response.
type Records[T any] struct {
	Items   []T
	Skipped int
}

// UnmarshalJSON accepts an array or null.
func (r *Records[T]) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("expected array: %w", err)
	}

	r.Items = make([]T, 0, len(raw))
	r.Skipped = 0
	for i, elem := range raw {
		var item T
		if err := json.Unmarshal(elem, &item); err != nil {
			slog.Warn("skipping malformed record", "type", fmt.Sprintf("%T", item), "index", i, "error", err)
			r.Skipped++
			continue
		}
		r.Items = append(r.Items, item)
	}
	return nil
}

// Len counts every element of the array, decoded or not. Pagination uses it
// so a page of malformed records does not look like the last page.
func (r Records[T]) Len() int { return len(r.Items) + r.Skipped }

// LogSkipped reports skipped records with the vendor and operation context.
func (r Records[T]) LogSkipped(vendor model.Vendor, op string) {
	if r.Skipped > 0 {
		slog.Warn("malformed records skipped", "vendor", vendor, "op", op, "skipped", r.Skipped, "kept", len(r.Items))
	}
}
