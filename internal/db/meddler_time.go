package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/russross/meddler"
)

func init() {
	// Register custom meddler converter for time.Time fields
	meddler.Register("utctime", UTCTimeMeddler{})
}

// TimeLayout is a fixed-width RFC3339 layout with nanosecond precision.
// Unlike time.RFC3339Nano it never trims trailing zeros, so stored
// timestamps order lexicographically and can be compared in SQL.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// UTCTimeMeddler converts between time.Time and an RFC3339 string column,
// always normalized to UTC so stored histories are byte-identical across runs.
type UTCTimeMeddler struct{}

func (m UTCTimeMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	// Use sql.NullString to handle NULL values
	return new(sql.NullString), nil
}

func (m UTCTimeMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(*time.Time)
	if !ok {
		return fmt.Errorf("expected *time.Time, got %T", fieldAddr)
	}

	if !ns.Valid || ns.String == "" {
		*ptr = time.Time{}
		return nil
	}

	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return fmt.Errorf("invalid stored timestamp %q: %w", ns.String, err)
	}
	*ptr = t.UTC()
	return nil
}

func (m UTCTimeMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	t, ok := field.(time.Time)
	if !ok {
		return nil, fmt.Errorf("expected time.Time, got %T", field)
	}
	return t.UTC().Format(TimeLayout), nil
}
