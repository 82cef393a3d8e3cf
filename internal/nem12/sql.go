package nem12

// sql.go renders meter readings as SQL INSERT statements.
//
// Statements are literal text destined for a clipboard or a .sql file, not
// for a driver, so values are inlined rather than parameterized. The
// timestamp column is double-quoted because it collides with a reserved
// word in most dialects.

import (
	"fmt"
	"strconv"
	"strings"
)

// Statement renders one reading as an INSERT against meter_readings. NMI
// and timestamp are single-quoted verbatim; embedded quotes are not
// escaped. Consumption is the shortest decimal form that round-trips the
// value.
func Statement(r MeterReading) string {
	return fmt.Sprintf(
		"INSERT INTO meter_readings (nmi, \"timestamp\", consumption) VALUES ('%s', '%s', %s);",
		r.NMI, r.Timestamp, strconv.FormatFloat(r.Consumption, 'f', -1, 64),
	)
}

// Statements renders every reading, one statement per element, preserving
// order.
func Statements(readings []MeterReading) []string {
	out := make([]string, len(readings))
	for i, r := range readings {
		out[i] = Statement(r)
	}
	return out
}

// Script joins all statements with newlines into a single executable
// block. An empty input yields the empty string.
func Script(readings []MeterReading) string {
	return strings.Join(Statements(readings), "\n")
}
