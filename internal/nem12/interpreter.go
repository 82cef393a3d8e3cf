package nem12

// interpreter.go turns raw NEM12 rows into MeterReading values.
//
// Dispatch is on the first field of each row, the record-type indicator.
// Emission order equals input order: rows are processed top to bottom and
// the consumption fields of an interval record left to right. Nothing is
// sorted, deduplicated, or buffered beyond the ParserContext.

import (
	"fmt"
	"math"
	"strconv"
)

// Process runs one batch of rows against pc and returns the readings they
// produce, in input order. Batches of the same run must be processed
// sequentially with the same context; pc is the only state carried across
// calls.
//
// Malformed rows degrade to skips, never errors: a details record with a
// bad interval length closes the block until a valid one arrives, interval
// records outside an open block emit nothing, and non-numeric consumption
// fields are dropped one field at a time while later fields keep their
// positional interval index.
func Process(rows [][]string, pc *ParserContext) []MeterReading {
	var readings []MeterReading

	for _, row := range rows {
		switch field(row, 0) {
		case recordDetails:
			pc.NMI = field(row, 1)
			pc.IntervalLength = parseIntervalLength(field(row, 8))
		case recordInterval:
			readings = appendIntervalReadings(readings, row, pc)
		default:
			// 100 header, 400 quality, 500 b2b, 900 end, or garbage:
			// no state change, no output.
		}
	}

	return readings
}

// appendIntervalReadings emits one reading per numeric consumption field of
// a "300" row. Field 1 is the day, fields 2.. are interval values counted
// from midnight.
func appendIntervalReadings(readings []MeterReading, row []string, pc *ParserContext) []MeterReading {
	if !pc.open() {
		return readings
	}

	date := formatDate(field(row, 1))

	for i := 2; i < len(row); i++ {
		v, ok := parseConsumption(row[i])
		if !ok {
			continue
		}
		readings = append(readings, MeterReading{
			NMI:         pc.NMI,
			Timestamp:   intervalTimestamp(date, i-2, pc.IntervalLength),
			Consumption: v,
		})
	}

	return readings
}

// parseIntervalLength parses a details record's interval-length field.
// Anything that is not a plain base-10 integer yields 0, which keeps the
// block closed until a later details record supplies a usable value.
func parseIntervalLength(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// parseConsumption parses an interval value. Only finite numbers qualify;
// ParseFloat accepts "NaN" and "Inf" spellings, which must not become
// readings.
func parseConsumption(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// formatDate splits an 8-digit YYYYMMDD value into YYYY-MM-DD. The split is
// purely positional: short or malformed input produces a short or malformed
// date, never an error.
func formatDate(raw string) string {
	return clip(raw, 0, 4) + "-" + clip(raw, 4, 6) + "-" + clip(raw, 6, 8)
}

// intervalTimestamp renders the start of interval index i (0-based) on the
// given date. The offset is i*intervalLength minutes from midnight; the
// hour is not wrapped at 24.
func intervalTimestamp(date string, i, intervalLength int) string {
	offset := i * intervalLength
	return fmt.Sprintf("%s %02d:%02d:00", date, offset/60, offset%60)
}

// field returns row[i], or "" when the row is too short to have one.
func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

// clip is s[from:to] with both bounds clamped to len(s).
func clip(s string, from, to int) string {
	if from > len(s) {
		from = len(s)
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}
