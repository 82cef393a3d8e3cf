package nem12

// Record-type indicators, matched exactly against the first CSV field.
const (
	recordDetails  = "200"
	recordInterval = "300"
)

// MeterReading is one interval consumption value tied to a metering point
// and the interval's start time.
type MeterReading struct {
	// NMI identifies the metering point, copied verbatim from the most
	// recent details record.
	NMI string

	// Timestamp is the interval start rendered as "YYYY-MM-DD HH:MM:SS".
	// It stays a string end to end: date digits pass through from the
	// source file without calendar validation, and the hour keeps
	// counting past 23 when interval fields overrun the day.
	Timestamp string

	// Consumption is the interval value. Always finite.
	Consumption float64
}

// ParserContext carries the open metering-point block between batches of a
// single parse run. Details records rewrite it wholesale, interval records
// only read it. Each run starts from a zero ParserContext and discards it
// at the end, so no state leaks into the next file.
type ParserContext struct {
	// NMI of the current block. Empty until the first details record.
	NMI string

	// IntervalLength is the block's interval length in minutes. Zero or
	// negative means "not yet known" and suppresses interval records.
	IntervalLength int
}

// open reports whether a details record has established a usable block.
// Interval records arriving before that are dropped.
func (pc *ParserContext) open() bool {
	return pc.NMI != "" && pc.IntervalLength > 0
}
