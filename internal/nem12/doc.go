// Package nem12 converts NEM12 interval-metering CSV data into SQL INSERT
// statements.
//
// NEM12 is the Australian market format for interval meter data. Every row
// is a CSV record whose first field is a numeric record-type indicator.
// Only two of them matter for conversion:
//
//   - "200" details records open a metering-point block: they carry the NMI
//     (National Metering Identifier) and the interval length in minutes.
//   - "300" interval records carry one calendar day of consumption values,
//     one field per interval, in chronological order.
//
// All other record types (100 header, 400 quality, 500 b2b, 900 end) are
// skipped without touching state or output.
//
// # Conversion flow
//
// Input is consumed in bounded batches through [BatchReader], so memory
// stays O(batch_size) regardless of file size. Each batch is handed to
// [Process] together with a [ParserContext] that carries the current
// metering-point block across batch boundaries. Process emits one
// [MeterReading] per numeric interval value, in file order. [Statement]
// and [Script] render readings as INSERT statements against the
// meter_readings table.
//
// # Failure handling
//
// Malformed content never fails a run. A details record with an unusable
// interval length disables emission until the next valid one, non-numeric
// consumption fields are dropped individually, and date strings pass
// through positionally without calendar validation. The only error path is
// the underlying reader itself failing, which [BatchReader.ReadBatch]
// surfaces unchanged.
package nem12
