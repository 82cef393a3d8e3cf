// Package core provides the business logic for NEM12 conversion operations.
//
// This package is the heart of the converter, containing all orchestration
// logic independent of any UI or transport layer. It can be used by web
// handlers, CLI tools, or tests without modification. The parsing and SQL
// generation themselves live in the nem12 package; core wraps them with
// lifecycle, concurrency, and progress tracking.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Service: The main entry point for all operations (start, subscribe,
//     query, history).
//   - Conversions: Each accepted file becomes a conversion job processed by
//     one background goroutine, tracked in a registry until the janitor
//     sweeps it.
//   - Limiter: A semaphore bounding how many conversions run at once.
//   - History: A bounded ring of summaries that outlives swept jobs.
//
// # Conversion Flow
//
// Conversions process data in a streaming fashion with O(batch_size) memory
// for parsing, regardless of file size. The flow is:
//
//  1. Client calls [Service.Start] with an io.Reader
//  2. The source is read in batches of [Config.BatchRows] rows
//  3. Each batch runs through the NEM12 interpreter, carrying reading
//     context across batch boundaries
//  4. Progress is broadcast to subscribers via [Service.SubscribeProgress]
//  5. On EOF the accumulated readings are formatted into SQL statements
//
// A conversion that has started always runs to completion or source
// failure. Malformed rows inside the file never fail a conversion; they are
// skipped by the interpreter. When the source itself errors, everything
// emitted before the failure is kept and the error is surfaced verbatim
// behind the "Error parsing CSV file: " prefix.
//
// # Error Handling
//
// Technical errors on the request path are mapped to user-friendly messages
// using [MapError]. Each error category has a unique code for support
// reference:
//
//   - FILE001-FILE005: File errors (size, encoding, format)
//   - CNV001-CNV004: Conversion errors (busy, not found, timeout)
//   - RATE001: Rate limiting
//
// # Cleanup
//
// Finished conversions stay queryable for [JanitorConfig.JobTTL] so clients
// can fetch the result, the readings, and the SQL script after the stream
// ends. [Service.StartJanitor] sweeps expired jobs; their summaries remain
// available through [Service.History].
package core
