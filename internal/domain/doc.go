// Package domain defines the core business types for the support-interaction
// ingestion pipeline.
//
// Types in this package are pure value objects with no behavior beyond small
// pure helpers. They are the shared language between the source readers, the
// threading and validation stages, and the sinks.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Constants and enums belong here
package domain
