// Package storage implements an embedded, append-only time-series log of
// fixed-size lines with random access by timestamp.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Series    │────▶│  Datastore  │     │    Index    │
//	│  (facade)   │     │ (<name>.data│     │ (<name>.h)  │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	       │                   ▲                   ▲
//	       ▼                   │                   │
//	┌─────────────┐            │                   │
//	│ Range search│────────────┴───────────────────┘
//	│  + decoder  │
//	└─────────────┘
//
// Each line stores only the low 16 bits of its Unix timestamp. The index
// records a full timestamp and the line offset at most once per 2^16
// seconds; full timestamps are rebuilt while scanning by combining the
// upper bits of the anchoring checkpoint with the stored low bits.
//
// A range read resolves the requested start and stop times to byte offsets
// (index lookup plus a linear scan of at most one checkpoint window) and
// then decodes the lines in between in batches.
package storage
