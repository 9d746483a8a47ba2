// Package memory implements the per-agent experience log with composite
// recency/importance/relevance retrieval.
package memory

import "time"

// Kind classifies a memory record.
type Kind string

const (
	// KindObservation is a raw experience: an inbound message or the agent's
	// own reply.
	KindObservation Kind = "observation"

	// KindReflection is a synthesized higher-level insight.
	KindReflection Kind = "reflection"

	// KindPlan is a generated agenda summary.
	KindPlan Kind = "plan"

	// KindSystemEvent is a cross-subsystem injection.
	KindSystemEvent Kind = "system_event"
)

// Record is one immutable unit of an agent's experience log.
//
// Once written a record never changes, with a single exception: LastAccessed
// advances monotonically each time the record is returned from retrieval.
// Records are never deleted; the journal is the sole source of truth for an
// agent's experience.
type Record struct {
	// ID is the unique record identifier (snowflake).
	ID int64

	// Description is the record text.
	Description string

	// CreatedAt is when the record was written.
	CreatedAt time.Time

	// LastAccessed is when the record was last returned from retrieval.
	// Drives the recency term of the retrieval score.
	LastAccessed time.Time

	// Importance is the author-assigned salience in [0, 10].
	Importance float64

	// Kind classifies the record.
	Kind Kind

	// Owner is the agent this record belongs to.
	Owner string

	// Tags carries free-form labels. Records tagged with a shared tag
	// (see WithSharedTags) are visible to every agent's retrieval.
	Tags []string

	// Embedding is the record's vector, when the index reported one.
	Embedding []float32
}
