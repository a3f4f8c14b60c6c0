// Package metrics provides constants used across metric definitions.
package metrics

// Datastore operation names. Components record "<operation>:<table>".
const (
	OpGet    = "get"
	OpQuery  = "query"
	OpCreate = "create"
	OpUpsert = "upsert"
	OpUpdate = "update"
	OpSeed   = "seed"
)

// Label value constants used for metric labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// ErrorTypeNotFound labels lookups that found no row.
	ErrorTypeNotFound = "not_found"
	// ErrorTypeDatabase labels driver and SQL failures.
	ErrorTypeDatabase = "database"

	// LabelUnknown is used when an operation string carries no table.
	LabelUnknown = "unknown"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart64B is the starting bucket for message size histograms.
	BucketStart64B = 64.0

	BucketFactor2 = 2

	BucketCount10 = 10
	BucketCount12 = 12
	BucketCount15 = 15

	// BucketConfidenceWidth splits the 0..100 confidence range into tenths.
	BucketConfidenceWidth = 10.0
	BucketConfidenceCount = 11
)

// SplitPartsCount is the expected number of parts when splitting operation strings.
const SplitPartsCount = 2
