package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	RequestTimeout     = 30 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	// Fixed pause between per-player upstream calls during discovery. The
	// real rate limiter lives in the API client; this keeps discovery from
	// draining the bucket in bursts.
	DiscoveryRequestPause = 500 * time.Millisecond

	// Upper bound on matches requested per player per discovery pass.
	DiscoveryFetchLimit = 40
)

const (
	// Duration bounds for the hasReasonableDuration confidence signal.
	// Anything under two minutes is a leaver/dodge, anything over two hours
	// is almost certainly an idle lobby.
	ReasonableDurationMin = 120 * time.Second
	ReasonableDurationMax = 2 * time.Hour
)

const (
	// How many recent date partitions the storage stats endpoint samples.
	StorageStatsSampleDays = 7
)
