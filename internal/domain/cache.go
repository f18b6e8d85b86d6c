package domain

import (
	"context"
	"io"
	"time"
)

// PriceCache provides fast access to the latest oracle prices.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
	GetPrices(ctx context.Context, assets []string) (map[string]float64, error)
}

// PriceSource supplies a fresh oracle price snapshot for an assessment.
// Implementations are selected once at composition time: the live source reads
// the feed-backed cache, the simulated source generates synthetic prices.
type PriceSource interface {
	Snapshot(ctx context.Context, assets []string) (map[string]float64, error)
}

// LockManager provides distributed locking so that two pipelines never
// process the same position concurrently.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// BlobWriter uploads immutable objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// DecisionArchiver persists the full decision trail of an incident for audit.
type DecisionArchiver interface {
	ArchiveDecision(ctx context.Context, d Decision) error
}

// Executor hands an approved plan off for execution. The live implementation
// lives outside this core; the simulated one returns synthetic receipts.
type Executor interface {
	Execute(ctx context.Context, plan Plan) (ExecutionReceipt, error)
}
