package download

import (
	"context"

	"github.com/glorpus-work/cdse/pkg/hook"
)

// Manager defines the interface for downloading products.
//
//go:generate mockgen -destination=./mocks/manager.go -package=mocks . Manager
type Manager interface {
	// Fetch downloads a single item into opts.Dir and returns the final
	// local path.
	Fetch(ctx context.Context, item Item, opts Options) (string, error)

	// FetchAll downloads all items under the fixed concurrency ceiling and
	// returns one result per input item, in input order. The batch itself
	// never fails because of one item; per-item failures are captured in
	// the results.
	FetchAll(ctx context.Context, items []Item, opts Options) []Result
}

// Checksum is an expected content hash for a downloaded item.
type Checksum struct {
	Algorithm string // "BLAKE3" or "MD5"
	Value     string // hex-encoded digest
}

// Item represents one product to download.
type Item struct {
	ID        string     // product id, unique within a batch
	Name      string     // destination filename; derived from the URL if empty
	URL       string     // remote locator
	Checksums []Checksum // expected hashes; empty skips verification
}

// Options control the behavior of the download manager.
type Options struct {
	// Dir is the destination directory. Must be absolute.
	Dir string

	// NoVerify skips checksum verification even when the descriptor
	// supplies hashes.
	NoVerify bool

	// MaxAttempts bounds retries of transient failures per item; <= 0
	// means DefaultMaxAttempts.
	MaxAttempts int

	// Hooks, when set, runs pre-download and post-download scripts around
	// each item.
	Hooks hook.Manager
}

// Status is the lifecycle state of a download task.
type Status string

// Task lifecycle states. Terminal states are StatusDone and StatusFailed.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusVerifying  Status = "verifying"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Result is the per-item outcome of a batch download.
type Result struct {
	ID       string
	Path     string // final local path, set when Status is StatusDone
	Status   Status
	Attempts int
	Err      error // captured failure, set when Status is StatusFailed
}
