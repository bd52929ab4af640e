// Package catalogworker runs DRM-protected catalog downloads (kind=catalog
// queue items) on a bounded worker pool, separate from the monitor loop's
// polling of torrent-style downloads. Progress and outcomes are delivered
// to a Reporter from the worker goroutine as they happen; the pool itself
// never reads or writes queue state.
package catalogworker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vaultshelf/orchestrator/internal/logging"
)

// FormatPref selects which encrypted catalog format a download should
// target, with an optional in-worker fallback.
type FormatPref string

const (
	FormatEncryptedA                FormatPref = "encrypted-A"
	FormatEncryptedB                FormatPref = "encrypted-B"
	FormatEncryptedAWithFallbackToB FormatPref = "encrypted-A-with-fallback-to-B"
)

// CancelToken is a one-shot cancellation signal checked at IO boundaries
// inside a Downloader implementation. Each token carries its own ID so log
// lines about a cancellation can be correlated across the pool/Downloader
// boundary without threading the item ID through every call.
type CancelToken struct {
	id string
	ch chan struct{}
	mu sync.Mutex
}

// NewCancelToken creates an armed token.
func NewCancelToken() *CancelToken {
	return &CancelToken{id: uuid.NewString(), ch: make(chan struct{})}
}

// ID returns this token's correlation ID.
func (c *CancelToken) ID() string { return c.id }

// Cancel fires the token. Safe to call more than once.
func (c *CancelToken) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.ch:
	default:
		close(c.ch)
	}
}

// Cancelled reports whether Cancel has fired.
func (c *CancelToken) Cancelled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// Done exposes the underlying channel for select statements.
func (c *CancelToken) Done() <-chan struct{} { return c.ch }

// ProgressFunc reports incremental progress from within a Downloader call.
type ProgressFunc func(downloadedBytes, totalBytes int64, message string)

// Result is what a completed catalog download produces.
type Result struct {
	AudioPath   string
	VoucherPath string
	Format      FormatPref
}

// Downloader is the opaque catalog API / DRM collaborator. The core never
// speaks the catalog's wire protocol directly.
type Downloader interface {
	Download(ctx context.Context, catalogID, outputDir, filename string, formatPref FormatPref, quality string, allowFallback bool, progress ProgressFunc, cancel *CancelToken) (Result, error)
}

// Job is one unit of work submitted to the Pool.
type Job struct {
	ItemID        int64
	CatalogID     string
	OutputDir     string
	Filename      string
	FormatPref    FormatPref
	Quality       string
	AllowFallback bool
}

// Outcome is delivered to the Reporter once a Job finishes, one way or the
// other. Cancelled is distinct from Err != nil: a cancelled job is not a
// failure the RetryPolicy should see.
type Outcome struct {
	ItemID    int64
	Result    Result
	Err       error
	Cancelled bool
}

// Reporter receives progress and completion callbacks from the pool. The
// orchestrator implements this to update QueueStore and emit events; the
// pool itself never touches queue state.
type Reporter interface {
	OnProgress(itemID int64, downloadedBytes, totalBytes int64, message string)
	OnOutcome(o Outcome)
}

// Pool runs catalog downloads on a bounded number of concurrent workers.
type Pool struct {
	downloader Downloader
	reporter   Reporter
	log        *logging.Logger

	sem chan struct{}

	mu      sync.Mutex
	tokens  map[int64]*CancelToken
	running map[int64]struct{}
}

// defaultConcurrency and maxConcurrency bound catalog_concurrency per the
// documented config range (default 1, max 8).
const (
	defaultConcurrency = 1
	maxConcurrency     = 8
)

// NewPool creates a Pool with the given concurrency, clamped to [1,8].
func NewPool(concurrency int, downloader Downloader, reporter Reporter, log *logging.Logger) *Pool {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}
	return &Pool{
		downloader: downloader,
		reporter:   reporter,
		log:        log,
		sem:        make(chan struct{}, concurrency),
		tokens:     make(map[int64]*CancelToken),
		running:    make(map[int64]struct{}),
	}
}

// Reserve occupies a worker slot for itemID without starting any job yet.
// ok is false if every slot is taken; the caller (the monitor loop) should
// retry on a later iteration rather than block. Reserve lets the caller
// finish its own state transition before Start can possibly call back into
// Reporter, instead of the two racing.
func (p *Pool) Reserve(itemID int64) (ok bool) {
	select {
	case p.sem <- struct{}{}:
	default:
		return false
	}

	p.mu.Lock()
	p.tokens[itemID] = NewCancelToken()
	p.running[itemID] = struct{}{}
	p.mu.Unlock()
	return true
}

// Release frees a slot reserved via Reserve without ever starting a job —
// used when the caller's own state transition fails after reserving.
func (p *Pool) Release(itemID int64) {
	p.mu.Lock()
	_, ok := p.tokens[itemID]
	delete(p.tokens, itemID)
	delete(p.running, itemID)
	p.mu.Unlock()
	if ok {
		<-p.sem
	}
}

// Start launches job on the slot itemID already reserved via Reserve.
func (p *Pool) Start(ctx context.Context, job Job) {
	p.mu.Lock()
	token := p.tokens[job.ItemID]
	p.mu.Unlock()
	go p.run(ctx, job, token)
}

func (p *Pool) run(ctx context.Context, job Job, token *CancelToken) {
	defer func() {
		<-p.sem
		p.mu.Lock()
		delete(p.tokens, job.ItemID)
		delete(p.running, job.ItemID)
		p.mu.Unlock()
	}()

	progress := func(downloaded, total int64, message string) {
		p.reporter.OnProgress(job.ItemID, downloaded, total, message)
	}

	result, err := p.downloader.Download(ctx, job.CatalogID, job.OutputDir, job.Filename, job.FormatPref, job.Quality, job.AllowFallback, progress, token)

	if token.Cancelled() {
		p.reporter.OnOutcome(Outcome{ItemID: job.ItemID, Cancelled: true})
		return
	}
	if err != nil {
		p.reporter.OnOutcome(Outcome{ItemID: job.ItemID, Err: fmt.Errorf("catalog download: %w", err)})
		return
	}
	p.reporter.OnOutcome(Outcome{ItemID: job.ItemID, Result: result})
}

// Cancel fires the cancel token for an in-flight item, if any. Returns
// false if the item is not currently running on this pool.
func (p *Pool) Cancel(itemID int64) bool {
	p.mu.Lock()
	token, ok := p.tokens[itemID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	token.Cancel()
	return true
}

// IsRunning reports whether itemID currently occupies a worker slot.
func (p *Pool) IsRunning(itemID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[itemID]
	return ok
}

// RequiresVoucher reports whether formatPref needs a voucher to convert
// successfully. encrypted-B artifacts without one are an immediate
// permanent conversion failure.
func RequiresVoucher(formatPref FormatPref) bool {
	return formatPref == FormatEncryptedB
}
