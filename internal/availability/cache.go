package availability

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/campsite-reservation/internal/model"
	"github.com/iliyamo/campsite-reservation/internal/repository"
)

// SnapshotSource supplies the authoritative occupied dates.  The booking
// ledger implements it.
type SnapshotSource interface {
	Snapshot() repository.Snapshot
}

// Options tunes a Cache.  Zero values fall back to the defaults below.
type Options struct {
	QueueSize int           // bound of the propagation queue
	Retries   int           // index write retries before a job is dropped; negative disables retries
	Backoff   time.Duration // first retry delay, doubled per attempt
	Today     func() time.Time
	Logger    *log.Logger
}

const (
	DefaultQueueSize = 1024
	DefaultRetries   = 3
	DefaultBackoff   = 50 * time.Millisecond
)

type jobKind int

const (
	jobApply jobKind = iota
	jobReconcile
	jobBarrier
)

type job struct {
	kind    jobKind
	version uint64
	free    []string
	booked  []string
	done    chan struct{}
}

// Cache is the read side of the campsite calendar.  Ledger commits are
// pushed onto a bounded FIFO queue and applied to the Index by a single
// worker, so updates for one campsite are never reordered.  Each update
// carries its commit version and the Index ignores anything older than
// what it already holds.
//
// Propagation never reports failure to the caller.  A write that keeps
// failing, or a job that does not fit in the queue, is dropped and the
// cache is marked dirty; the worker then rebuilds the index from a ledger
// snapshot.  The same rebuild also runs on every reconcile tick.
type Cache struct {
	index   Index
	source  SnapshotSource
	today   func() time.Time
	jobs    chan job
	retries int
	backoff time.Duration
	log     *log.Logger

	dropped  atomic.Uint64 // updates lost so far
	repaired atomic.Uint64 // value of dropped covered by the last rebuild
	synced   atomic.Bool   // a rebuild from the ledger has succeeded
}

// New returns a Cache writing to index.  source may be nil, in which case
// reconciliation is disabled.  Call Start to run the worker.
func New(index Index, source SnapshotSource, opts Options) *Cache {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	} else if opts.Retries == 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Today == nil {
		opts.Today = func() time.Time { return model.Date(time.Now()) }
	}
	if opts.Logger == nil {
		opts.Logger = log.New("availability")
	}
	return &Cache{
		index:   index,
		source:  source,
		today:   opts.Today,
		jobs:    make(chan job, opts.QueueSize),
		retries: opts.Retries,
		backoff: opts.Backoff,
		log:     opts.Logger,
	}
}

// Start runs the propagation worker until ctx is done.  When interval is
// positive a reconcile job is also queued every interval.  An initial
// reconcile is queued ahead of any update: it replaces whatever a previous
// process left in a persistent index with the ledger's current state.
// Until it succeeds the cache reports itself dirty.
func (c *Cache) Start(ctx context.Context, interval time.Duration) {
	go c.work(ctx)
	if c.source == nil {
		return
	}
	c.enqueue(job{kind: jobReconcile})
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.enqueue(job{kind: jobReconcile})
			}
		}
	}()
}

// MarkBooked queues the stay dates of r as booked at the commit's version.
func (c *Cache) MarkBooked(commit repository.Commit, r model.DateRange) {
	c.Apply(commit, model.DateRange{}, r)
}

// MarkFree queues the stay dates of r as free at the commit's version.
func (c *Cache) MarkFree(commit repository.Commit, r model.DateRange) {
	c.Apply(commit, r, model.DateRange{})
}

// Apply queues one job that frees the dates of free and then books the
// dates of booked.  A modify uses it so the two halves cannot be split or
// reordered.  Zero commits are ignored.
func (c *Cache) Apply(commit repository.Commit, free, booked model.DateRange) {
	if !commit.Written() {
		return
	}
	c.enqueue(job{
		kind:    jobApply,
		version: commit.Version,
		free:    keys(free),
		booked:  keys(booked),
	})
}

// Available returns every date in [r.Start, r.End) not marked booked, in
// ascending order.  It reads the index only and may lag the ledger.
func (c *Cache) Available(ctx context.Context, r model.DateRange) ([]time.Time, error) {
	dates := r.StayDates()
	if len(dates) == 0 {
		return []time.Time{}, nil
	}
	ks := make([]string, len(dates))
	for i, d := range dates {
		ks[i] = model.DateKey(d)
	}
	booked, err := c.index.Booked(ctx, ks)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(dates))
	for i, d := range dates {
		if !booked[ks[i]] {
			out = append(out, d)
		}
	}
	return out, nil
}

// Flush waits until every job queued before the call has been processed.
func (c *Cache) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case c.jobs <- job{kind: jobBarrier, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dirty reports whether an update was lost since the last successful
// reconcile, or whether the index has not been rebuilt from the ledger
// yet.
func (c *Cache) Dirty() bool {
	if c.source != nil && !c.synced.Load() {
		return true
	}
	return c.dropped.Load() != c.repaired.Load()
}

// Dropped returns how many updates have been lost in total.
func (c *Cache) Dropped() uint64 { return c.dropped.Load() }

func (c *Cache) enqueue(j job) {
	select {
	case c.jobs <- j:
	default:
		if j.kind == jobReconcile {
			return
		}
		c.dropped.Add(1)
		c.log.Warnf("propagation queue full, dropped update v%d", j.version)
	}
}

func (c *Cache) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-c.jobs:
			c.run(ctx, j)
		}
	}
}

func (c *Cache) run(ctx context.Context, j job) {
	switch j.kind {
	case jobBarrier:
		c.repairIfDirty(ctx)
		close(j.done)
	case jobReconcile:
		c.reconcile(ctx)
	case jobApply:
		err := c.withRetry(ctx, func() error {
			return c.index.Apply(ctx, j.version, j.free, j.booked)
		})
		if err != nil {
			c.dropped.Add(1)
			c.log.Errorf("dropped update v%d after %d retries: %v", j.version, c.retries, err)
		}
		if len(c.jobs) == 0 {
			c.repairIfDirty(ctx)
		}
	}
}

func (c *Cache) repairIfDirty(ctx context.Context) {
	if c.Dirty() {
		c.reconcile(ctx)
	}
}

// reconcile rebuilds the index from a ledger snapshot and prunes past
// dates.  The snapshot is taken here, on the worker, so it is ordered with
// the jobs around it.
func (c *Cache) reconcile(ctx context.Context) {
	if c.source == nil {
		return
	}
	// Read before the snapshot: anything lost after this point is not
	// covered by it and keeps the cache dirty.
	lost := c.dropped.Load()
	wasDirty := c.synced.Load() && lost != c.repaired.Load()
	snap := c.source.Snapshot()
	booked := make([]string, 0, len(snap.Booked))
	for d := range snap.Booked {
		booked = append(booked, d)
	}
	sort.Strings(booked)

	err := c.withRetry(ctx, func() error {
		return c.index.Reset(ctx, snap.Version, booked)
	})
	if err != nil {
		c.log.Errorf("reconcile at v%d failed: %v", snap.Version, err)
		return
	}
	c.repaired.Store(lost)
	c.synced.Store(true)
	if wasDirty {
		c.log.Infof("index rebuilt from ledger at v%d", snap.Version)
	}
	n, err := c.index.Prune(ctx, model.DateKey(c.today()))
	if err != nil {
		c.log.Warnf("prune failed: %v", err)
		return
	}
	if n > 0 {
		c.log.Debugf("pruned %d past dates", n)
	}
}

func (c *Cache) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := c.backoff
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= c.retries || ctx.Err() != nil {
			return err
		}
		c.log.Warnf("index write failed (attempt %d): %v; retrying in %s", attempt+1, err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
}

func keys(r model.DateRange) []string {
	dates := r.StayDates()
	if len(dates) == 0 {
		return nil
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = model.DateKey(d)
	}
	return out
}
