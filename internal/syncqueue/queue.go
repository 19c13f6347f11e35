// Package syncqueue stores work queued while offline and replays it to the
// sync endpoint when a sync event fires. Delivery is at-least-once: a batch
// that fails partway is replayed from the start on the next sync.
package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/datastore/entities"
	"github.com/estoca-ai/estoca-worker/internal/datastore/repository"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
)

// ErrUnknownTag is returned by Replay for tags the queue does not handle.
var ErrUnknownTag = errors.NewStd("unknown sync tag")

// Config configures a Queue.
type Config struct {
	Tag           string         // tag whose tasks are replayed, e.g. "sync-data"
	Endpoint      cachestore.Key // POST target
	RatePerSecond float64
}

// Result summarizes one replay.
type Result struct {
	Replayed int   `json:"replayed"`
	Pending  int   `json:"pending"`
	Err      error `json:"-"`
}

// Queue is the durable sync queue.
type Queue struct {
	cfg     Config
	repo    repository.SyncTaskRepository
	fetcher strategy.Fetcher
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     logger.Logger

	// replayMu serializes replays so two sync events never send one task twice concurrently.
	replayMu sync.Mutex
}

// New creates a queue.
func New(cfg Config, repo repository.SyncTaskRepository, fetcher strategy.Fetcher, m *metrics.Metrics, log logger.Logger) *Queue {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Queue{
		cfg:     cfg,
		repo:    repo,
		fetcher: fetcher,
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
		log:     log.Module("syncqueue"),
	}
}

// Tag returns the replayed tag.
func (q *Queue) Tag() string {
	return q.cfg.Tag
}

// Enqueue stores a payload for later replay. Payload must be valid JSON.
func (q *Queue) Enqueue(ctx context.Context, tag string, payload json.RawMessage) (*entities.SyncTask, error) {
	if tag == "" {
		tag = q.cfg.Tag
	}
	if !json.Valid(payload) {
		return nil, errors.Newf("sync payload is not valid JSON").
			Component("syncqueue").
			Category(errors.CategoryValidation).
			Context("tag", tag).
			Build()
	}
	task := &entities.SyncTask{
		UUID:    uuid.NewString(),
		Tag:     tag,
		Payload: string(payload),
	}
	if err := q.repo.Create(ctx, task); err != nil {
		return nil, syncError(err, "enqueue", tag)
	}
	q.refreshPending(ctx)
	return task, nil
}

// Pending lists queued tasks for tag in enqueue order.
func (q *Queue) Pending(ctx context.Context, tag string) ([]entities.SyncTask, error) {
	if tag == "" {
		tag = q.cfg.Tag
	}
	tasks, err := q.repo.ListPending(ctx, tag)
	if err != nil {
		return nil, syncError(err, "pending", tag)
	}
	return tasks, nil
}

// Replay sends every pending task for tag to the sync endpoint in order.
// The first failure aborts the batch and nothing is removed. After all
// succeed, exactly the replayed tasks are removed; tasks enqueued during the
// replay stay queued.
func (q *Queue) Replay(ctx context.Context, tag string) Result {
	if tag != q.cfg.Tag {
		q.log.Debug("ignoring sync event for unknown tag", logger.String("tag", tag))
		return Result{Err: fmt.Errorf("%w: %s", ErrUnknownTag, tag)}
	}

	q.replayMu.Lock()
	defer q.replayMu.Unlock()

	tasks, err := q.repo.ListPending(ctx, tag)
	if err != nil {
		return Result{Err: syncError(err, "list", tag)}
	}
	if len(tasks) == 0 {
		return Result{}
	}

	start := time.Now()
	replayed := make([]uint, 0, len(tasks))
	for i := range tasks {
		task := &tasks[i]
		if err := q.limiter.Wait(ctx); err != nil {
			return q.abort(ctx, tag, task, replayed, len(tasks), err)
		}
		if err := q.send(ctx, task); err != nil {
			return q.abort(ctx, tag, task, replayed, len(tasks), err)
		}
		replayed = append(replayed, task.ID)
	}

	if _, err := q.repo.DeleteByIDs(ctx, replayed); err != nil {
		// Sent but not cleared: the next replay re-sends them.
		return Result{Replayed: len(replayed), Pending: len(tasks), Err: syncError(err, "clear", tag)}
	}
	q.metrics.RecordSync("ok", len(replayed))
	q.refreshPending(ctx)

	q.log.Info("sync replay completed",
		logger.String("tag", tag),
		logger.Int("replayed", len(replayed)),
		logger.Duration("elapsed", time.Since(start)))
	return Result{Replayed: len(replayed)}
}

func (q *Queue) abort(ctx context.Context, tag string, failed *entities.SyncTask, sent []uint, total int, cause error) Result {
	if err := q.repo.RecordAttempt(context.WithoutCancel(ctx), failed.ID, cause.Error()); err != nil {
		q.log.Warn("failed to record sync attempt", logger.Error(err))
	}
	q.metrics.RecordSync("aborted", total)
	q.log.Warn("sync replay aborted, queue kept for retry",
		logger.String("tag", tag),
		logger.String("task", failed.UUID),
		logger.Int("sent_before_failure", len(sent)),
		logger.Int("pending", total),
		logger.Error(cause))
	return Result{Replayed: len(sent), Pending: total, Err: syncError(cause, "replay", tag)}
}

func (q *Queue) send(ctx context.Context, task *entities.SyncTask) error {
	req := &strategy.Request{
		Key:    cachestore.Key{Method: http.MethodPost, URL: q.cfg.Endpoint.URL},
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(task.Payload),
	}
	resp, err := q.fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("sync endpoint answered %d", resp.Status)
	}
	return nil
}

func (q *Queue) refreshPending(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	n, err := q.repo.Count(ctx, q.cfg.Tag)
	if err == nil {
		q.metrics.SetSyncPending(n)
	}
}

func syncError(err error, op, tag string) error {
	return errors.New(err).
		Component("syncqueue").
		Category(errors.CategorySync).
		Context("operation", op).
		Context("tag", tag).
		Build()
}
