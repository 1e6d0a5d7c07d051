package titles

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"timechat/internal/api"
	"timechat/internal/chat"
	"timechat/internal/kvstore"
)

// Responder issues title-generation exchanges. Satisfied by *api.Client.
type Responder interface {
	Respond(ctx context.Context, req api.RespondRequest) (api.RespondResponse, error)
}

type Options struct {
	DefaultTitle   string
	MaxRunes       int
	RequestTimeout time.Duration
	// RetryDelay paces re-attempts when a session's exchange channel is
	// held by a live user exchange.
	RetryDelay time.Duration
}

// Queue is the durable title-generation work queue. Exactly one task is
// processed at a time; the pending queue and the per-session markers live
// in the injected store, so restarts neither lose unfinished work nor
// resubmit completed work.
type Queue struct {
	store     kvstore.Store
	responder Responder
	locks     *chat.ExchangeLock
	opts      Options

	mu    sync.Mutex
	tasks []Task
	wake  chan struct{}
}

func NewQueue(store kvstore.Store, responder Responder, locks *chat.ExchangeLock, opts Options) *Queue {
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = "New conversation"
	}
	if opts.MaxRunes <= 0 {
		opts.MaxRunes = 48
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if locks == nil {
		locks = chat.NewExchangeLock()
	}
	return &Queue{
		store:     store,
		responder: responder,
		locks:     locks,
		opts:      opts,
		wake:      make(chan struct{}, 1),
	}
}

// Restore loads the persisted queue snapshot. Call once before Run.
func (q *Queue) Restore(ctx context.Context) error {
	raw, ok, err := q.store.Get(ctx, queueKey)
	if err != nil {
		return err
	}
	if !ok || raw == "" {
		return nil
	}
	var tasks []Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		log.Printf("title queue snapshot unreadable, starting empty: %v", err)
		return nil
	}
	q.mu.Lock()
	q.tasks = tasks
	q.mu.Unlock()
	return nil
}

// Status returns the durable marker for sessionID.
func (q *Queue) Status(ctx context.Context, sessionID string) Status {
	v, ok, err := q.store.Get(ctx, markerKey(sessionID))
	if err != nil || !ok {
		return StatusNone
	}
	return Status(v)
}

// Title returns the cached title for sessionID, or the default label.
func (q *Queue) Title(ctx context.Context, sessionID string) string {
	v, ok, err := q.store.Get(ctx, titleKey(sessionID))
	if err != nil || !ok || v == "" {
		return q.opts.DefaultTitle
	}
	return v
}

// Enqueue adds a title task for sessionID unless a task is already queued
// or a title was already generated. The snapshot is persisted before the
// queued marker: a snapshotted task without a marker is healed by the
// worker, while a marker without a task would wedge the session forever. A
// queued marker with no matching task (a crash between the two writes) is
// likewise treated as enqueueable again.
func (q *Queue) Enqueue(ctx context.Context, sessionID string, msgs []ContextMessage) error {
	if sessionID == "" || len(msgs) == 0 {
		return nil
	}
	st := q.Status(ctx, sessionID)
	if st == StatusGenerated {
		return nil
	}
	if len(msgs) > maxContextMessages {
		msgs = msgs[:maxContextMessages]
	}
	q.mu.Lock()
	if q.hasTaskLocked(sessionID) {
		q.mu.Unlock()
		return nil
	}
	q.tasks = append(q.tasks, Task{SessionID: sessionID, Context: msgs, EnqueuedAt: time.Now().UTC()})
	q.mu.Unlock()
	if err := q.persistSnapshot(ctx); err != nil {
		log.Printf("persist title queue: %v", err)
	}
	if st == StatusNone {
		if err := q.store.Set(ctx, markerKey(sessionID), string(StatusQueued)); err != nil {
			log.Printf("persist title marker for %s: %v", sessionID, err)
		}
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) hasTaskLocked(sessionID string) bool {
	for i := range q.tasks {
		if q.tasks[i].SessionID == sessionID {
			return true
		}
	}
	return false
}

// Pending returns the number of queued tasks.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Run consumes the queue until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	for {
		if !q.RunOnce(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// RunOnce processes the queue head, if any. It returns false when the
// queue was empty.
func (q *Queue) RunOnce(ctx context.Context) bool {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return false
	}
	task := q.tasks[0]
	q.mu.Unlock()
	q.process(ctx, task)
	return true
}

func (q *Queue) process(ctx context.Context, task Task) {
	id := task.SessionID

	// Re-validate the durable marker: a duplicate enqueue race or another
	// process may have finished this session already.
	if q.Status(ctx, id) == StatusGenerated {
		q.remove(ctx, id)
		return
	}

	// A live user exchange owns the channel; try again later.
	tok, ok := q.locks.TryAcquire(id)
	if !ok {
		q.rotate(id)
		select {
		case <-ctx.Done():
		case <-time.After(q.opts.RetryDelay):
		}
		return
	}
	defer q.locks.Release(id, tok)

	// The request runs on a detached context: if the owning process is
	// shutting down, the completion may be orphaned but the durable marker
	// write below must still happen.
	reqCtx, cancel := context.WithTimeout(context.Background(), q.opts.RequestTimeout)
	defer cancel()
	resp, err := q.responder.Respond(reqCtx, api.RespondRequest{
		SessionID:      id,
		Content:        BuildPrompt(task.Context),
		IsFirstMessage: false,
		MessageType:    api.MessageTypeNaming,
	})

	var title string
	usable := false
	if err != nil {
		log.Printf("title generation for %s failed: %v", id, err)
	} else {
		title, usable = Sanitize(resp.Content, q.opts.MaxRunes)
	}
	if !usable {
		title = FallbackTitle(contextTimestamp(task))
	}

	// The completion writes are detached as well: a shutdown that orphans
	// the request must not also lose the durable marker.
	wctx, wcancel := context.WithTimeout(context.Background(), q.opts.RequestTimeout)
	defer wcancel()
	if err := q.store.Set(wctx, titleKey(id), title); err != nil {
		log.Printf("persist title for %s: %v", id, err)
	}
	if err := q.store.Set(wctx, markerKey(id), string(StatusGenerated)); err != nil {
		log.Printf("persist title marker for %s: %v", id, err)
	}
	q.remove(wctx, id)
}

func (q *Queue) remove(ctx context.Context, sessionID string) {
	q.mu.Lock()
	for i := range q.tasks {
		if q.tasks[i].SessionID == sessionID {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
	if err := q.persistSnapshot(ctx); err != nil {
		log.Printf("persist title queue: %v", err)
	}
}

// rotate moves the head task to the tail so a busy session does not block
// the rest of the queue.
func (q *Queue) rotate(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) > 1 && q.tasks[0].SessionID == sessionID {
		head := q.tasks[0]
		q.tasks = append(q.tasks[1:], head)
	}
}

func (q *Queue) persistSnapshot(ctx context.Context) error {
	q.mu.Lock()
	raw, err := json.Marshal(q.tasks)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	return q.store.Set(ctx, queueKey, string(raw))
}

func contextTimestamp(task Task) time.Time {
	if len(task.Context) > 0 && !task.Context[0].Timestamp.IsZero() {
		return task.Context[0].Timestamp
	}
	return task.EnqueuedAt
}
