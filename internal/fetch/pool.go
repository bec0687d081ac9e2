package fetch

import (
	"context"
	"errors"

	"github.com/tinytelemetry/valuewatch/internal/model"
)

// ErrDuplicateTask is returned by Submit when the pool already has an
// unresolved task for the same item.
var ErrDuplicateTask = errors.New("fetch: task already outstanding for item")

// Pool is an ordered batch of tasks. It is not safe for concurrent use: one
// goroutine submits and polls, the tasks themselves run elsewhere.
type Pool struct {
	ctx     context.Context
	fetcher Fetcher

	tasks    []*Task
	head     int // index of the next task to surface
	resolved int
	pending  map[model.ItemID]struct{}
}

// NewPool creates an empty pool whose tasks run under ctx.
func NewPool(ctx context.Context, f Fetcher) *Pool {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Pool{
		ctx:     ctx,
		fetcher: f,
		pending: make(map[model.ItemID]struct{}),
	}
}

// Submit starts a fetch for id and queues it behind earlier submissions.
func (p *Pool) Submit(id model.ItemID, url, selector string) (*Task, error) {
	if _, busy := p.pending[id]; busy {
		return nil, ErrDuplicateTask
	}
	t := Start(p.ctx, p.fetcher, id, url, selector)
	p.tasks = append(p.tasks, t)
	p.pending[id] = struct{}{}
	return t, nil
}

// PollNextReady surfaces the outcome of the oldest unsurfaced task if, and
// only if, that task has resolved. Later tasks are not inspected.
func (p *Pool) PollNextReady() (Outcome, bool) {
	if p.head >= len(p.tasks) {
		return Outcome{}, false
	}
	out, ok := p.tasks[p.head].TryResult()
	if !ok {
		return Outcome{}, false
	}
	p.tasks[p.head] = nil
	p.head++
	p.resolved++
	delete(p.pending, out.ID)
	return out, true
}

// Submitted returns how many tasks were submitted.
func (p *Pool) Submitted() int { return len(p.tasks) }

// Resolved returns how many outcomes have been surfaced.
func (p *Pool) Resolved() int { return p.resolved }

// Done reports whether every submitted task has been surfaced. An empty
// pool is done.
func (p *Pool) Done() bool { return p.resolved == len(p.tasks) }

// Pending returns the items whose outcomes have not been surfaced yet, in
// submission order.
func (p *Pool) Pending() []model.ItemID {
	ids := make([]model.ItemID, 0, len(p.tasks)-p.head)
	for _, t := range p.tasks[p.head:] {
		ids = append(ids, t.ID())
	}
	return ids
}

// Outstanding reports whether id has a task in this pool that has not been
// surfaced.
func (p *Pool) Outstanding(id model.ItemID) bool {
	_, ok := p.pending[id]
	return ok
}
