package corosock

import "context"

// ErrGroup spawns tasks on behalf of one parent task and reports the
// first error any of them returns.
type ErrGroup interface {
	// Go spawns f with the group's context.
	Go(f func(context.Context) error)
	// GoWithContext spawns f with ctx, which must belong to the
	// group's parent task.
	GoWithContext(ctx context.Context, f func(context.Context) error)
	// Wait suspends the parent until every spawned task has returned,
	// then returns the first error.
	Wait(parent *Task) error
}

type errGroup struct {
	parent *Task
	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     WaitGroup
	err    error
}

// newErrGroup derives the group context from the parent's. It is
// cancelled, with the error as cause, on the first failure or when
// Wait returns.
func newErrGroup(parent *Task) *errGroup {
	ctx, cancel := context.WithCancelCause(parent.ctx)
	return &errGroup{parent: parent, ctx: ctx, cancel: cancel}
}

func (g *errGroup) Go(f func(context.Context) error) {
	g.spawn(g.ctx, f)
}

func (g *errGroup) GoWithContext(ctx context.Context, f func(context.Context) error) {
	if task := MustTaskFromContext(ctx); task != g.parent {
		panic("corosock: ctx task does not match errgroup task")
	}
	g.spawn(ctx, f)
}

// spawn runs f as a child of the parent. The child itself always
// succeeds; f's error is reported once, through Wait.
func (g *errGroup) spawn(ctx context.Context, f func(context.Context) error) {
	g.wg.Add(1)
	g.parent.SpawnWithContext(ctx, func(ctx context.Context, _ *Task) error {
		defer g.wg.Done()
		if err := f(ctx); err != nil && g.err == nil {
			g.err = err
			g.cancel(err)
		}
		return nil
	})
}

func (g *errGroup) Wait(parent *Task) error {
	g.wg.Wait(parent)
	g.cancel(g.err)
	return g.err
}
