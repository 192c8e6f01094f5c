package corosock

import (
	"context"
)

type taskKey struct{}

func withTaskContext(ctx context.Context, task *Task) context.Context {
	return context.WithValue(ctx, taskKey{}, task)
}

// TaskFromContext returns the Task whose body received ctx, or a
// context derived from it.
func TaskFromContext(ctx context.Context) (*Task, bool) {
	task, ok := ctx.Value(taskKey{}).(*Task)
	return task, ok
}

// MustTaskFromContext is TaskFromContext for code that only ever runs
// inside a task body. It panics when ctx carries no task.
func MustTaskFromContext(ctx context.Context) *Task {
	task, ok := TaskFromContext(ctx)
	if !ok {
		panic("corosock: task not found in context")
	}
	return task
}
