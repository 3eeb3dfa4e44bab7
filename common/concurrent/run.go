package concurrent

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/dlsniper/debugger"
	"golang.org/x/sync/errgroup"
)

const (
	taskLabel = "task"
	rootLabel = "root"
)

// Task is a named function for Run. The place MakeTask was called from is reported on failure.
type Task struct {
	Name   string
	Func   func(context.Context) error
	origin string
}

type TaskError struct {
	Task   string
	Origin string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (created at %s) failed: %v", e.Task, e.Origin, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func MakeTask(name string, f func(context.Context) error) Task {
	origin := "<unknown>"
	if _, file, line, ok := runtime.Caller(1); ok {
		origin = file + ":" + strconv.Itoa(line)
	}
	return Task{Name: name, Func: f, origin: origin}
}

type rootNameKey struct{}

// WithRootName names the group of tasks started from ctx in goroutine labels.
func WithRootName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, rootNameKey{}, name)
}

func rootName(ctx context.Context) string {
	if name, ok := ctx.Value(rootNameKey{}).(string); ok {
		return name
	}
	return "<unknown>"
}

// Run starts every task in its own labelled goroutine and waits for all of them.
// The first failure cancels the context of the others and is returned as *TaskError.
func Run(ctx context.Context, tasks ...Task) error {
	g, gCtx := errgroup.WithContext(ctx)
	root := rootName(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			debugger.SetLabels(func() []string {
				return []string{taskLabel, task.Name, rootLabel, root}
			})
			if err := task.Func(gCtx); err != nil {
				return &TaskError{Task: task.Name, Origin: task.origin, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}
