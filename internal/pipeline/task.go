package pipeline

import (
	"context"
	"strings"
)

type taskKind int

const (
	kindFunc taskKind = iota
	kindSeries
	kindParallel
)

// Task is a named unit of work. Tasks compose with Series and Parallel and
// hold no state between runs.
type Task struct {
	Name     string
	kind     taskKind
	fn       func(ctx context.Context) error
	children []Task
}

// Func wraps fn as a leaf task.
func Func(name string, fn func(ctx context.Context) error) Task {
	return Task{Name: name, kind: kindFunc, fn: fn}
}

// Series runs tasks one at a time. The first failure aborts the remaining steps.
func Series(name string, tasks ...Task) Task {
	return Task{Name: name, kind: kindSeries, children: tasks}
}

// Parallel runs tasks concurrently. Every branch runs to completion, then the
// first failure is reported.
func Parallel(name string, tasks ...Task) Task {
	return Task{Name: name, kind: kindParallel, children: tasks}
}

// String renders the task tree, e.g. "build=series(clean, parallel(...))".
func (t Task) String() string {
	var sb strings.Builder
	t.describe(&sb)
	return sb.String()
}

func (t Task) describe(sb *strings.Builder) {
	switch t.kind {
	case kindFunc:
		sb.WriteString(t.Name)
		return
	case kindSeries:
		sb.WriteString(t.Name + "=series(")
	case kindParallel:
		sb.WriteString(t.Name + "=parallel(")
	}
	for i, c := range t.children {
		if i > 0 {
			sb.WriteString(", ")
		}
		c.describe(sb)
	}
	sb.WriteString(")")
}
