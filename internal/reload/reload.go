// Package reload notifies connected browsers that served assets changed.
//
// Two kinds of notification exist: a stylesheet update, which clients apply by
// swapping stylesheet links in place, and a full page reload.
package reload

import "context"

// Kind distinguishes in-place stylesheet updates from full reloads.
type Kind string

const (
	KindCSS    Kind = "css"
	KindReload Kind = "reload"
)

// Event is one notification. Paths are slash-separated and relative to the
// served roots.
type Event struct {
	Kind  Kind     `json:"kind"`
	Paths []string `json:"paths,omitempty"`
}

// CSS returns a stylesheet update event for paths.
func CSS(paths ...string) Event { return Event{Kind: KindCSS, Paths: paths} }

// Full returns a full page reload event.
func Full(paths ...string) Event { return Event{Kind: KindReload, Paths: paths} }

// Notifier receives change notifications from the pipeline.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Noop discards notifications; build mode uses it.
type Noop struct{}

func (Noop) Notify(context.Context, Event) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }
