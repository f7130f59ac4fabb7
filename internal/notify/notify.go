// Package notify posts marking events to chat platforms (Slack,
// Discord). Delivery is best effort: a failed post is logged and never
// surfaces to the operation that raised the event.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/scanmark/scanmark/internal/proto"
)

// Event is one formatted notification.
type Event struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "success"
	Fields   []Field
}

// Field is a key-value pair displayed alongside an event.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Adapter is the interface platform-specific implementations satisfy.
type Adapter interface {
	// Post delivers one event to the platform.
	Post(ctx context.Context, ev Event) error

	// Close shuts down the adapter connection.
	Close() error
}

// Notifier fans events out to its adapters.
type Notifier struct {
	adapters []Adapter
}

// New creates a Notifier over zero or more adapters. With none, every
// post is a no-op.
func New(adapters ...Adapter) *Notifier {
	return &Notifier{adapters: adapters}
}

// Post delivers ev to every adapter, logging failures.
func (n *Notifier) Post(ctx context.Context, ev Event) {
	for _, a := range n.adapters {
		if err := a.Post(ctx, ev); err != nil {
			log.Printf("notify: post %q: %v", ev.Title, err)
		}
	}
}

// Close shuts down all adapters.
func (n *Notifier) Close() {
	for _, a := range n.adapters {
		if err := a.Close(); err != nil {
			log.Printf("notify: close adapter: %v", err)
		}
	}
}

// BundlePushed announces a bundle promoted into the task pool.
func (n *Notifier) BundlePushed(ctx context.Context, slug, username string, reply *proto.PushReply) {
	n.Post(ctx, Event{
		Title:    fmt.Sprintf("Bundle %s pushed", slug),
		Body:     fmt.Sprintf("%s pushed bundle %s into the task pool", username, slug),
		Severity: "success",
		Fields: []Field{
			{Name: "Papers", Value: fmt.Sprintf("%d", reply.PapersTouched), Short: true},
			{Name: "Tasks created", Value: fmt.Sprintf("%d", reply.TasksCreated), Short: true},
			{Name: "Extras", Value: fmt.Sprintf("%d", reply.ExtrasAdded), Short: true},
		},
	})
}

// QuotaReached announces a marker hitting their completion quota.
func (n *Notifier) QuotaReached(ctx context.Context, username string, quota int) {
	n.Post(ctx, Event{
		Title:    fmt.Sprintf("%s reached their marking quota", username),
		Body:     fmt.Sprintf("%s has marked %d tasks and will receive no more until the quota is raised", username, quota),
		Severity: "warning",
	})
}

// DigestEntry is one question's progress line in a digest.
type DigestEntry struct {
	Label  string
	Total  int
	Marked int
}

// Digest posts a periodic marking-progress summary.
func (n *Notifier) Digest(ctx context.Context, entries []DigestEntry) {
	if len(entries) == 0 {
		return
	}
	fields := make([]Field, 0, len(entries))
	for _, e := range entries {
		fields = append(fields, Field{
			Name:  e.Label,
			Value: fmt.Sprintf("%d/%d marked", e.Marked, e.Total),
			Short: true,
		})
	}
	n.Post(ctx, Event{
		Title:    "Marking progress",
		Severity: "info",
		Fields:   fields,
	})
}
