// Package notify is an in-process publish/subscribe bus carrying typed
// issue notifications between the service layer and its observers (the
// issue browser, request logging).
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/joescharf/tracker/internal/models"
)

// Topic identifies a message kind.
type Topic string

const (
	TopicIssueCreated      Topic = "issue.created"
	TopicIssueUpdated      Topic = "issue.updated"
	TopicAttachmentDeleted Topic = "attachment.deleted"
)

// Message is implemented by every payload published on the bus.
type Message interface {
	Topic() Topic
}

// IssueCreated is published after an issue is stored.
type IssueCreated struct {
	Issue *models.Issue
}

func (IssueCreated) Topic() Topic { return TopicIssueCreated }

// IssueUpdated is published after an issue's status or type changes.
type IssueUpdated struct {
	Issue *models.Issue
}

func (IssueUpdated) Topic() Topic { return TopicIssueUpdated }

// AttachmentDeleted is published after an attachment is removed.
type AttachmentDeleted struct {
	IssueID      string
	AttachmentID string
}

func (AttachmentDeleted) Topic() Topic { return TopicAttachmentDeleted }

// Handler receives messages for the topics it subscribed to.
type Handler func(ctx context.Context, msg Message)

type subscription struct {
	id      int
	topics  map[Topic]bool
	handler Handler
}

// Bus dispatches messages synchronously, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers h for the given topics (all topics when none are
// given) and returns a function that removes the subscription.
func (b *Bus) Subscribe(h Handler, topics ...Topic) (unsubscribe func()) {
	set := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, topics: set, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers msg to every matching subscriber. A nil bus drops the
// message, so callers can publish unconditionally.
func (b *Bus) Publish(ctx context.Context, msg Message) {
	if b == nil || msg == nil {
		return
	}

	b.mu.RLock()
	matching := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if len(s.topics) == 0 || s.topics[msg.Topic()] {
			matching = append(matching, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matching {
		h(ctx, msg)
	}
}

// LogSubscriber logs every message at debug level.
func LogSubscriber(logger *slog.Logger) Handler {
	return func(ctx context.Context, msg Message) {
		attrs := []any{"topic", string(msg.Topic())}
		switch m := msg.(type) {
		case IssueCreated:
			attrs = append(attrs, "issue", m.Issue.ID)
		case IssueUpdated:
			attrs = append(attrs, "issue", m.Issue.ID, "status", m.Issue.Status.String(), "type", m.Issue.Type.String())
		case AttachmentDeleted:
			attrs = append(attrs, "issue", m.IssueID, "attachment", m.AttachmentID)
		}
		logger.DebugContext(ctx, "notification", attrs...)
	}
}
