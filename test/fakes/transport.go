package fakes

import (
	"context"
	"sync"

	"letsplay/internal/saga/queue"
	"letsplay/pkg/model"
)

// Notifier records every notification it is given.
type Notifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (n *Notifier) Enqueue(ctx context.Context, notification model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *Notifier) Sent() []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Notification(nil), n.sent...)
}

// SentWithTitle returns the notifications with the given title.
func (n *Notifier) SentWithTitle(title string) []model.Notification {
	var out []model.Notification
	for _, sent := range n.Sent() {
		if sent.Title == title {
			out = append(out, sent)
		}
	}
	return out
}

// Queue records enqueued saga tasks without running them.
type Queue struct {
	mu    sync.Mutex
	tasks []queue.Task
	Err   error
}

func (q *Queue) Enqueue(ctx context.Context, task queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *Queue) Close() error {
	return nil
}

func (q *Queue) Tasks() []queue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Task(nil), q.tasks...)
}

// Publisher records published messages by routing key.
type Publisher struct {
	mu       sync.Mutex
	messages map[string][]any
	Err      error
}

func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if p.messages == nil {
		p.messages = make(map[string][]any)
	}
	p.messages[key] = append(p.messages[key], v)
	return nil
}

func (p *Publisher) Published(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[key])
}
