package queue

import (
	"context"
	"errors"
	"fmt"
	"letsplay/internal/saga/core"
	"letsplay/pkg/kafka"
	"letsplay/pkg/logger"
	"sync"
)

const (
	EventTypeSagaTask = "booking.saga.task"
	SchemaVersion     = "1"
)

var ErrQueueClosed = errors.New("task queue closed")

// Task asks a worker to drive one booking saga forward.
type Task struct {
	BookingID string `json:"booking_id"`
	RunID     string `json:"run_id"`
	Reason    string `json:"reason,omitempty"`
}

type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
	Close() error
}

// Runner executes a saga run. The orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, bookingID string) error
}

// KafkaQueue publishes tasks keyed by booking id, so every task of one
// booking lands on the same partition.
type KafkaQueue struct {
	producer *kafka.Producer
	source   string
}

func NewKafkaQueue(producer *kafka.Producer, source string) *KafkaQueue {
	return &KafkaQueue{
		producer: producer,
		source:   source,
	}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, task Task) error {
	msg, err := kafka.Encode(task.BookingID, task, kafka.Envelope{
		EventType:     EventTypeSagaTask,
		CorrelationID: task.RunID,
		SchemaVersion: SchemaVersion,
		Source:        q.source,
	})
	if err != nil {
		return fmt.Errorf("build saga task message: %w", err)
	}
	if err := q.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish saga task: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Close() error {
	return q.producer.Close()
}

// NewTaskHandler adapts a Runner to the Kafka consumer. Undecodable tasks are
// permanent and go to the DLQ; runner errors are retried.
func NewTaskHandler(runner Runner, log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var task Task
		if err := msg.Decode(&task); err != nil {
			return kafka.NewPermanentError("invalid message: saga task", err)
		}
		if task.BookingID == "" {
			return kafka.NewPermanentError("invalid message: saga task without booking id", nil)
		}

		if err := runner.Run(ctx, task.BookingID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("Saga run returned error",
				"booking_id", task.BookingID,
				"run_id", task.RunID,
				"reason", task.Reason,
				"error", err,
			)
			return kafka.NewTransientError("saga run", err)
		}
		return nil
	}
}

// LocalQueue runs tasks in-process on a bounded pool. It backs single-node
// deployments and tests; tasks in flight are lost if the process dies and
// come back through the recovery sweep.
type LocalQueue struct {
	limiter *core.Limiter
	backlog chan localTask
	log     *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	runner Runner
	closed bool
	wg     sync.WaitGroup
}

type localTask struct {
	task   Task
	runner Runner
}

// LocalBacklogPerWorker is how many tasks per worker wait for a free slot.
// Enqueue drops tasks past that and the recovery sweep picks them up.
const LocalBacklogPerWorker = 16

func NewLocalQueue(concurrency int, log *logger.Logger) *LocalQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &LocalQueue{
		limiter: core.NewLimiter(concurrency),
		backlog: make(chan localTask, concurrency*LocalBacklogPerWorker),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go q.dispatch()
	return q
}

// Bind sets the runner tasks are dispatched to. It must be called before the
// first Enqueue.
func (q *LocalQueue) Bind(runner Runner) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runner = runner
}

// Enqueue hands task to the pool without blocking the caller. A full backlog
// is not an error: the booking stays PENDING and the recovery sweep
// re-enqueues it.
func (q *LocalQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.runner == nil {
		return errors.New("local task queue has no runner bound")
	}

	q.wg.Add(1)
	select {
	case q.backlog <- localTask{task: task, runner: q.runner}:
	default:
		q.wg.Done()
		q.log.Warn("Saga task backlog full, leaving booking to recovery",
			"booking_id", task.BookingID,
			"run_id", task.RunID,
			"reason", task.Reason,
			"backlog", cap(q.backlog),
		)
	}
	return nil
}

func (q *LocalQueue) dispatch() {
	for {
		select {
		case lt := <-q.backlog:
			q.limiter.Go(func() {
				defer q.wg.Done()
				if err := lt.runner.Run(q.ctx, lt.task.BookingID); err != nil {
					q.log.Warn("Saga run returned error",
						"booking_id", lt.task.BookingID,
						"run_id", lt.task.RunID,
						"reason", lt.task.Reason,
						"error", err,
					)
				}
			})
		case <-q.ctx.Done():
			// Close holds off new sends, so whatever is buffered is all there is.
			for {
				select {
				case <-q.backlog:
					q.wg.Done()
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until every enqueued task has finished.
func (q *LocalQueue) Wait() {
	q.wg.Wait()
}

func (q *LocalQueue) InFlight() int {
	return q.limiter.InFlight()
}

// Close stops accepting tasks, cancels running ones and waits for them.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	return nil
}
