// Package webhook delivers notifications to an external HTTP endpoint, such
// as a mail relay, from a bounded pool of workers.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/frahmantamala/project-access/internal/notification"
)

const (
	KindTeamAssigned  = "team.assigned"
	KindTeamRemoved   = "team.removed"
	KindPasswordReset = "password.reset_requested"
)

var ErrQueueFull = errors.New("notification queue full")

type Config struct {
	URL         string
	APIKey      string
	Timeout     time.Duration
	MaxWorkers  int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

// Message is the JSON body posted to the endpoint.
type Message struct {
	Kind    string      `json:"kind"`
	UserID  int64       `json:"user_id"`
	SentAt  time.Time   `json:"sent_at"`
	Payload interface{} `json:"payload"`
}

type Worker struct {
	ID         int
	WorkerPool chan chan Message
	JobChannel chan Message
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Message, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Message),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Message)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case msg := <-w.JobChannel:
				w.Logger.Debug("worker delivering notification", "worker_id", w.ID, "kind", msg.Kind)
				processFunc(msg)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Notifier implements notification.Notifier by queueing each message for
// asynchronous delivery. A full queue is reported to the caller.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	jobQueue   chan Message
	workerPool chan chan Message
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewNotifier(cfg Config, logger *slog.Logger) *Notifier {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
		jobQueue:   make(chan Message, cfg.QueueSize),
		workerPool: make(chan chan Message, cfg.MaxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}
	n.start()
	return n
}

func (n *Notifier) start() {
	n.once.Do(func() {
		for i := 0; i < n.cfg.MaxWorkers; i++ {
			NewWorker(i, n.workerPool, n.logger).Start(n.ctx, &n.wg, n.deliver)
		}

		n.wg.Add(1)
		go n.dispatch()

		n.logger.Info("notification webhook workers started",
			"max_workers", n.cfg.MaxWorkers,
			"queue_size", cap(n.jobQueue))
	})
}

func (n *Notifier) dispatch() {
	defer n.wg.Done()

	for {
		select {
		case msg := <-n.jobQueue:
			select {
			case jobChannel := <-n.workerPool:
				select {
				case jobChannel <- msg:
				case <-n.ctx.Done():
					return
				}
			case <-n.ctx.Done():
				return
			}
		case <-n.ctx.Done():
			return
		}
	}
}

// Shutdown stops the workers. Queued messages that were not picked up are dropped.
func (n *Notifier) Shutdown() {
	n.cancel()
	n.wg.Wait()
	n.logger.Info("notification webhook workers stopped", "dropped", len(n.jobQueue))
}

func (n *Notifier) NotifyTeamAssignment(_ context.Context, c notification.TeamChange) error {
	return n.enqueue(KindTeamAssigned, c.User.UserID, c)
}

func (n *Notifier) NotifyTeamRemoval(_ context.Context, c notification.TeamChange) error {
	return n.enqueue(KindTeamRemoved, c.User.UserID, c)
}

func (n *Notifier) NotifyPasswordReset(_ context.Context, r notification.PasswordReset) error {
	return n.enqueue(KindPasswordReset, r.User.UserID, r)
}

func (n *Notifier) enqueue(kind string, userID int64, payload interface{}) error {
	msg := Message{Kind: kind, UserID: userID, SentAt: n.now().UTC(), Payload: payload}
	select {
	case n.jobQueue <- msg:
		return nil
	default:
		n.logger.Warn("notification queue full, dropping message",
			"kind", kind,
			"user_id", userID,
			"queue_capacity", cap(n.jobQueue))
		return ErrQueueFull
	}
}

func (n *Notifier) deliver(msg Message) {
	body, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error("failed to marshal notification", "kind", msg.Kind, "error", err)
		return
	}

	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		err = n.post(body)
		if err == nil {
			n.logger.Info("notification delivered", "kind", msg.Kind, "user_id", msg.UserID, "attempt", attempt)
			return
		}
		n.logger.Warn("notification delivery failed",
			"kind", msg.Kind,
			"user_id", msg.UserID,
			"attempt", attempt,
			"error", err)

		if attempt == n.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(n.cfg.RetryDelay * time.Duration(attempt)):
		case <-n.ctx.Done():
			return
		}
	}
	n.logger.Error("notification abandoned", "kind", msg.Kind, "user_id", msg.UserID, "attempts", n.cfg.MaxAttempts)
}

func (n *Notifier) post(body []byte) error {
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", n.cfg.APIKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
