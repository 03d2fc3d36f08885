package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/taskboard/backend/internal/config"
	"github.com/taskboard/backend/internal/ordering"
	"github.com/taskboard/backend/pkg/logger"
)

const (
	TaskTypeEvent = "task:event"
)

// Task event types.
const (
	EventTaskCreated    = "created"
	EventTaskMoved      = "moved"
	EventTaskEdited     = "edited"
	EventTaskDeleted    = "deleted"
	EventProjectDeleted = "project_deleted"
)

// TaskEvent is published after a committed board mutation.
type TaskEvent struct {
	Type      string             `json:"type"`
	ProjectID string             `json:"project_id"`
	TaskID    string             `json:"task_id,omitempty"`
	ActorID   string             `json:"actor_id"`
	Title     string             `json:"title,omitempty"`
	From      *ordering.Position `json:"from,omitempty"`
	To        *ordering.Position `json:"to,omitempty"`
	At        time.Time          `json:"at"`
}

// TaskQueue delivers task events to the EventProcessor
type TaskQueue interface {
	// Enqueue adds an event to the queue
	Enqueue(event *TaskEvent) error
	// IsAsync returns true if queue processes events asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// Global task queue instance
var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		globalTaskQueue = NewTaskQueue(cfg)
	})
	return globalTaskQueue
}

// NewTaskQueue picks the asynq queue when Redis is enabled and reachable,
// the in-process queue otherwise.
func NewTaskQueue(cfg *config.Config) TaskQueue {
	if !cfg.Redis.Enabled {
		logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
		return NewSyncQueue()
	}
	queue, err := NewAsyncQueue(&cfg.Redis)
	if err != nil {
		logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
		return NewSyncQueue()
	}
	logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
	return queue
}

// GetTaskQueue returns the global task queue instance
func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisClientOpt(cfg)
	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

// NewEventTask encodes an event as an asynq task.
func NewEventTask(event *TaskEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeEvent, payload), nil
}

// Enqueue adds an event to the async queue
func (q *AsyncQueue) Enqueue(event *TaskEvent) error {
	t, err := NewEventTask(event)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(t,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Debugf("[AsyncQueue] Event enqueued: id=%s, type=%s, project=%s", info.ID, event.Type, event.ProjectID)
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// EventHandler processes one task event.
type EventHandler func(context.Context, *TaskEvent) error

// SyncQueue implements TaskQueue without Redis. Events are handled in a
// background goroutine so publishing never blocks a request.
type SyncQueue struct {
	mu        sync.RWMutex
	processor EventHandler
	wg        sync.WaitGroup
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor EventHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processor = processor
}

func (q *SyncQueue) Enqueue(event *TaskEvent) error {
	q.mu.RLock()
	processor := q.processor
	q.mu.RUnlock()

	if processor == nil {
		logger.Warnf("[SyncQueue] No processor set, event %s dropped", event.Type)
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := processor(context.Background(), event); err != nil {
			logger.Errorf("[SyncQueue] Event processing failed: %v", err)
		}
	}()

	return nil
}

// Wait blocks until every enqueued event has been handled.
func (q *SyncQueue) Wait() {
	q.wg.Wait()
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close waits for in-flight events.
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}
