package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/taskboard/backend/internal/config"
	"github.com/taskboard/backend/internal/ordering"
	"github.com/taskboard/backend/pkg/logger"
	"gorm.io/gorm"
)

// CacheEvicter drops cached data derived from a project's tasks.
type CacheEvicter interface {
	Evict(ctx context.Context, projectID string)
}

// EventProcessor records task events in the activity log and evicts the
// project's analytics cache entry.
type EventProcessor struct {
	db    *gorm.DB
	cache CacheEvicter
}

func NewEventProcessor(db *gorm.DB, cache CacheEvicter) *EventProcessor {
	return &EventProcessor{db: db, cache: cache}
}

func (p *EventProcessor) Process(ctx context.Context, event *TaskEvent) error {
	if p.cache != nil {
		p.cache.Evict(ctx, event.ProjectID)
	}
	if event.Type == EventProjectDeleted {
		return nil
	}

	projectID, actorID := event.ProjectID, event.ActorID
	entry := LogEntry{
		ProjectID: &projectID,
		Extra: map[string]interface{}{
			"task_id": event.TaskID,
			"title":   event.Title,
			"from":    event.From,
			"to":      event.To,
		},
	}
	if actorID != "" {
		entry.UserID = &actorID
	}

	row := newSystemLog("info", "task", event.Type, describeEvent(event), entry)
	if !event.At.IsZero() {
		row.CreatedAt = event.At
	}
	return p.db.WithContext(ctx).Create(row).Error
}

func describeEvent(event *TaskEvent) string {
	switch event.Type {
	case EventTaskCreated:
		return fmt.Sprintf("created %q in %s", event.Title, positionText(event.To))
	case EventTaskMoved:
		return fmt.Sprintf("moved %q from %s to %s", event.Title, positionText(event.From), positionText(event.To))
	case EventTaskEdited:
		return fmt.Sprintf("edited %q", event.Title)
	case EventTaskDeleted:
		return fmt.Sprintf("deleted %q from %s", event.Title, positionText(event.From))
	}
	return event.Type
}

func positionText(p *ordering.Position) string {
	if p == nil {
		return "?"
	}
	return fmt.Sprintf("%s#%d", p.Status, p.Order)
}

// Worker consumes task events from the asynq queue
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor EventHandler
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

// NewWorker returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig) *Worker {
	if !cfg.Enabled {
		return nil
	}

	server := asynq.NewServer(
		redisClientOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Errorf("[Worker] Error processing task %s: %v", task.Type(), err)
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
	}
}

func (w *Worker) SetProcessor(processor EventHandler) {
	w.processor = processor
}

// Start begins processing tasks
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeEvent, w.HandleEventTask)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Infof("[Worker] Starting async worker...")
		if err := w.server.Run(w.mux); err != nil {
			logger.Errorf("[Worker] Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	logger.Infof("[Worker] Shutting down...")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Infof("[Worker] Shutdown complete")
}

// HandleEventTask decodes one queued event and hands it to the processor.
func (w *Worker) HandleEventTask(ctx context.Context, t *asynq.Task) error {
	var event TaskEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		logger.Errorf("[Worker] Failed to unmarshal event: %v", err)
		return fmt.Errorf("decode task event: %v: %w", err, asynq.SkipRetry)
	}

	logger.Debugf("[Worker] Processing event: type=%s, project=%s, task=%s", event.Type, event.ProjectID, event.TaskID)

	if w.processor == nil {
		logger.Warnf("[Worker] No processor set")
		return nil
	}

	return w.processor(ctx, &event)
}
