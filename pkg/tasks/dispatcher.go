// Package tasks publishes fire-and-forget work to the pipeline broker.
// Delivery is at-least-once; retries and acknowledgement belong to the
// broker and its consumers, not to this package.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oncoregistry/ingest/pkg/config"
	"github.com/oncoregistry/ingest/pkg/observability"
)

// Downstream task names.
const (
	TaskManageWorkflows        = "framework.tasks.snakemake_tasks.manage_workflows"
	TaskPostprocessing         = "framework.tasks.processing_tasks.postprocessing"
	TaskMoveFilesFromStaging   = "framework.tasks.cromwell_tasks.move_files_from_staging"
	TaskChangeUploadPermission = "framework.tasks.administrative_tasks.change_upload_permission"
	TaskDeactivateAccount      = "framework.tasks.administrative_tasks.call_deactivate_account"
)

// Dispatcher hands a task to the broker. Implementations never surface
// publish failures to the caller; the triggering write already succeeded and
// must not be rolled back over a notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, task string, args []interface{}, correlationID int64)
}

// Envelope is the broker message format consumed by the task workers.
type Envelope struct {
	ID      int64                  `json:"id"`
	Task    string                 `json:"task"`
	Args    []interface{}          `json:"args"`
	Kwargs  map[string]interface{} `json:"kwargs"`
	Retries int                    `json:"retries"`
}

// RedisDispatcher publishes task envelopes onto a redis list queue. The
// client's connection pool is owned for the process lifetime; publishes
// check a connection out rather than dialing per call.
type RedisDispatcher struct {
	client  *redis.Client
	queue   string
	metrics *observability.Metrics
	log     logrus.FieldLogger
}

// NewRedisDispatcher connects to the broker and pings it before returning.
func NewRedisDispatcher(cfg config.BrokerConfig, metrics *observability.Metrics, log logrus.FieldLogger) (*RedisDispatcher, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return &RedisDispatcher{client: client, queue: cfg.Queue, metrics: metrics, log: log}, nil
}

// Dispatch serializes and publishes one task envelope. Failures are logged
// and counted, never returned.
func (d *RedisDispatcher) Dispatch(ctx context.Context, task string, args []interface{}, correlationID int64) {
	if args == nil {
		args = []interface{}{}
	}
	envelope := Envelope{
		ID:      correlationID,
		Task:    task,
		Args:    args,
		Kwargs:  map[string]interface{}{},
		Retries: 0,
	}
	dispatchLog := observability.WithCategory(d.log, observability.CategoryDispatch).
		WithField("task", task).
		WithField("id", correlationID)

	payload, err := json.Marshal(envelope)
	if err != nil {
		dispatchLog.WithError(err).Error("failed to encode task envelope")
		d.count(task, "error")
		return
	}
	if err := d.client.LPush(ctx, d.queue, payload).Err(); err != nil {
		dispatchLog.WithError(err).Error("failed to publish task")
		d.count(task, "error")
		return
	}
	dispatchLog.Debug("task published")
	d.count(task, "ok")
}

// Close releases the broker connection pool.
func (d *RedisDispatcher) Close() error {
	return d.client.Close()
}

func (d *RedisDispatcher) count(task, status string) {
	if d.metrics == nil {
		return
	}
	d.metrics.TasksDispatched.WithLabelValues(task, status).Inc()
}

// NewCorrelationID produces a random id for one dispatch.
func NewCorrelationID() int64 {
	return int64(uuid.New().ID())
}
