package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/resilience"
)

const defaultQueueGroup = "workers"

type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	executor   *resilience.Executor
	// onHandled, when set, is called after each delivered job with its outcome.
	onHandled func(job domain.IndexJob, err error, elapsed time.Duration)
}

type Options struct {
	ClientName           string
	QueueGroup           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	OnHandled            func(job domain.IndexJob, err error, elapsed time.Duration)
}

func New(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	clientName := options.ClientName
	if clientName == "" {
		clientName = "corpus-rag"
	}
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = defaultQueueGroup
	}

	conn, err := nats.Connect(
		url,
		nats.Name(clientName),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		queueGroup: queueGroup,
		executor:   options.ResilienceExecutor,
		onHandled:  options.OnHandled,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIndexJob(ctx context.Context, job domain.IndexJob) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(err)
	}
	return nil
}

// SubscribeIndexJobs delivers jobs to handler until ctx is cancelled, then
// drains the subscription. Messages are dispatched by the NATS client one at
// a time per subscription; callers wanting parallelism hand jobs to a pool.
func (q *Queue) SubscribeIndexJobs(ctx context.Context, handler func(context.Context, domain.IndexJob) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		q.dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) dispatch(ctx context.Context, data []byte, handler func(context.Context, domain.IndexJob) error) {
	job, err := decodeJob(data)
	if err != nil {
		slog.Error("index_job_decode_failed", "error", err, "bytes", len(data))
		return
	}

	started := time.Now()
	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	err = handler(handlerCtx, job)
	if err != nil {
		slog.Error("index_job_failed", "path", job.Path, "change", job.Change, "error", err)
	}
	if q.onHandled != nil {
		q.onHandled(job, err, time.Since(started))
	}
}

func (q *Queue) Name() string {
	return "nats"
}

func (q *Queue) Check(context.Context) error {
	if q.conn == nil || !q.conn.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func encodeJob(job domain.IndexJob) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal index job: %w", err)
	}
	return data, nil
}

func decodeJob(data []byte) (domain.IndexJob, error) {
	var job domain.IndexJob
	if err := json.Unmarshal(data, &job); err != nil {
		return job, domain.WrapError(domain.ErrInvalidInput, "decode index job", err)
	}
	if job.Path == "" || job.ContentHash == "" {
		return job, domain.WrapError(domain.ErrInvalidInput, "decode index job", errors.New("path and content_hash are required"))
	}
	return job, nil
}
