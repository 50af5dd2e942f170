package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"elis/backend/internal/config"
)

// Runtime owns the broker handles for job delivery: one consumer per job
// topic plus the lease reaper. Constructed once per process and passed by
// handle; there are no package-level singletons.
//
// Delivery guarantees, all from NSQ semantics plus configuration here:
//   - at-least-once: the message is acknowledged only after the executor
//     returns (handler-return is the late ack), so a crashed worker causes
//     redelivery;
//   - one job at a time per worker process (MaxInFlight=1), bounding the
//     blast radius of a heavy container run;
//   - MsgTimeout stays short and the executor touches the in-flight
//     delivery on a keep-alive interval, so long container runs are not
//     redelivered mid-flight.
type Runtime struct {
	cfg       *config.Config
	executor  *Executor
	reaper    *Reaper
	logger    *slog.Logger
	consumers []*nsq.Consumer
	cancel    context.CancelFunc
}

func NewRuntime(cfg *config.Config, executor *Executor, reaper *Reaper, logger *slog.Logger) *Runtime {
	return &Runtime{cfg: cfg, executor: executor, reaper: reaper, logger: logger}
}

// Start subscribes a consumer to every job topic on the shared "worker"
// channel and launches the reaper loop.
func (rt *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel

	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = 1
	// nsqd rejects IDENTIFY msg_timeout above its -max-msg-timeout (15m on
	// a stock nsqd), so the value cannot cover the hard execution limit.
	// The executor's Touch keep-alive carries long runs instead.
	nsqCfg.MsgTimeout = 2 * time.Minute
	// Broker-level backstop only; retry policy proper lives in the
	// executor's RetryDecision path.
	nsqCfg.MaxAttempts = uint16(rt.cfg.JobMaxRetries + 2)

	for _, topic := range config.Topics() {
		consumer, err := nsq.NewConsumer(topic, "worker", nsqCfg)
		if err != nil {
			rt.Stop()
			return fmt.Errorf("create consumer for %s: %w", topic, err)
		}
		consumer.AddHandler(nsq.HandlerFunc(rt.executor.HandleMessage))
		if err := consumer.ConnectToNSQLookupd(rt.cfg.NSQLookupd); err != nil {
			rt.Stop()
			return fmt.Errorf("connect consumer for %s: %w", topic, err)
		}
		rt.consumers = append(rt.consumers, consumer)
		rt.logger.Info("job consumer connected", "topic", topic)
	}

	if rt.cfg.EnableReaper {
		go rt.reaper.Run(ctx)
	}

	return nil
}

// Stop unsubscribes all consumers and stops the reaper. In-flight handler
// calls run to completion first (NSQ drains on Stop).
func (rt *Runtime) Stop() {
	if rt.cancel != nil {
		rt.cancel()
	}
	for _, c := range rt.consumers {
		c.Stop()
		<-c.StopChan
	}
	rt.consumers = nil
}
