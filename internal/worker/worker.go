// Package worker handles events published by the API.
package worker

import (
	"context"

	"github.com/sirupsen/logrus"

	"kkn/internal/attendance"
	"kkn/internal/metrics"
	"kkn/internal/queue"
)

// HistoryRecorder appends a decided event to the approval history.
type HistoryRecorder interface {
	RecordHistory(ctx context.Context, msg queue.Message) error
}

// Processor dispatches queue messages by type.
type Processor struct {
	history HistoryRecorder
	log     *logrus.Entry
}

// New creates a processor.
func New(history HistoryRecorder) *Processor {
	return &Processor{history: history, log: logrus.WithField("component", "worker")}
}

// Handle processes one message. Unknown types are skipped.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeApprovalDecided:
		return p.history.RecordHistory(ctx, msg)
	case queue.TypeAttendanceRecorded:
		var evt attendance.RecordedEvent
		if err := msg.Decode(&evt); err != nil {
			return err
		}
		p.log.WithFields(logrus.Fields{
			"team":   evt.Team,
			"user":   evt.User,
			"date":   evt.Date,
			"status": evt.Status,
			"source": evt.Source,
			"by":     evt.By,
		}).Info("attendance recorded")
		return nil
	default:
		p.log.WithField("type", msg.Type).Warn("skipping unknown message type")
		metrics.QueueMessages.WithLabelValues(msg.Type, "skipped").Inc()
		return nil
	}
}

// Run consumes q until ctx is done or the queue closes. Failed messages are
// logged and dropped.
func (p *Processor) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	p.log.Info("worker started, waiting for messages")
	for msg := range messages {
		if err := p.Handle(ctx, msg); err != nil {
			p.log.WithError(err).WithField("type", msg.Type).Error("message failed")
			metrics.QueueMessages.WithLabelValues(msg.Type, "failed").Inc()
			continue
		}
		metrics.QueueMessages.WithLabelValues(msg.Type, "ok").Inc()
	}
	p.log.Info("worker stopped")
	return nil
}
