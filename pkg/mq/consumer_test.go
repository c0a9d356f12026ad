package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"emailthing/pkg/circuitbreaker"
	"emailthing/pkg/util"
)

type fakeDelivery struct {
	acks     int
	nacks    int
	requeued bool
}

func (d *fakeDelivery) Ack(bool) error { d.acks++; return nil }

func (d *fakeDelivery) Nack(_ bool, requeue bool) error {
	d.nacks++
	d.requeued = requeue
	return nil
}

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	d := &fakeDelivery{}
	handleDelivery(context.Background(), d, []byte(`{}`), "rk",
		func(context.Context, json.RawMessage) error { return nil }, nil, zap.NewNop())

	assert.Equal(t, 1, d.acks)
	assert.Zero(t, d.nacks)
}

func TestHandleDeliveryRequeuesRetryable(t *testing.T) {
	d := &fakeDelivery{}
	handleDelivery(context.Background(), d, []byte(`{}`), "rk",
		func(context.Context, json.RawMessage) error { return context.DeadlineExceeded }, nil, zap.NewNop())

	assert.Zero(t, d.acks)
	assert.Equal(t, 1, d.nacks)
	assert.True(t, d.requeued)
}

func TestHandleDeliveryRequeuesWhenBreakerOpen(t *testing.T) {
	d := &fakeDelivery{}
	dlqCalled := false
	dlq := func(context.Context, []byte, string, error) error {
		dlqCalled = true
		return nil
	}

	handleDelivery(context.Background(), d, []byte(`{"mailbox_id":"m1","user_id":"u1"}`), "mailbox.access_changed",
		func(context.Context, json.RawMessage) error {
			return fmt.Errorf("invalidate mailbox_access:m1:u1: %w: %w", util.ErrTransient, circuitbreaker.ErrCircuitBreakerOpen)
		},
		dlq, zap.NewNop())

	assert.Zero(t, d.acks)
	assert.Equal(t, 1, d.nacks)
	assert.True(t, d.requeued)
	assert.False(t, dlqCalled)
}

func TestHandleDeliveryDeadLettersPermanent(t *testing.T) {
	d := &fakeDelivery{}
	var dlqBody []byte
	var dlqType string
	dlq := func(_ context.Context, body []byte, errorType string, _ error) error {
		dlqBody, dlqType = body, errorType
		return nil
	}

	handleDelivery(context.Background(), d, []byte(`bad`), "rk",
		func(context.Context, json.RawMessage) error { return fmt.Errorf("bad payload: %w", util.ErrPermanent) },
		dlq, zap.NewNop())

	assert.Equal(t, 1, d.acks)
	assert.Equal(t, []byte(`bad`), dlqBody)
	assert.Equal(t, "permanent", dlqType)
}

func TestHandleDeliveryRequeuesWhenDLQFails(t *testing.T) {
	d := &fakeDelivery{}
	dlq := func(context.Context, []byte, string, error) error { return errors.New("channel closed") }

	handleDelivery(context.Background(), d, []byte(`bad`), "rk",
		func(context.Context, json.RawMessage) error { return util.ErrPermanent }, dlq, zap.NewNop())

	assert.Zero(t, d.acks)
	assert.Equal(t, 1, d.nacks)
	assert.True(t, d.requeued)
}

func TestHandleDeliveryRecoversPanic(t *testing.T) {
	d := &fakeDelivery{}
	handleDelivery(context.Background(), d, nil, "rk",
		func(context.Context, json.RawMessage) error { panic("boom") }, nil, zap.NewNop())

	assert.Equal(t, 1, d.nacks)
	assert.True(t, d.requeued)
}

func TestTraceIDFromHeaders(t *testing.T) {
	assert.Equal(t, "abc", traceIDFromHeaders(amqp091.Table{"trace_id": "abc"}))
	assert.Len(t, traceIDFromHeaders(nil), 32)
}
