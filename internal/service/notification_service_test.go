package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/custody-service/internal/events"
)

type countingInvalidator struct {
	calls atomic.Int32
	err   error
}

func (c *countingInvalidator) InvalidateStats(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestNotificationService_Handlers(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	stats := &countingInvalidator{}
	NewNotificationService(dispatcher, zap.New(core), stats).RegisterHandlers()

	ctx := context.Background()
	payload := events.CustodyPayload{EmployeeID: "e-1", AssetKind: "key", AssetID: "k-1"}
	for _, typ := range []events.EventType{
		events.EventAssetCheckedOut,
		events.EventAssetCheckedIn,
		events.EventAssetReportedLost,
		events.EventReturnExtended,
		events.EventRegistryChanged,
	} {
		assert.NoError(t, dispatcher.Publish(ctx, events.Event{ID: "evt", Type: typ, TransactionNumber: "TXN-20240314-0001", Payload: payload}))
	}

	assert.Equal(t, int32(5), stats.calls.Load())
	assert.Equal(t, 5, logs.Len())
	lost := logs.FilterMessage(string(events.EventAssetReportedLost)).All()
	if assert.Len(t, lost, 1) {
		assert.Equal(t, zapcore.WarnLevel, lost[0].Level)
		assert.Equal(t, "TXN-20240314-0001", lost[0].ContextMap()["transaction_number"])
	}
}

func TestNotificationService_InvalidateFailure(t *testing.T) {
	t.Parallel()
	dispatcher := events.NewInMemoryDispatcher()
	stats := &countingInvalidator{err: errors.New("redis down")}
	NewNotificationService(dispatcher, nil, stats).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventAssetCheckedIn})
	assert.EqualError(t, err, "redis down")

	NewNotificationService(events.NewInMemoryDispatcher(), nil, nil).RegisterHandlers()
}
