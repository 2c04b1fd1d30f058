package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/fedseries/fedseries/internal/errors"
)

func TestOpContextRecordsAttempts(t *testing.T) {
	op := Begin("fred.observations")
	require.NotEmpty(t, op.ID)
	require.Equal(t, "fred.observations", op.Name)

	op.Record(1, apperrors.NewConnection("down", "https://example.test", 503), 120*time.Millisecond)
	op.Record(2, nil, 80*time.Millisecond)

	attempts := op.Attempts()
	require.Len(t, attempts, 2)
	require.Equal(t, 1, attempts[0].Attempt)
	require.Error(t, attempts[0].Err)
	require.NoError(t, attempts[1].Err)
	require.Equal(t, 2, op.AttemptCount())
}

func TestOpContextNilReceiverSafe(t *testing.T) {
	var op *OpContext
	op.Record(1, nil, time.Second)
	require.Zero(t, op.Finish())
	require.Nil(t, op.Attempts())
	require.Zero(t, op.AttemptCount())
	require.Nil(t, op.Fields())
}

func TestOpContextFinishDuration(t *testing.T) {
	clock := newFakeClock()
	op := Begin("haver.data")
	op.Clock = clock.Now
	op.Start = clock.Now()

	clock.Advance(3 * time.Second)
	require.Equal(t, 3*time.Second, op.Finish())
}

func TestOpContextFields(t *testing.T) {
	op := Begin("fred.series")
	op.Record(1, apperrors.NewRateLimit("throttled", time.Second), 50*time.Millisecond)
	op.Record(2, nil, 40*time.Millisecond)

	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("done", op.Fields()...)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	require.Equal(t, op.ID, fields["operation_id"])
	require.Equal(t, "fred.series", fields["operation"])
	require.EqualValues(t, 2, fields["attempts"])
	require.Equal(t, []interface{}{"rate_limit", "success"}, fields["attempt_kinds"])
}

func TestOpContextAttemptsReturnsCopy(t *testing.T) {
	op := Begin("test")
	op.Record(1, nil, time.Millisecond)

	first := op.Attempts()
	first[0].Attempt = 99
	require.Equal(t, 1, op.Attempts()[0].Attempt)
}
