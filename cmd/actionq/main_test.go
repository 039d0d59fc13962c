package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/config"
	"github.com/goliatone/go-actionqueue/manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulationRunsEverySessionToCompletion(t *testing.T) {
	table := actionqueue.NewFlagTable(defaultKinds)
	opts := []manager.Option[int]{manager.WithLogger[int](actionqueue.NopLogger{})}

	summary, err := runSimulation(context.Background(), Scenario{
		Keys:          3,
		ActionsPerKey: 6,
		SnapshotEvery: 3,
		WorkDelay:     time.Millisecond,
		Retries:       20,
		RetryDelay:    time.Millisecond,
	}, table, opts, actionqueue.NopLogger{})
	require.NoError(t, err)

	// open + 6 + close per key
	assert.Equal(t, int64(3*8), summary.Submitted)
	assert.Equal(t, summary.Submitted, summary.Admitted)
	assert.Zero(t, summary.Rejected)
	assert.Equal(t, summary.Admitted, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.QueuesLeft)
}

func TestSimulationWithPings(t *testing.T) {
	table := actionqueue.NewFlagTable(defaultKinds)

	summary, err := runSimulation(context.Background(), Scenario{
		Keys:          1,
		ActionsPerKey: 60,
		WorkDelay:     30 * time.Millisecond,
		Ping:          "@every 1s",
	}, table, []manager.Option[int]{manager.WithLogger[int](actionqueue.NopLogger{})}, actionqueue.NopLogger{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, summary.Pings, int64(1))
	assert.Zero(t, summary.QueuesLeft)
}

func TestSimulationRejectsInvalidPingExpression(t *testing.T) {
	table := actionqueue.NewFlagTable(defaultKinds)
	_, err := runSimulation(context.Background(), Scenario{Keys: 1, Ping: "whenever"}, table, nil, actionqueue.NopLogger{})
	assert.True(t, actionqueue.IsConfigInvalid(err))
}

func TestFlagTableFallsBackToDefaults(t *testing.T) {
	table, err := flagTable(config.Default())
	require.NoError(t, err)
	assert.Equal(t, actionqueue.Terminating, table.Flags(kindClose))

	cfg := config.Default()
	cfg.Kinds = map[string]string{"mount": "creational"}
	table, err = flagTable(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"mount"}, table.Kinds())
}

func TestPrintFlags(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, printFlags(buf, actionqueue.NewFlagTable(defaultKinds)))

	out := buf.String()
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "snapshot")
	assert.Contains(t, out, "unqueued")
}
