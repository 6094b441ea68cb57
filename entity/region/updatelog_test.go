package region

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVUpdateLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updates.csv")
	l, err := NewCSVUpdateLog(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Append(ctx, UpdateRecord{Time: 1200.5, NodeID: 3, AgreedCycleTime: 60, NewCycleTime: 72, Reason: ReasonNewCycleTime}))
	require.NoError(t, l.Close(ctx))

	l, err = NewCSVUpdateLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, UpdateRecord{Time: 2400, NodeID: 3, AgreedCycleTime: 72, NewCycleTime: 72, Reason: ReasonNone}))
	require.NoError(t, l.Close(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"1200.50; 3; 60; 2;\n1200.50; 3; 72; 2;\n2400.00; 3; 72; 0;\n2400.00; 3; 72; 0;\n",
		string(data))
}

func TestCSVUpdateLogBadPath(t *testing.T) {
	_, err := NewCSVUpdateLog(filepath.Join(t.TempDir(), "missing", "updates.csv"))
	assert.Error(t, err)
}

type failingLog struct{ err error }

func (f failingLog) Append(context.Context, UpdateRecord) error { return f.err }
func (f failingLog) Close(context.Context) error                { return f.err }

func TestMultiUpdateLog(t *testing.T) {
	boom := errors.New("boom")
	mem := &MemoryUpdateLog{}
	multi := MultiUpdateLog{mem, failingLog{err: boom}}

	r := UpdateRecord{RunID: "run", Time: 10, NodeID: 1, Reason: ReasonNewPartners}
	err := multi.Append(context.Background(), r)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []UpdateRecord{r}, mem.Records())
	assert.ErrorIs(t, multi.Close(context.Background()), boom)
}

func TestNegotiatorLogUpdateStampsRunID(t *testing.T) {
	g := &Negotiator{runID: newRunID()}
	mem := &MemoryUpdateLog{}
	g.SetUpdateLog(mem)

	first := g.RunID()
	g.logUpdate(UpdateRecord{NodeID: 4, Reason: ReasonNone})
	second := g.beginCycle()
	g.logUpdate(UpdateRecord{NodeID: 4, Reason: ReasonNewCycleTime})

	records := mem.Records()
	require.Len(t, records, 2)
	assert.NotEqual(t, first, second)
	assert.Equal(t, first, records[0].RunID)
	assert.Equal(t, second, records[1].RunID)
	assert.Equal(t, second, g.RunID())
}

func TestUpdateReasonString(t *testing.T) {
	assert.Equal(t, "none", ReasonNone.String())
	assert.Equal(t, "new_cycle_time", ReasonNewCycleTime.String())
	assert.Equal(t, "new_partners", ReasonNewPartners.String())
	assert.Equal(t, "UpdateReason(3)", UpdateReason(3).String())
}
