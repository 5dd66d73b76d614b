package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/spatialbench/internal/engine"
	"github.com/signalnine/spatialbench/internal/result"
)

func TestQueryRunnerSuccess(t *testing.T) {
	q := NewQueryRunner(nil)
	a := newStub("duck", map[string]execFunc{"q1": succeedIn(20*time.Millisecond, 5)})

	r := q.Run(context.Background(), a, engine.Request{QueryID: "q1"}, 2, time.Second)
	require.NoError(t, r.Validate())
	assert.Equal(t, result.StatusSuccess, r.Status)
	assert.Equal(t, 2, r.RunIndex)
	assert.Equal(t, int64(5), r.Rows())
	assert.GreaterOrEqual(t, r.Elapsed(), 0.02)
}

func TestQueryRunnerZeroRowsInstant(t *testing.T) {
	q := NewQueryRunner(nil)
	a := newStub("duck", map[string]execFunc{"q1": func(context.Context, engine.Request) (int64, error) { return 0, nil }})

	r := q.Run(context.Background(), a, engine.Request{QueryID: "q1"}, 1, time.Second)
	assert.Equal(t, result.StatusSuccess, r.Status)
	assert.Positive(t, r.Elapsed())
	assert.Zero(t, r.Rows())
}

func TestQueryRunnerTimeout(t *testing.T) {
	q := NewQueryRunner(nil)
	a := newStub("duck", map[string]execFunc{"q4": hang})

	start := time.Now()
	r := q.Run(context.Background(), a, engine.Request{QueryID: "q4"}, 1, 100*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	require.NoError(t, r.Validate())
	assert.Equal(t, result.StatusTimeout, r.Status)
	assert.Nil(t, r.ElapsedSeconds)
	assert.Nil(t, r.RowCount)
	assert.Equal(t, "query q4 timed out after 0.1s (execution killed)", r.Message())
}

func TestQueryRunnerStubbornExecution(t *testing.T) {
	q := &QueryRunner{ReapGrace: 50 * time.Millisecond}
	release := make(chan struct{})
	defer close(release)
	a := newStub("duck", map[string]execFunc{"q1": func(context.Context, engine.Request) (int64, error) {
		<-release
		return 1, nil
	}})

	start := time.Now()
	r := q.Run(context.Background(), a, engine.Request{QueryID: "q1"}, 1, 100*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, result.StatusTimeout, r.Status)
}

func TestQueryRunnerError(t *testing.T) {
	q := NewQueryRunner(nil)
	a := newStub("duck", map[string]execFunc{"q1": raise("Binder Error: column geom not found")})

	r := q.Run(context.Background(), a, engine.Request{QueryID: "q1"}, 1, time.Second)
	require.NoError(t, r.Validate())
	assert.Equal(t, result.StatusError, r.Status)
	assert.Equal(t, "Binder Error: column geom not found", r.Message())
	assert.NotNil(t, r.ElapsedSeconds)
}

func TestQueryRunnerPanic(t *testing.T) {
	q := NewQueryRunner(nil)
	a := newStub("duck", map[string]execFunc{"q1": func(context.Context, engine.Request) (int64, error) {
		panic("boom")
	}})

	r := q.Run(context.Background(), a, engine.Request{QueryID: "q1"}, 1, time.Second)
	assert.Equal(t, result.StatusError, r.Status)
	assert.Equal(t, "panic: boom", r.Message())
	assert.NotNil(t, r.ElapsedSeconds)
}

func TestQueryRunnerInterrupted(t *testing.T) {
	q := NewQueryRunner(nil)
	a := newStub("duck", map[string]execFunc{"q1": hang})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	r := q.Run(ctx, a, engine.Request{QueryID: "q1"}, 1, 10*time.Second)
	assert.Equal(t, result.StatusError, r.Status)
	assert.Contains(t, r.Message(), "interrupted")
	assert.Nil(t, r.ElapsedSeconds)

	r = q.Run(ctx, a, engine.Request{QueryID: "q1"}, 2, time.Second)
	assert.Contains(t, r.Message(), "interrupted")
}
