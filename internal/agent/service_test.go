package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/store"
)

type fakeRunner struct {
	result *InvocationResult
	err    error

	gotDir    string
	gotPrompt string
}

func (f *fakeRunner) Invoke(ctx context.Context, dir, prompt string) (*InvocationResult, error) {
	f.gotDir = dir
	f.gotPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGit struct {
	sha string
	err error
}

func (f *fakeGit) HeadCommit(ctx context.Context, dir string) (string, error) {
	return f.sha, f.err
}

type fakeGates struct {
	results []GateResult
	err     error
}

func (f *fakeGates) Run(ctx context.Context, dir string) ([]GateResult, error) {
	return f.results, f.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func jsonOutput(content string) *InvocationResult {
	return &InvocationResult{Output: fmt.Sprintf(`{"content":%q}`, content)}
}

func TestDelegateCreatesPendingRun(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, &fakeRunner{result: jsonOutput("ok")}, nil, nil, ServiceConfig{WorkDir: "/repo"})

	runID, err := svc.Delegate(context.Background(), "sess-1", "task-1", "do the thing")
	require.NoError(t, err)

	run, err := svc.RunStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)
	assert.Equal(t, "sess-1", run.SessionID)
	assert.Equal(t, "task-1", run.PlanTaskID)
	assert.Equal(t, "do the thing", run.Prompt)
}

func TestStartCompletesRun(t *testing.T) {
	st := newTestStore(t)
	runner := &fakeRunner{result: jsonOutput("implemented")}
	git := &fakeGit{sha: "abc123"}
	svc := NewService(st, runner, git, nil, ServiceConfig{WorkDir: "/repo"})

	ctx := context.Background()
	runID, err := svc.Delegate(ctx, "sess-1", "task-1", "build it")
	require.NoError(t, err)

	require.NoError(t, svc.Start(ctx, runID))
	svc.Wait()

	run, err := svc.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "implemented", run.Output)
	assert.Equal(t, "abc123", run.CommitSHA)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, "/repo", runner.gotDir)
	assert.Equal(t, "build it", runner.gotPrompt)
}

func TestStartRejectsNonPendingRun(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, &fakeRunner{result: jsonOutput("ok")}, nil, nil, ServiceConfig{})

	ctx := context.Background()
	runID, err := svc.Delegate(ctx, "sess-1", "task-1", "p")
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, runID))
	svc.Wait()

	err = svc.Start(ctx, runID)
	assert.Error(t, err)
}

func TestNonZeroExitFailsRun(t *testing.T) {
	st := newTestStore(t)
	runner := &fakeRunner{result: &InvocationResult{Output: "boom", ExitCode: 1}}
	svc := NewService(st, runner, nil, nil, ServiceConfig{})

	ctx := context.Background()
	runID, err := svc.Delegate(ctx, "sess-1", "task-1", "p")
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, runID))
	svc.Wait()

	run, err := svc.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorText, "exited with code 1")
}

func TestLaunchErrorFailsRun(t *testing.T) {
	st := newTestStore(t)
	runner := &fakeRunner{err: errors.New("binary not found")}
	svc := NewService(st, runner, nil, nil, ServiceConfig{})

	ctx := context.Background()
	runID, err := svc.Delegate(ctx, "sess-1", "task-1", "p")
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, runID))
	svc.Wait()

	run, err := svc.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorText, "binary not found")
}

func TestOutputErrorFieldFailsRun(t *testing.T) {
	st := newTestStore(t)
	runner := &fakeRunner{result: &InvocationResult{Output: `{"content":"","error":"rate limited"}`}}
	svc := NewService(st, runner, nil, nil, ServiceConfig{})

	ctx := context.Background()
	runID, err := svc.Delegate(ctx, "sess-1", "task-1", "p")
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, runID))
	svc.Wait()

	run, err := svc.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, "rate limited", run.ErrorText)
}

func TestGateFailureMarksQAGateFailed(t *testing.T) {
	st := newTestStore(t)
	gates := &fakeGates{results: []GateResult{
		{Name: "vet", Passed: true},
		{Name: "test", Passed: false, Output: "1 test failed"},
	}}
	svc := NewService(st, &fakeRunner{result: jsonOutput("done")}, &fakeGit{sha: "abc"}, gates, ServiceConfig{})

	ctx := context.Background()
	runID, err := svc.Delegate(ctx, "sess-1", "task-1", "p")
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, runID))
	svc.Wait()

	run, err := svc.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQAGateFailed, run.Status)
	assert.Contains(t, run.ErrorText, "test")
	assert.Equal(t, "abc", run.CommitSHA)
}

func TestRequireApprovalHoldsRun(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, &fakeRunner{result: jsonOutput("done")}, nil, nil, ServiceConfig{RequireApproval: true})

	ctx := context.Background()
	runID, err := svc.Delegate(ctx, "sess-1", "task-1", "p")
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, runID))
	svc.Wait()

	run, err := svc.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingApproval, run.Status)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, svc.Approve(ctx, runID))
	run, err = svc.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.CompletedAt)
}

func TestRejectHeldRun(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, &fakeRunner{result: jsonOutput("done")}, nil, nil, ServiceConfig{RequireApproval: true})

	ctx := context.Background()
	runID, err := svc.Delegate(ctx, "sess-1", "task-1", "p")
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, runID))
	svc.Wait()

	require.NoError(t, svc.Reject(ctx, runID))
	run, err := svc.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRejected, run.Status)
}

func TestApproveRequiresWaitingApproval(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, &fakeRunner{result: jsonOutput("done")}, nil, nil, ServiceConfig{})

	ctx := context.Background()
	runID, err := svc.Delegate(ctx, "sess-1", "task-1", "p")
	require.NoError(t, err)

	assert.Error(t, svc.Approve(ctx, runID))
	assert.Error(t, svc.Reject(ctx, runID))
}

func TestDefaultRunTimeoutApplied(t *testing.T) {
	svc := NewService(newTestStore(t), &fakeRunner{result: jsonOutput("ok")}, nil, nil, ServiceConfig{})
	assert.Equal(t, DefaultRunTimeout, svc.cfg.RunTimeout)
}

func TestServiceWaitWithNoRuns(t *testing.T) {
	svc := NewService(newTestStore(t), &fakeRunner{result: jsonOutput("ok")}, nil, nil, ServiceConfig{})

	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait should return immediately with no runs in flight")
	}
}
