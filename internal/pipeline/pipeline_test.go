package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datapipe/internal/action"
	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/observer"
	"github.com/roach88/datapipe/internal/result"
	"github.com/roach88/datapipe/internal/testutil"
)

var p = data.MustParsePath

// chain builds: group "A", float array "A/B" (offset 1), two readers of A/B.
func chain(opts ...Option) *Pipeline {
	pl := New("chain", opts...)
	pl.Append(testutil.GroupCreator("MakeGroup"), filter.Arguments{"output": p("A")})
	pl.Append(testutil.ArrayCreator("MakeArray"), filter.Arguments{"output": p("A/B"), "offset": 1.0})
	pl.Append(testutil.Reader("ReadOnce"), filter.Arguments{"input": p("A/B")})
	pl.Append(testutil.Reader("ReadTwice"), filter.Arguments{"input": p("A/B")})
	return pl
}

func values(t *testing.T, ds *data.Structure, path string) []float64 {
	t.Helper()
	arr, err := ds.Array(p(path))
	require.NoError(t, err)
	out := make([]float64, arr.Len())
	for i := range out {
		out[i] = arr.Value(i)
	}
	return out
}

func TestPreflight_Succeeds(t *testing.T) {
	pl := chain()
	require.NoError(t, pl.Preflight(context.Background()))

	out := pl.PreflightOutput()
	require.NotNil(t, out)
	arr, err := out.Array(p("A/B"))
	require.NoError(t, err)
	assert.True(t, arr.Placeholder())
	assert.Equal(t, uint64(0), out.MemoryUsage())

	for _, n := range pl.Nodes() {
		assert.False(t, n.Dirty())
		assert.Equal(t, observer.NoFault, n.FaultState())
		assert.Equal(t, observer.Idle, n.RunState())
	}
	require.Len(t, pl.nodes[1].CreatedPaths(), 1)
	assert.Equal(t, "A/B", pl.nodes[1].CreatedPaths()[0].String())
}

func TestPreflight_Idempotent(t *testing.T) {
	pl := chain()
	require.NoError(t, pl.Preflight(context.Background()))
	first, err := pl.PreflightOutput().Fingerprint()
	require.NoError(t, err)

	require.NoError(t, pl.Preflight(context.Background()))
	second, err := pl.PreflightOutput().Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExecute_Idempotent(t *testing.T) {
	pl := chain()
	require.NoError(t, pl.Execute(context.Background()))
	first := values(t, pl.Output(), "A/B")
	assert.Equal(t, []float64{3, 4, 5, 6}, first)

	require.NoError(t, pl.Execute(context.Background()))
	assert.Equal(t, first, values(t, pl.Output(), "A/B"))
}

func TestPreflightAndExecute_SameStructure(t *testing.T) {
	pl := chain()
	require.NoError(t, pl.Preflight(context.Background()))
	require.NoError(t, pl.Execute(context.Background()))
	assert.Equal(t, pl.PreflightOutput().DescribeText(), pl.Output().DescribeText())
}

func TestFaultPropagation(t *testing.T) {
	failing := testutil.Failing("Broken", result.NewValidation(7, "bad configuration"))
	after := testutil.NewScripted("After")

	pl := New("faulty")
	pl.Append(failing, nil)
	pl.Append(after, nil)

	err := pl.Preflight(context.Background())
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 0, fe.Index)
	assert.Equal(t, "Broken", fe.Filter)
	require.Len(t, fe.Errors, 1)
	assert.Equal(t, 7, fe.Errors[0].Code)
	assert.True(t, IsFault(err))

	assert.Equal(t, int64(0), after.Calls.Preflight.Load())
	assert.Equal(t, observer.Errors, pl.FaultState())
	assert.Equal(t, observer.Errors, pl.nodes[0].FaultState())
	assert.True(t, pl.nodes[0].Dirty())

	err = pl.Execute(context.Background())
	require.True(t, IsFault(err))
	assert.Equal(t, int64(0), after.Calls.Execute.Load())
	assert.Equal(t, int64(0), after.Calls.Preflight.Load())
}

func TestFailureMarksNodeDirty(t *testing.T) {
	pl := chain()
	require.NoError(t, pl.Preflight(context.Background()))

	require.NoError(t, pl.SetArguments(2, filter.Arguments{"input": p("A/Missing")}))
	err := pl.PreflightFrom(context.Background(), 2)
	require.True(t, IsFault(err))
	assert.Equal(t, result.CodePathNotFound, pl.nodes[2].Errors()[0].Code)
	assert.True(t, pl.nodes[2].Dirty())
	assert.False(t, pl.CanPreflightFrom(3))
	assert.True(t, pl.CanPreflightFrom(2))
}

func TestPreflightIsolation(t *testing.T) {
	input := data.NewStructure()
	_, err := input.Insert(data.NewGroup("Existing"), data.Path{})
	require.NoError(t, err)
	before := input.DescribeText()

	sneaky := testutil.NewScripted("Sneaky")
	var seen *data.Structure
	sneaky.OnPreflight = func(ds *data.Structure, _ filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
		seen = ds
		_, _ = ds.Insert(data.NewGroup("Leaked"), data.Path{})
		_ = ds.Remove(p("Existing"))
		return filter.PreflightResult{}
	}

	pl := New("isolation", WithInput(input))
	pl.Append(sneaky, nil)
	require.NoError(t, pl.Preflight(context.Background()))

	assert.Equal(t, before, input.DescribeText())
	out := pl.PreflightOutput()
	assert.True(t, out.Contains(p("Existing")))
	assert.False(t, out.Contains(p("Leaked")))
	assert.NotSame(t, seen, pl.nodes[0].preflightDS)

	// Editing the snapshot copy does not reach the node either.
	require.NoError(t, out.Remove(p("Existing")))
	assert.True(t, pl.PreflightOutput().Contains(p("Existing")))
}

func TestResumeFromIndex(t *testing.T) {
	pl := chain()
	require.NoError(t, pl.Execute(context.Background()))
	want := values(t, pl.Output(), "A/B")
	wantText := pl.Output().DescribeText()

	for i := 0; i <= pl.Len(); i++ {
		require.True(t, pl.CanExecuteFrom(i), "index %d", i)
		require.NoError(t, pl.ExecuteFrom(context.Background(), i), "index %d", i)
		assert.Equal(t, want, values(t, pl.Output(), "A/B"), "index %d", i)
		assert.Equal(t, wantText, pl.Output().DescribeText(), "index %d", i)
	}
}

func TestResume_RequiresValidSnapshot(t *testing.T) {
	pl := chain()
	assert.True(t, pl.CanExecuteFrom(0))
	assert.False(t, pl.CanExecuteFrom(2))
	assert.False(t, pl.CanExecuteFrom(-1))
	assert.False(t, pl.CanExecuteFrom(9))

	err := pl.ExecuteFrom(context.Background(), 2)
	assert.ErrorIs(t, err, ErrCannotResume)
	err = pl.PreflightFrom(context.Background(), 2)
	assert.ErrorIs(t, err, ErrCannotResume)
}

func TestEditsDirtyDownstream(t *testing.T) {
	pl := chain()
	require.NoError(t, pl.Execute(context.Background()))

	require.NoError(t, pl.SetArguments(1, filter.Arguments{"output": p("A/B"), "offset": 10.0}))
	assert.False(t, pl.nodes[0].Dirty())
	for _, n := range pl.nodes[1:] {
		assert.True(t, n.Dirty())
		assert.Nil(t, n.ExecuteStructure())
	}
	assert.True(t, pl.CanExecuteFrom(1))
	assert.False(t, pl.CanExecuteFrom(2))

	require.NoError(t, pl.ExecuteFrom(context.Background(), 1))
	assert.Equal(t, []float64{12, 13, 14, 15}, values(t, pl.Output(), "A/B"))
}

func TestDisabledNodePassesThrough(t *testing.T) {
	pl := chain()
	pl.Append(testutil.Failing("Broken", result.NewRuntime(1, "boom")), nil)
	require.NoError(t, pl.SetDisabled(4, true))
	require.NoError(t, pl.SetDisabled(3, true))

	require.NoError(t, pl.Execute(context.Background()))
	assert.Equal(t, []float64{2, 3, 4, 5}, values(t, pl.Output(), "A/B"))
	assert.True(t, pl.nodes[4].Disabled())
}

func TestInsertAndRemoveRenumber(t *testing.T) {
	pl := chain()
	var rec testutil.Recorder
	pl.Bus().Subscribe(&rec)

	_, err := pl.Insert(0, testutil.NewScripted("First"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, pl.Len())
	assert.Equal(t, 2, pl.nodes[2].Index())

	require.NoError(t, pl.Remove(0))
	assert.Equal(t, "MakeGroup", pl.nodes[0].Name())
	assert.Equal(t, 0, pl.nodes[0].Index())

	_, err = pl.Insert(9, testutil.NewScripted("Nope"), nil)
	assert.ErrorIs(t, err, ErrIndex)
	assert.ErrorIs(t, pl.Remove(9), ErrIndex)

	added := rec.OfType(observer.NodeAdded)
	removed := rec.OfType(observer.NodeRemoved)
	require.Len(t, added, 1)
	require.Len(t, removed, 1)
	assert.Equal(t, "First", removed[0].Filter)
}

func TestMessagesReachPipelineBus(t *testing.T) {
	pl := New("messages")
	talker := testutil.NewScripted("Talker")
	talker.OnExecute = func(_ *data.Structure, _ filter.Arguments, msgs filter.MessageHandler, _ *filter.CancelToken) result.Result {
		msgs.Progress(50, "half")
		msgs.Info("done")
		return result.OK()
	}
	pl.Append(testutil.Warning("Warner", result.CodeWarningDeprecated, "old option"), nil)
	pl.Append(talker, nil)

	var rec testutil.Recorder
	pl.Bus().Subscribe(&rec)
	require.NoError(t, pl.Execute(context.Background()))

	assert.Equal(t, []string{
		"[0] run-state: queued",
		"[1] run-state: queued",
		"[0] run-state: executing",
		"[0] warning 100: old option",
		"[0] fault-state: warnings",
		"[0] run-state: idle",
		"[1] run-state: executing",
		"[1] progress: 50% half",
		"[1] info: done",
		"[1] run-state: idle",
		"[-1] fault-state: warnings",
	}, rec.Strings())
	assert.Equal(t, observer.Warnings, pl.FaultState())
}

func TestFault_UnreachedNodesReturnToIdle(t *testing.T) {
	pl := chain()
	_, err := pl.Insert(2, testutil.Failing("Broken", result.NewRuntime(1, "boom")), nil)
	require.NoError(t, err)
	require.Error(t, pl.Preflight(context.Background()))

	var rec testutil.Recorder
	pl.Bus().Subscribe(&rec)
	require.Error(t, pl.PreflightFrom(context.Background(), 1))

	var queued, idled []int
	for _, m := range rec.OfType(observer.RunStateChanged) {
		switch m.RunState {
		case observer.Queued:
			queued = append(queued, m.Node)
		case observer.Idle:
			idled = append(idled, m.Node)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4}, queued)
	assert.Equal(t, []int{1, 2, 3, 4}, idled)
	for _, n := range pl.Nodes() {
		assert.Equal(t, observer.Idle, n.RunState())
	}
}

func TestRenameDetection_RewritesDownstreamArguments(t *testing.T) {
	pl := chain()
	var rec testutil.Recorder
	pl.Bus().Subscribe(&rec)
	require.NoError(t, pl.Preflight(context.Background()))

	require.NoError(t, pl.SetArguments(1, filter.Arguments{"output": p("A/D"), "offset": 1.0}))
	require.NoError(t, pl.Preflight(context.Background()))

	assert.Equal(t, "A/D", pl.nodes[2].Arguments().Path("input").String())
	assert.Equal(t, "A/D", pl.nodes[3].Arguments().Path("input").String())
	renamed := rec.OfType(observer.OutputRenamed)
	require.Len(t, renamed, 1)
	assert.Equal(t, "[1] output-renamed: A/B -> A/D", renamed[0].String())
}

func TestRenameDetection_PrefixRewrite(t *testing.T) {
	pl := chain()
	require.NoError(t, pl.Preflight(context.Background()))

	require.NoError(t, pl.SetArguments(0, filter.Arguments{"output": p("Z")}))
	require.NoError(t, pl.Preflight(context.Background()))

	assert.Equal(t, "Z/B", pl.nodes[1].Arguments().Path("output").String())
	assert.Equal(t, "Z/B", pl.nodes[3].Arguments().Path("input").String())
	assert.True(t, pl.PreflightOutput().Contains(p("Z/B")))
}

func TestRenameDetection_Disabled(t *testing.T) {
	pl := chain(WithRenameDetection(false))
	require.NoError(t, pl.Preflight(context.Background()))

	require.NoError(t, pl.SetArguments(1, filter.Arguments{"output": p("A/D")}))
	err := pl.Preflight(context.Background())
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Index)
	assert.Equal(t, result.CodePathNotFound, fe.Errors[0].Code)
	assert.Equal(t, "A/B", pl.nodes[2].Arguments().Path("input").String())
}

func TestRenameDetection_AmbiguousRejected(t *testing.T) {
	twin := testutil.NewScripted("Twin")
	twin.Params = filter.Parameters{{Name: "names", Kind: filter.KindString}}
	twin.OnPreflight = func(_ *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
		var pr filter.PreflightResult
		for _, name := range []byte(args.String("names")) {
			pr.Actions.Append(action.CreateGroup{Path: p(string(name))})
		}
		return pr
	}

	pl := New("ambiguous")
	pl.Append(twin, filter.Arguments{"names": "BE"})
	pl.Append(testutil.Reader("Reader"), filter.Arguments{"input": p("B")})
	require.NoError(t, pl.Preflight(context.Background()))

	require.NoError(t, pl.SetArguments(0, filter.Arguments{"names": "D"}))
	err := pl.Preflight(context.Background())
	require.True(t, IsFault(err))
	assert.Equal(t, "B", pl.nodes[1].Arguments().Path("input").String())
}

func TestPanicBecomesRuntimeError(t *testing.T) {
	bomb := testutil.NewScripted("Bomb")
	bomb.OnExecute = func(*data.Structure, filter.Arguments, filter.MessageHandler, *filter.CancelToken) result.Result {
		panic("kaboom")
	}
	pl := New("panic")
	pl.Append(bomb, nil)

	require.NoError(t, pl.Preflight(context.Background()))
	err := pl.Execute(context.Background())
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, result.CodeFilterPanic, fe.Errors[0].Code)
	assert.Equal(t, result.Runtime, fe.Errors[0].Kind)
	assert.Contains(t, fe.Errors[0].Message, "kaboom")
}

func TestCancel(t *testing.T) {
	pl := chain()
	stopper := testutil.NewScripted("Stopper")
	stopper.OnExecute = func(_ *data.Structure, _ filter.Arguments, _ filter.MessageHandler, cancel *filter.CancelToken) result.Result {
		pl.Cancel()
		if cancel.Cancelled() {
			return result.Fail(result.NewCancelled())
		}
		return result.OK()
	}
	after := testutil.NewScripted("After")
	pl.Append(stopper, nil)
	pl.Append(after, nil)

	err := pl.Execute(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	assert.True(t, IsCancelled(err))
	assert.False(t, IsFault(err))
	assert.NotEqual(t, observer.Errors, pl.nodes[4].FaultState())
	assert.True(t, pl.nodes[4].Dirty())
	assert.Equal(t, int64(0), after.Calls.Execute.Load())

	// Upstream work is kept and the run can resume at the cancelled node.
	assert.True(t, pl.CanExecuteFrom(4))
	pl.Cancel()
}

func TestExecute_SpillsLargeArrays(t *testing.T) {
	sp := data.NewSpiller("file://"+t.TempDir(), 0)
	pl := chain(WithSpiller(sp))
	require.NoError(t, pl.Execute(context.Background()))

	out := pl.Output()
	arr, err := out.Array(p("A/B"))
	require.NoError(t, err)
	assert.True(t, data.OutOfCore(arr))
	assert.Equal(t, []float64{3, 4, 5, 6}, values(t, out, "A/B"))
}

func TestExecute_RepeatedRunsKeepOnePayloadPerSnapshot(t *testing.T) {
	dir := t.TempDir()
	pl := chain(WithSpiller(data.NewSpiller("file://"+dir, 0)))
	files := func() int {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		return len(entries)
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, pl.Execute(context.Background()))
	}
	// Nodes 1-3 each hold a snapshot with A/B out of core.
	assert.Equal(t, 3, files())

	require.NoError(t, pl.ExecuteFrom(context.Background(), 2))
	assert.Equal(t, 3, files())

	require.NoError(t, pl.Remove(3))
	assert.Equal(t, 2, files())

	require.NoError(t, pl.SetArguments(1, filter.Arguments{"output": p("A/B"), "offset": 5.0}))
	assert.Equal(t, 0, files())

	require.NoError(t, pl.Execute(context.Background()))
	assert.Equal(t, 2, files())
	out := pl.Output()
	assert.Equal(t, 3, files())
	require.NoError(t, out.Discard(context.Background()))
	pl.Close()
	assert.Equal(t, 0, files())
}

func TestExecute_SpillFailureFaultsNode(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	pl := chain(WithSpiller(data.NewSpiller("file://"+filepath.Join(blocker, "spill"), 0)))

	err := pl.Execute(context.Background())
	require.Error(t, err)
	var fe *FaultError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Index)
	require.NotEmpty(t, fe.Errors)
	assert.Equal(t, result.CodeIO, fe.Errors[0].Code)

	n := pl.nodes[1]
	assert.True(t, n.Dirty())
	assert.Equal(t, observer.Errors, n.FaultState())
	assert.Nil(t, n.ExecuteStructure())
	assert.True(t, pl.CanExecuteFrom(1))
	assert.False(t, pl.CanExecuteFrom(2))
	assert.Equal(t, observer.Errors, pl.FaultState())
}

func TestEmptyPipeline(t *testing.T) {
	pl := New("empty")
	require.NoError(t, pl.Preflight(context.Background()))
	require.NoError(t, pl.Execute(context.Background()))
	assert.Equal(t, 0, pl.Output().Len())
	assert.Equal(t, observer.NoFault, pl.FaultState())
}
