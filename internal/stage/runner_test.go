package stage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/mlpipe/internal/container"
	"github.com/shaiso/mlpipe/internal/domain"
)

// fakeEngine отвечает на RunOnce через run. Остальные методы не используются.
type fakeEngine struct {
	container.Engine
	run   func(ctx context.Context, spec container.ProcessSpec) (container.ProcessResult, error)
	specs []container.ProcessSpec
}

func (f *fakeEngine) RunOnce(ctx context.Context, spec container.ProcessSpec) (container.ProcessResult, error) {
	f.specs = append(f.specs, spec)
	return f.run(ctx, spec)
}

func (f *fakeEngine) Describe(spec container.ProcessSpec) string {
	return "run " + spec.Image
}

func newTestRunner(e container.Engine) *Runner {
	return New(e, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRun_Success(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "OnlineRetail_cleaned.csv")
	e := &fakeEngine{run: func(context.Context, container.ProcessSpec) (container.ProcessResult, error) {
		require.NoError(t, os.WriteFile(artifact, []byte("a,b\n"), 0o644))
		return container.ProcessResult{Stdout: "done"}, nil
	}}

	res, err := newTestRunner(e).Run(context.Background(), domain.StageSpec{
		Name:         "cleaning",
		Image:        "ml-pipeline-cleaning",
		Env:          map[string]string{"DATASET_FILE": "OnlineRetail.csv"},
		Timeout:      time.Minute,
		ArtifactPath: artifact,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NoError(t, res.Err())
	assert.Equal(t, "done", res.Stdout)
	assert.Equal(t, "OnlineRetail.csv", e.specs[0].Env["DATASET_FILE"])
	assert.Contains(t, e.specs[0].Name, "mlpipe-cleaning-")
}

func TestRun_ExitZeroWithoutArtifactIsFailure(t *testing.T) {
	e := &fakeEngine{run: func(context.Context, container.ProcessSpec) (container.ProcessResult, error) {
		return container.ProcessResult{}, nil
	}}
	missing := filepath.Join(t.TempDir(), "model.pkl")

	res, err := newTestRunner(e).Run(context.Background(), domain.StageSpec{
		Name:         "training",
		Image:        "ml-pipeline-training",
		ArtifactPath: missing,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.ArtifactMissing)
	assert.Equal(t, 0, res.ExitCode)

	var fsErr *domain.FilesystemContractError
	require.ErrorAs(t, res.Err(), &fsErr)
	assert.Equal(t, missing, fsErr.Path)
}

func TestRun_NonZeroExit(t *testing.T) {
	e := &fakeEngine{run: func(context.Context, container.ProcessSpec) (container.ProcessResult, error) {
		return container.ProcessResult{ExitCode: 1, Stderr: "KeyError: 'Quantity'"}, nil
	}}
	checked := false

	res, err := newTestRunner(e).Run(context.Background(), domain.StageSpec{
		Name:         "cleaning",
		ArtifactPath: "/nowhere",
		ArtifactExists: func(string) bool {
			checked = true
			return true
		},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, checked, "artifact is not checked after a failed exit")
	assert.ErrorIs(t, res.Err(), domain.ErrStageExecution)
	assert.Contains(t, res.Err().Error(), "KeyError")
}

func TestRun_Timeout(t *testing.T) {
	e := &fakeEngine{run: func(ctx context.Context, _ container.ProcessSpec) (container.ProcessResult, error) {
		<-ctx.Done()
		return container.ProcessResult{ExitCode: -1}, ctx.Err()
	}}

	res, err := newTestRunner(e).Run(context.Background(), domain.StageSpec{
		Name:    "training",
		Timeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err(), domain.ErrStageTimeout)
}

func TestRun_ParentCancelIsNotTimeout(t *testing.T) {
	e := &fakeEngine{run: func(ctx context.Context, _ container.ProcessSpec) (container.ProcessResult, error) {
		<-ctx.Done()
		return container.ProcessResult{ExitCode: -1}, ctx.Err()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestRunner(e).Run(ctx, domain.StageSpec{Name: "training", Timeout: time.Minute})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.TimedOut)
}

func TestRun_StartFailure(t *testing.T) {
	e := &fakeEngine{run: func(context.Context, container.ProcessSpec) (container.ProcessResult, error) {
		return container.ProcessResult{ExitCode: -1}, errors.Join(container.ErrStartFailed, errors.New("docker: not found"))
	}}

	res, err := newTestRunner(e).Run(context.Background(), domain.StageSpec{Name: "conversion"})
	assert.ErrorIs(t, err, container.ErrStartFailed)
	assert.False(t, res.Success)
}

func TestDescribe(t *testing.T) {
	r := newTestRunner(&fakeEngine{})
	assert.Equal(t, "run ml-pipeline-converter", r.Describe(domain.StageSpec{Image: "ml-pipeline-converter"}))
}
