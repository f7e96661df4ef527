package approval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFileFlagApproves(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "approve")
	os.WriteFile(marker, []byte("ok"), 0644)

	g := New(Options{
		MarkerPath: marker,
		Interval:   10 * time.Millisecond,
		Timeout:    time.Second,
	})

	d := g.Await(context.Background())
	assert.True(t, d.Approved)
	assert.Equal(t, FileFlag, d.Method)
}

func TestFileFlagAppearsLater(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "approve")

	g := New(Options{
		MarkerPath: marker,
		Interval:   10 * time.Millisecond,
		Timeout:    2 * time.Second,
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(marker, []byte("ok"), 0644)
	}()

	d := g.Await(context.Background())
	assert.True(t, d.Approved)
	assert.Equal(t, FileFlag, d.Method)
}

func TestEnvVarApproves(t *testing.T) {
	t.Setenv("VIGIL_TEST_APPROVE", "1")

	g := New(Options{
		EnvVar:   "VIGIL_TEST_APPROVE",
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
	})

	d := g.Await(context.Background())
	assert.True(t, d.Approved)
	assert.Equal(t, EnvVar, d.Method)
}

func TestEnvVarFalseValueIgnored(t *testing.T) {
	t.Setenv("VIGIL_TEST_APPROVE", "0")

	g := New(Options{
		EnvVar:   "VIGIL_TEST_APPROVE",
		Interval: 10 * time.Millisecond,
		Timeout:  50 * time.Millisecond,
	})

	d := g.Await(context.Background())
	assert.False(t, d.Approved)
	assert.Equal(t, TimeoutAuto, d.Method)
}

func TestInteractiveApproves(t *testing.T) {
	g := New(Options{
		Input:    strings.NewReader("y\n"),
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
	})

	d := g.Await(context.Background())
	assert.True(t, d.Approved)
	assert.Equal(t, Interactive, d.Method)
}

func TestInteractiveDenies(t *testing.T) {
	g := New(Options{
		Input:    strings.NewReader("n\n"),
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
	})

	d := g.Await(context.Background())
	assert.False(t, d.Approved)
	assert.Equal(t, Interactive, d.Method)
}

func TestTimeoutDenies(t *testing.T) {
	g := New(Options{
		Interval: 10 * time.Millisecond,
		Timeout:  50 * time.Millisecond,
	})

	start := time.Now()
	d := g.Await(context.Background())
	assert.False(t, d.Approved)
	assert.Equal(t, TimeoutAuto, d.Method)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTimeoutAutoApproves(t *testing.T) {
	g := New(Options{
		Interval:    10 * time.Millisecond,
		Timeout:     50 * time.Millisecond,
		AutoApprove: true,
	})

	d := g.Await(context.Background())
	assert.True(t, d.Approved)
	assert.Equal(t, TimeoutAuto, d.Method)
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := New(Options{
		Interval: 10 * time.Millisecond,
		Timeout:  time.Minute,
	})

	d := g.Await(ctx)
	assert.False(t, d.Approved)
}

func TestMethodNames(t *testing.T) {
	assert.Equal(t, "FILE_FLAG", FileFlag.String())
	assert.Equal(t, "ENV_VAR", EnvVar.String())
	assert.Equal(t, "INTERACTIVE", Interactive.String())
	assert.Equal(t, "TIMEOUT_AUTO", TimeoutAuto.String())
}
