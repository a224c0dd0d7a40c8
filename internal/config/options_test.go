package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithDefaults(t *testing.T) {
	opts := (&Options{}).WithDefaults()

	require.True(t, strings.HasPrefix(opts.Name, "ioprocess-"))
	require.Len(t, opts.Name, len("ioprocess-")+26)
	require.Equal(t, DefaultTimeout, opts.Timeout)
	require.Equal(t, DefaultWaitUntilReady, opts.WaitUntilReady)
	require.Equal(t, DefaultTasksetPath, opts.TasksetPath)
	require.Equal(t, AnyCPU(), opts.CPUList)
	require.Equal(t, DefaultRestartInitial, opts.RestartInitial)
	require.Equal(t, DefaultRestartMax, opts.RestartMax)
	require.Zero(t, opts.MaxThreads)
}

func TestWithDefaults_DoesNotMutateReceiver(t *testing.T) {
	in := &Options{}
	_ = in.WithDefaults()

	require.Empty(t, in.Name)
	require.Zero(t, in.Timeout)
}

func TestWithDefaults_UniqueNames(t *testing.T) {
	a := (&Options{}).WithDefaults()
	b := (&Options{}).WithDefaults()

	require.NotEqual(t, a.Name, b.Name)
}

func TestWithDefaults_ExplicitEmptyTaskset(t *testing.T) {
	in := &Options{}
	in.SetTaskset("")

	opts := in.WithDefaults()
	require.Empty(t, opts.TasksetPath)
	require.True(t, opts.TasksetExplicit())
}

func TestWithDefaults_RestartMaxNotBelowInitial(t *testing.T) {
	opts := (&Options{RestartInitial: time.Second, RestartMax: time.Millisecond}).WithDefaults()

	require.Equal(t, time.Second, opts.RestartMax)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{name: "zero value", opts: Options{}},
		{name: "negative threads", opts: Options{MaxThreads: -1}, wantErr: "max threads"},
		{name: "negative restarts", opts: Options{MaxRestarts: -2}, wantErr: "max restarts"},
		{name: "negative timeout", opts: Options{Timeout: -time.Second}, wantErr: "timeout"},
		{name: "unbounded queue", opts: Options{MaxQueuedRequests: -1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("IOPROCESS_PATH", "/opt/ioprocess/bin/ioprocess")
	t.Setenv("IOPROCESS_TASKSET_PATH", "/bin/taskset")
	t.Setenv("IOPROCESS_TRACE", "true")

	env, err := LoadEnv()
	require.NoError(t, err)
	require.Equal(t, "/opt/ioprocess/bin/ioprocess", env.Path)
	require.Equal(t, "/bin/taskset", env.TasksetPath)
	require.True(t, env.Trace)
	require.False(t, env.DebugTerminate)
}

func TestLoadEnv_IgnoresUnprefixedVariables(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")
	t.Setenv("TRACE", "1")
	t.Setenv("TASKSET_PATH", "/bin/taskset")
	t.Setenv("DEBUG_TERMINATE", "true")

	for _, key := range []string{"IOPROCESS_PATH", "IOPROCESS_TASKSET_PATH", "IOPROCESS_TRACE", "IOPROCESS_DEBUG_TERMINATE"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	env, err := LoadEnv()
	require.NoError(t, err)
	require.Empty(t, env.Path)
	require.Empty(t, env.TasksetPath)
	require.False(t, env.Trace)
	require.False(t, env.DebugTerminate)

	opts := &Options{}
	opts.ApplyEnv(env)
	require.Empty(t, opts.ExecutablePath)
	require.False(t, opts.Trace)
}

func TestLoadEnv_InvalidBool(t *testing.T) {
	t.Setenv("IOPROCESS_DEBUG_TERMINATE", "sometimes")

	_, err := LoadEnv()
	require.ErrorContains(t, err, "failed to load environment")
}

func TestApplyEnv_ExplicitOptionsWin(t *testing.T) {
	env := &Env{Path: "/env/ioprocess", TasksetPath: "/env/taskset", Trace: true}

	opts := &Options{ExecutablePath: "/explicit/ioprocess"}
	opts.SetTaskset("")
	opts.ApplyEnv(env)

	require.Equal(t, "/explicit/ioprocess", opts.ExecutablePath)
	require.Empty(t, opts.TasksetPath)
	require.True(t, opts.Trace)

	fromEnv := &Options{}
	fromEnv.ApplyEnv(env)
	require.Equal(t, "/env/ioprocess", fromEnv.ExecutablePath)
	require.Equal(t, "/env/taskset", fromEnv.TasksetPath)
}
