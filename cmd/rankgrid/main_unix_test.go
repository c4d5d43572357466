//go:build unix

package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signalChildEnv = "RANKGRID_SIGNAL_CHILD"

func TestInterruptContext_SecondSignalKills(t *testing.T) {
	if os.Getenv(signalChildEnv) == "1" {
		ctx, stop := interruptContext(context.Background())
		defer stop()

		_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			os.Exit(3)
		}
		time.Sleep(200 * time.Millisecond)

		_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
		time.Sleep(5 * time.Second)
		os.Exit(0)
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestInterruptContext_SecondSignalKills$")
	cmd.Env = append(os.Environ(), signalChildEnv+"=1")
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "child exited cleanly: %v", err)
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.True(t, status.Signaled(), "exit status %d", status.ExitStatus())
	assert.Equal(t, syscall.SIGINT, status.Signal())
}
