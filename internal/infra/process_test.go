package infra

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRunning(t *testing.T) {
	pm := NewProcessManager()

	assert.True(t, pm.IsRunning(os.Getpid()))
	assert.False(t, pm.IsRunning(1<<22), "a PID beyond the kernel maximum cannot be live")
}

func TestGetCurrentPID(t *testing.T) {
	pm := NewProcessManager()
	assert.Equal(t, os.Getpid(), pm.GetCurrentPID())
}
