package atexit

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterUnregister(t *testing.T) {
	called := false
	h := Register(func() { called = true })
	assert.True(t, IsRegistered(h))

	Unregister(h)
	assert.False(t, IsRegistered(h))
	assert.False(t, called)
}

func TestExitCodeMapsSignal(t *testing.T) {
	assert.Equal(t, 128+int(syscall.SIGTERM), exitCode(syscall.SIGTERM))
	assert.Equal(t, 1, exitCode(nil))
}
