package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/caffeineduck/gorurt/executor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func TestExitCodeByStage(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		stage executor.Stage
		want  int
	}{
		{executor.StageConfig, exitConfig},
		{executor.StageRuntime, exitStart},
		{executor.StageCompile, exitCompile},
		{executor.StageResolve, exitResolve},
		{executor.StageAllocate, exitStart},
		{executor.StageStart, exitStart},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			err := fmt.Errorf("init: %w", executor.NewInitError(tt.stage, "", cause))
			assert.Equal(t, tt.want, exitCode(err))
		})
	}
}

func TestExitCodeWrapped(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitGeneric, exitCode(errors.New("unknown")))
	assert.Equal(t, exitAudio, exitCode(withExitCode(exitAudio, errors.New("device"))))

	joined := multierr.Append(withExitCode(exitScriptRead, errors.New("read")), errors.New("close"))
	assert.Equal(t, exitScriptRead, exitCode(joined))
}
