package main

import (
	"errors"

	"github.com/caffeineduck/gorurt/executor"
)

// Process exit codes, one per failure class.
const (
	exitOK         = 0
	exitGeneric    = 1
	exitConfig     = 2
	exitScriptRead = 3
	exitCompile    = 4
	exitResolve    = 5
	exitStart      = 6 // also engine creation and script memory
	exitAudio      = 7
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps an error returned by a command to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if stage, ok := executor.StageOf(err); ok {
		switch stage {
		case executor.StageConfig:
			return exitConfig
		case executor.StageCompile:
			return exitCompile
		case executor.StageResolve:
			return exitResolve
		case executor.StageRuntime, executor.StageAllocate, executor.StageStart:
			return exitStart
		}
	}
	return exitGeneric
}
