package execshell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	environmentAssignmentSeparatorConstant = "="
	environmentAssignmentTemplateConstant  = "%s%s%s"
	replacementCharacterConstant           = string(utf8.RuneError)
)

// OSCommandRunner executes commands using the operating system facilities.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs a runner backed by os/exec.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Run executes the supplied command using os/exec.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	commandArguments := append([]string{}, command.Details.Arguments...)
	executable := exec.CommandContext(executionContext, string(command.Name), commandArguments...)

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}

	if len(command.Details.EnvironmentVariables) > 0 {
		mergedEnvironment := append([]string{}, os.Environ()...)
		for environmentKey, environmentValue := range command.Details.EnvironmentVariables {
			mergedEnvironment = append(mergedEnvironment, fmt.Sprintf(environmentAssignmentTemplateConstant, environmentKey, environmentAssignmentSeparatorConstant, environmentValue))
		}
		executable.Env = mergedEnvironment
	}

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	startTime := time.Now()
	runError := executable.Run()
	executionDuration := time.Since(startTime)

	if runError != nil {
		exitError := &exec.ExitError{}
		if errors.As(runError, &exitError) && executionContext.Err() == nil {
			return ExecutionResult{
				StandardOutput: sanitizeCapturedOutput(standardOutputBuffer.Bytes()),
				StandardError:  sanitizeCapturedOutput(standardErrorBuffer.Bytes()),
				ExitCode:       exitError.ExitCode(),
				Duration:       executionDuration,
			}, nil
		}
		return ExecutionResult{}, runError
	}

	return ExecutionResult{
		StandardOutput: sanitizeCapturedOutput(standardOutputBuffer.Bytes()),
		StandardError:  sanitizeCapturedOutput(standardErrorBuffer.Bytes()),
		ExitCode:       0,
		Duration:       executionDuration,
	}, nil
}

// sanitizeCapturedOutput replaces invalid byte sequences so captured text never raises decoding failures.
func sanitizeCapturedOutput(capturedBytes []byte) string {
	return strings.ToValidUTF8(string(capturedBytes), replacementCharacterConstant)
}
