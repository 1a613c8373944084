package execshell_test

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/plugman/internal/execshell"
)

const (
	testExecutionSuccessCaseNameConstant      = "success"
	testExecutionFailureCaseNameConstant      = "failure_exit_code"
	testExecutionAllowFailureCaseNameConstant = "failure_allowed"
	testExecutionRunnerErrorCaseNameConstant  = "runner_error"
	testExecutionNotFoundCaseNameConstant     = "executable_not_found"
	testGitWrapperCaseNameConstant            = "git_wrapper"
	testGitHubWrapperCaseNameConstant         = "github_wrapper"
	testUVWrapperCaseNameConstant             = "uv_wrapper"
	testCommandArgumentConstant               = "--version"
	testWorkingDirectoryConstant              = "."
	testStandardErrorOutputConstant           = "failure"
)

type recordingCommandRunner struct {
	executionResult  execshell.ExecutionResult
	executionError   error
	recordedCommands []execshell.ShellCommand
}

func (runner *recordingCommandRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	return runner.executionResult, runner.executionError
}

type blockingCommandRunner struct{}

func (blockingCommandRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	<-executionContext.Done()
	return execshell.ExecutionResult{}, executionContext.Err()
}

func TestNewShellExecutorValidatesDependencies(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logger        *zap.Logger
		runner        execshell.CommandRunner
		expectedError error
	}{
		{name: "missing_logger", logger: nil, runner: &recordingCommandRunner{}, expectedError: execshell.ErrLoggerNotConfigured},
		{name: "missing_runner", logger: zap.NewNop(), runner: nil, expectedError: execshell.ErrCommandRunnerNotConfigured},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor, creationError := execshell.NewShellExecutor(testCase.logger, testCase.runner)
			require.ErrorIs(testInstance, creationError, testCase.expectedError)
			require.Nil(testInstance, executor)
		})
	}

	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), &recordingCommandRunner{})
	require.NoError(testInstance, creationError)
	require.NotNil(testInstance, executor)
}

func TestShellExecutorExecuteBehavior(testInstance *testing.T) {
	testCases := []struct {
		name            string
		details         execshell.CommandDetails
		runnerResult    execshell.ExecutionResult
		runnerError     error
		expectErrorType any
	}{
		{
			name:         testExecutionSuccessCaseNameConstant,
			runnerResult: execshell.ExecutionResult{StandardOutput: "ok", ExitCode: 0},
		},
		{
			name:            testExecutionFailureCaseNameConstant,
			runnerResult:    execshell.ExecutionResult{StandardError: testStandardErrorOutputConstant, ExitCode: 1},
			expectErrorType: execshell.CommandFailedError{},
		},
		{
			name:         testExecutionAllowFailureCaseNameConstant,
			details:      execshell.CommandDetails{AllowFailure: true},
			runnerResult: execshell.ExecutionResult{StandardError: testStandardErrorOutputConstant, ExitCode: 1},
		},
		{
			name:            testExecutionRunnerErrorCaseNameConstant,
			runnerError:     errors.New("runner failure"),
			expectErrorType: execshell.CommandExecutionError{},
		},
		{
			name:            testExecutionNotFoundCaseNameConstant,
			runnerError:     exec.ErrNotFound,
			expectErrorType: execshell.CommandNotFoundError{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			recordingRunner := &recordingCommandRunner{
				executionResult: testCase.runnerResult,
				executionError:  testCase.runnerError,
			}

			shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), recordingRunner)
			require.NoError(testInstance, creationError)

			commandDetails := testCase.details
			commandDetails.Arguments = []string{testCommandArgumentConstant}
			commandDetails.WorkingDirectory = testWorkingDirectoryConstant
			executionResult, executionError := shellExecutor.ExecuteGit(context.Background(), commandDetails)

			if testCase.expectErrorType != nil {
				require.Error(testInstance, executionError)
				require.IsType(testInstance, testCase.expectErrorType, executionError)
				require.Empty(testInstance, executionResult.StandardOutput)
				return
			}

			require.NoError(testInstance, executionError)
			require.Equal(testInstance, testCase.runnerResult.ExitCode, executionResult.ExitCode)
		})
	}
}

func TestShellExecutorEnforcesCommandTimeout(testInstance *testing.T) {
	shellExecutor, creationError := execshell.NewShellExecutorWithConfiguration(
		zap.NewNop(),
		blockingCommandRunner{},
		execshell.ExecutorConfiguration{CommandTimeout: 10 * time.Millisecond},
	)
	require.NoError(testInstance, creationError)

	_, executionError := shellExecutor.ExecuteGit(context.Background(), execshell.CommandDetails{Arguments: []string{testCommandArgumentConstant}})
	require.Error(testInstance, executionError)
	require.IsType(testInstance, execshell.CommandTimedOutError{}, executionError)
}

func TestShellExecutorWrappersSetCommandNames(testInstance *testing.T) {
	testCases := []struct {
		name            string
		invoke          func(executor *execshell.ShellExecutor) error
		expectedCommand execshell.CommandName
	}{
		{
			name: testGitWrapperCaseNameConstant,
			invoke: func(executor *execshell.ShellExecutor) error {
				_, executionError := executor.ExecuteGit(context.Background(), execshell.CommandDetails{})
				return executionError
			},
			expectedCommand: execshell.CommandGit,
		},
		{
			name: testGitHubWrapperCaseNameConstant,
			invoke: func(executor *execshell.ShellExecutor) error {
				_, executionError := executor.ExecuteGitHubCLI(context.Background(), execshell.CommandDetails{})
				return executionError
			},
			expectedCommand: execshell.CommandGitHub,
		},
		{
			name: testUVWrapperCaseNameConstant,
			invoke: func(executor *execshell.ShellExecutor) error {
				_, executionError := executor.ExecuteUV(context.Background(), execshell.CommandDetails{})
				return executionError
			},
			expectedCommand: execshell.CommandUV,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			recordingRunner := &recordingCommandRunner{executionResult: execshell.ExecutionResult{ExitCode: 1}}

			executor, creationError := execshell.NewShellExecutor(zap.NewNop(), recordingRunner)
			require.NoError(testInstance, creationError)

			executionError := testCase.invoke(executor)
			require.Error(testInstance, executionError)
			require.Len(testInstance, recordingRunner.recordedCommands, 1)
			require.Equal(testInstance, testCase.expectedCommand, recordingRunner.recordedCommands[0].Name)
		})
	}
}
