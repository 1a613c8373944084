package execshell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	gitToolNameConstant    = "git"
	githubToolNameConstant = "gh"
	uvToolNameConstant     = "uv"

	loggerNotConfiguredMessageConstant        = "shell executor logger not configured"
	commandRunnerNotConfiguredMessageConstant = "shell command runner not configured"
	commandNotFoundTemplateConstant           = "command %q not found; is it installed and on your PATH?"
	commandTimedOutTemplateConstant           = "command %q timed out after %s"
	commandFailedTemplateConstant             = "command %q failed with exit code %d: %s"
	commandExecutionFailedTemplateConstant    = "command %q failed: %s"
	commandArgumentsJoinSeparatorConstant     = " "

	commandStartedLogMessageConstant   = "executing command"
	commandCompletedLogMessageConstant = "command completed"
	logFieldCommandConstant            = "command"
	logFieldArgumentsConstant          = "arguments"
	logFieldWorkingDirectoryConstant   = "working_directory"
	logFieldExitCodeConstant           = "exit_code"
	logFieldDurationConstant           = "duration"
)

// CommandName identifies a supported external executable.
type CommandName string

// Supported external tools.
const (
	CommandGit    CommandName = CommandName(gitToolNameConstant)
	CommandGitHub CommandName = CommandName(githubToolNameConstant)
	CommandUV     CommandName = CommandName(uvToolNameConstant)
)

// CommandDetails describes a single tool invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
	// AllowFailure returns non-zero exits as ordinary results instead of CommandFailedError.
	AllowFailure bool
	// Quiet suppresses lifecycle notifications for background existence checks.
	Quiet bool
}

// ShellCommand combines a CommandName with invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outputs of a finished command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
	Duration       time.Duration
}

// TrimmedOutput returns standard output with surrounding whitespace removed.
func (result ExecutionResult) TrimmedOutput() string {
	return strings.TrimSpace(result.StandardOutput)
}

// CommandRunner represents the ability to run shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
var ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)

// CommandNotFoundError indicates the requested executable could not be located.
type CommandNotFoundError struct {
	Command ShellCommand
}

// Error describes the missing executable.
func (notFoundError CommandNotFoundError) Error() string {
	return fmt.Sprintf(commandNotFoundTemplateConstant, string(notFoundError.Command.Name))
}

// CommandTimedOutError indicates the invocation exceeded the configured ceiling.
type CommandTimedOutError struct {
	Command ShellCommand
	Timeout time.Duration
}

// Error describes the timeout.
func (timeoutError CommandTimedOutError) Error() string {
	return fmt.Sprintf(commandTimedOutTemplateConstant, timeoutError.Command.commandLabel(), timeoutError.Timeout)
}

// CommandFailedError indicates a command exited with a non-zero status.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failure using the captured diagnostic stream.
func (failedError CommandFailedError) Error() string {
	return fmt.Sprintf(commandFailedTemplateConstant, failedError.Command.commandLabel(), failedError.Result.ExitCode, failedError.Result.diagnosticOutput())
}

// CommandExecutionError wraps unexpected failures that produced no execution result.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, executionError.Command.commandLabel(), executionError.Cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

func (command ShellCommand) commandLabel() string {
	labelParts := append([]string{string(command.Name)}, command.Details.Arguments...)
	return strings.Join(labelParts, commandArgumentsJoinSeparatorConstant)
}

func (result ExecutionResult) diagnosticOutput() string {
	trimmedStandardError := strings.TrimSpace(result.StandardError)
	if len(trimmedStandardError) > 0 {
		return trimmedStandardError
	}
	return strings.TrimSpace(result.StandardOutput)
}

// ExecutorConfiguration adjusts optional executor behavior.
type ExecutorConfiguration struct {
	// CommandTimeout bounds every invocation; zero disables the ceiling.
	CommandTimeout time.Duration
	EventObserver  CommandEventObserver
}

// ShellExecutor runs external tools with structured logging and error classification.
type ShellExecutor struct {
	logger         *zap.Logger
	commandRunner  CommandRunner
	eventObserver  CommandEventObserver
	commandTimeout time.Duration
}

// NewShellExecutor constructs an executor with default configuration.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner) (*ShellExecutor, error) {
	return NewShellExecutorWithConfiguration(logger, commandRunner, ExecutorConfiguration{})
}

// NewShellExecutorWithConfiguration constructs an executor honoring the provided configuration.
func NewShellExecutorWithConfiguration(logger *zap.Logger, commandRunner CommandRunner, configuration ExecutorConfiguration) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	eventObserver := configuration.EventObserver
	if eventObserver == nil {
		eventObserver = noopCommandEventObserver{}
	}

	return &ShellExecutor{
		logger:         logger,
		commandRunner:  commandRunner,
		eventObserver:  eventObserver,
		commandTimeout: configuration.CommandTimeout,
	}, nil
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.executeCommand(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteGitHubCLI runs the GitHub CLI with the provided details.
func (executor *ShellExecutor) ExecuteGitHubCLI(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.executeCommand(executionContext, ShellCommand{Name: CommandGitHub, Details: details})
}

// ExecuteUV runs the uv dependency tool with the provided details.
func (executor *ShellExecutor) ExecuteUV(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.executeCommand(executionContext, ShellCommand{Name: CommandUV, Details: details})
}

func (executor *ShellExecutor) executeCommand(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	if !command.Details.Quiet {
		executor.eventObserver.CommandStarted(command)
	}
	executor.logger.Debug(
		commandStartedLogMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	)

	boundedContext := executionContext
	if executor.commandTimeout > 0 {
		var cancelExecution context.CancelFunc
		boundedContext, cancelExecution = context.WithTimeout(executionContext, executor.commandTimeout)
		defer cancelExecution()
	}

	executionResult, runError := executor.commandRunner.Run(boundedContext, command)
	if runError != nil {
		classifiedError := executor.classifyRunError(boundedContext, command, runError)
		if !command.Details.Quiet {
			executor.eventObserver.CommandExecutionFailed(command, classifiedError)
		}
		executor.logger.Debug(
			commandCompletedLogMessageConstant,
			zap.String(logFieldCommandConstant, string(command.Name)),
			zap.Error(classifiedError),
		)
		return ExecutionResult{}, classifiedError
	}

	if !command.Details.Quiet {
		executor.eventObserver.CommandCompleted(command, executionResult)
	}
	executor.logger.Debug(
		commandCompletedLogMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Int(logFieldExitCodeConstant, executionResult.ExitCode),
		zap.Duration(logFieldDurationConstant, executionResult.Duration),
	)

	if executionResult.ExitCode != 0 && !command.Details.AllowFailure {
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	return executionResult, nil
}

func (executor *ShellExecutor) classifyRunError(boundedContext context.Context, command ShellCommand, runError error) error {
	if errors.Is(runError, exec.ErrNotFound) {
		return CommandNotFoundError{Command: command}
	}
	if errors.Is(boundedContext.Err(), context.DeadlineExceeded) {
		return CommandTimedOutError{Command: command, Timeout: executor.commandTimeout}
	}
	return CommandExecutionError{Command: command, Cause: runError}
}
