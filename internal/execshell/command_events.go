package execshell

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	consoleCommandStartedTemplateConstant = "→ %s\n"
	consoleCommandFailedTemplateConstant  = "✗ %s: %s\n"
	consoleCommandExitTemplateConstant    = "✗ %s exited with code %d\n"
	consoleWorkingDirectoryTemplate       = "[%s] %s"
)

// CommandEventObserver receives lifecycle notifications for shell command execution.
type CommandEventObserver interface {
	// CommandStarted notifies observers that command execution is beginning.
	CommandStarted(command ShellCommand)
	// CommandCompleted notifies observers that command execution finished and supplies the result.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed reports unexpected failures prior to receiving an execution result.
	CommandExecutionFailed(command ShellCommand, failure error)
}

// noopCommandEventObserver discards all command events.
type noopCommandEventObserver struct{}

func (noopCommandEventObserver) CommandStarted(ShellCommand)                    {}
func (noopCommandEventObserver) CommandCompleted(ShellCommand, ExecutionResult) {}
func (noopCommandEventObserver) CommandExecutionFailed(ShellCommand, error)     {}

// ConsoleCommandEventObserver writes per-command progress lines for interactive
// sessions. Writes are serialized so concurrent batch workers do not interleave
// partial lines.
type ConsoleCommandEventObserver struct {
	outputWriter io.Writer
	writeMutex   sync.Mutex
}

// NewConsoleCommandEventObserver creates an observer that reports command
// progress on the supplied writer.
func NewConsoleCommandEventObserver(outputWriter io.Writer) *ConsoleCommandEventObserver {
	return &ConsoleCommandEventObserver{outputWriter: outputWriter}
}

// CommandStarted prints the command line about to run.
func (observer *ConsoleCommandEventObserver) CommandStarted(command ShellCommand) {
	observer.writeLine(consoleCommandStartedTemplateConstant, observer.describeCommand(command))
}

// CommandCompleted reports tolerated non-zero exits; successful commands stay quiet.
func (observer *ConsoleCommandEventObserver) CommandCompleted(command ShellCommand, result ExecutionResult) {
	if result.ExitCode == 0 {
		return
	}
	observer.writeLine(consoleCommandExitTemplateConstant, observer.describeCommand(command), result.ExitCode)
}

// CommandExecutionFailed reports commands that never produced a result.
func (observer *ConsoleCommandEventObserver) CommandExecutionFailed(command ShellCommand, failure error) {
	observer.writeLine(consoleCommandFailedTemplateConstant, observer.describeCommand(command), failure)
}

func (observer *ConsoleCommandEventObserver) describeCommand(command ShellCommand) string {
	commandLine := strings.Join(append([]string{string(command.Name)}, command.Details.Arguments...), commandArgumentsJoinSeparatorConstant)
	if len(command.Details.WorkingDirectory) > 0 {
		return fmt.Sprintf(consoleWorkingDirectoryTemplate, command.Details.WorkingDirectory, commandLine)
	}
	return commandLine
}

func (observer *ConsoleCommandEventObserver) writeLine(template string, templateArguments ...any) {
	if observer.outputWriter == nil {
		return
	}
	observer.writeMutex.Lock()
	defer observer.writeMutex.Unlock()
	fmt.Fprintf(observer.outputWriter, template, templateArguments...)
}
