package uvcli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/temirov/plugman/internal/execshell"
)

const (
	executorNotConfiguredMessageConstant = "uv executor not configured"

	venvSubcommandConstant           = "venv"
	addSubcommandConstant            = "add"
	removeSubcommandConstant         = "remove"
	lockSubcommandConstant           = "lock"
	syncSubcommandConstant           = "sync"
	pipSubcommandConstant            = "pip"
	compileSubcommandConstant        = "compile"
	editableFlagConstant             = "--editable"
	allExtrasFlagConstant            = "--all-extras"
	outputFlagConstant               = "-o"
	virtualEnvDirectoryConstant      = ".venv"
	dependencyNotFoundMarkerConstant = "not found in"
)

// UVCommandExecutor is the minimal interface required from execshell.ShellExecutor.
type UVCommandExecutor interface {
	ExecuteUV(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// ErrExecutorNotConfigured indicates the client was constructed without an executor.
var ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)

// Client coordinates uv invocations for the workspace root project.
type Client struct {
	executor    UVCommandExecutor
	projectRoot string
}

// NewClient constructs a uv client rooted at the provided project directory.
func NewClient(executor UVCommandExecutor, projectRoot string) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &Client{executor: executor, projectRoot: projectRoot}, nil
}

// EnsureVirtualEnv creates the project virtual environment when it is missing.
// This is the only first-use bootstrap performed before other commands proceed.
func (client *Client) EnsureVirtualEnv(executionContext context.Context) (bool, error) {
	virtualEnvPath := filepath.Join(client.projectRoot, virtualEnvDirectoryConstant)
	if directoryInfo, statError := os.Stat(virtualEnvPath); statError == nil && directoryInfo.IsDir() {
		return false, nil
	}

	_, executionError := client.executor.ExecuteUV(executionContext, execshell.CommandDetails{
		Arguments:        []string{venvSubcommandConstant},
		WorkingDirectory: client.projectRoot,
	})
	if executionError != nil {
		return false, executionError
	}
	return true, nil
}

// AddEditable registers a workspace-local directory as an editable dependency.
func (client *Client) AddEditable(executionContext context.Context, relativePath string) error {
	_, executionError := client.executor.ExecuteUV(executionContext, execshell.CommandDetails{
		Arguments:        []string{addSubcommandConstant, relativePath, editableFlagConstant},
		WorkingDirectory: client.projectRoot,
	})
	return executionError
}

// Remove drops a dependency by its declared package name. A "not found" response
// is reported through the returned flag instead of an error, because workspace
// cleanup must still proceed.
func (client *Client) Remove(executionContext context.Context, packageName string) (bool, error) {
	executionResult, executionError := client.executor.ExecuteUV(executionContext, execshell.CommandDetails{
		Arguments:        []string{removeSubcommandConstant, packageName},
		WorkingDirectory: client.projectRoot,
		AllowFailure:     true,
	})
	if executionError != nil {
		return false, executionError
	}
	if executionResult.ExitCode == 0 {
		return true, nil
	}
	combinedOutput := executionResult.StandardError + executionResult.StandardOutput
	if strings.Contains(combinedOutput, dependencyNotFoundMarkerConstant) {
		return false, nil
	}
	return false, execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandUV, Details: execshell.CommandDetails{Arguments: []string{removeSubcommandConstant, packageName}}},
		Result:  executionResult,
	}
}

// Lock resolves the workspace dependency graph into the lock file.
func (client *Client) Lock(executionContext context.Context, allowFailure bool) (execshell.ExecutionResult, error) {
	return client.executor.ExecuteUV(executionContext, execshell.CommandDetails{
		Arguments:        []string{lockSubcommandConstant},
		WorkingDirectory: client.projectRoot,
		AllowFailure:     allowFailure,
	})
}

// Sync installs the locked dependency set, including optional extras, into the environment.
func (client *Client) Sync(executionContext context.Context) error {
	_, executionError := client.executor.ExecuteUV(executionContext, execshell.CommandDetails{
		Arguments:        []string{syncSubcommandConstant, allExtrasFlagConstant},
		WorkingDirectory: client.projectRoot,
	})
	return executionError
}

// PipCompile compiles a requirements input file into a fully pinned lock file.
func (client *Client) PipCompile(executionContext context.Context, inputPath string, outputPath string) error {
	_, executionError := client.executor.ExecuteUV(executionContext, execshell.CommandDetails{
		Arguments:        []string{pipSubcommandConstant, compileSubcommandConstant, inputPath, outputFlagConstant, outputPath},
		WorkingDirectory: client.projectRoot,
	})
	return executionError
}
