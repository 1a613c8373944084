package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/plugman/internal/execshell"
	"github.com/temirov/plugman/internal/uvcli"
	"github.com/temirov/plugman/internal/workspace"
)

const (
	commandUseConstant              = "package"
	commandShortDescriptionConstant = "Build a pinned production requirements set"
	commandLongDescriptionConstant  = "package rewrites workspace-local dependencies into pinned fork references and compiles them into a production requirements file."

	flagBranchNameConstant        = "branch"
	flagBranchDescriptionConstant = "Branch each pinned fork reference points at"

	unexpectedArgumentsMessageConstant       = "package does not accept positional arguments"
	organizationNotConfiguredMessageConstant = "github_org is not configured"
	packageCompletedMessageTemplateConstant  = "Production requirements written to %s\n"
)

var (
	errUnexpectedArguments       = errors.New(unexpectedArgumentsMessageConstant)
	errOrganizationNotConfigured = errors.New(organizationNotConfiguredMessageConstant)
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// SettingsProvider supplies the sanitized manager configuration.
type SettingsProvider func() workspace.Settings

// EventObserverProvider supplies an optional observer for command progress reporting.
type EventObserverProvider func() execshell.CommandEventObserver

// CommandBuilder assembles the Cobra command for production packaging.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	SettingsProvider      SettingsProvider
	EventObserverProvider EventObserverProvider
	WorkingDirectory      string
	Executor              uvcli.UVCommandExecutor
}

// Build constructs the package command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().String(flagBranchNameConstant, "", flagBranchDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	logger := builder.resolveLogger()
	settings := builder.resolveSettings()
	if len(settings.GitHubOrganization) == 0 {
		return errOrganizationNotConfigured
	}

	projectRoot, projectRootError := builder.resolveProjectRoot()
	if projectRootError != nil {
		return projectRootError
	}

	targetBranch := settings.DevelopmentBranch
	branchValue, _ := command.Flags().GetString(flagBranchNameConstant)
	if trimmedBranch := strings.TrimSpace(branchValue); len(trimmedBranch) > 0 {
		targetBranch = trimmedBranch
	}

	uvExecutor, executorError := builder.resolveExecutor(logger, settings)
	if executorError != nil {
		return executorError
	}

	uvClient, clientError := uvcli.NewClient(uvExecutor, projectRoot)
	if clientError != nil {
		return clientError
	}

	rewriter, rewriterError := NewRewriter(RewriterDependencies{
		ProjectRoot:      projectRoot,
		ManifestPath:     filepath.Join(projectRoot, PyProjectFileName),
		PluginsDirectory: filepath.Join(projectRoot, settings.PluginsSourceDirectory),
		PluginsDirName:   settings.PluginsSourceDirectory,
		Organization:     settings.GitHubOrganization,
		UVClient:         uvClient,
		Logger:           logger,
	})
	if rewriterError != nil {
		return rewriterError
	}

	if packagingError := rewriter.CreateProductionPackage(command.Context(), targetBranch); packagingError != nil {
		return packagingError
	}

	fmt.Fprintf(command.OutOrStdout(), packageCompletedMessageTemplateConstant, filepath.Join(projectRoot, productionLockFileNameConstant))
	return nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveSettings() workspace.Settings {
	if builder.SettingsProvider == nil {
		return workspace.DefaultSettings()
	}
	return builder.SettingsProvider().Sanitize()
}

func (builder *CommandBuilder) resolveProjectRoot() (string, error) {
	trimmedWorkingDirectory := strings.TrimSpace(builder.WorkingDirectory)
	if len(trimmedWorkingDirectory) > 0 {
		return trimmedWorkingDirectory, nil
	}
	return os.Getwd()
}

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger, settings workspace.Settings) (uvcli.UVCommandExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}
	return execshell.NewShellExecutorWithConfiguration(
		logger,
		execshell.NewOSCommandRunner(),
		execshell.ExecutorConfiguration{
			CommandTimeout: time.Duration(settings.CommandTimeoutSeconds) * time.Second,
			EventObserver:  builder.resolveEventObserver(),
		},
	)
}

func (builder *CommandBuilder) resolveEventObserver() execshell.CommandEventObserver {
	if builder.EventObserverProvider == nil {
		return nil
	}
	return builder.EventObserverProvider()
}
