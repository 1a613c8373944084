package lifecycle

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
	"github.com/temirov/plugman/internal/githubcli"
	"github.com/temirov/plugman/internal/gitrepo"
	"github.com/temirov/plugman/internal/uvcli"
	"github.com/temirov/plugman/internal/workspace"
)

const (
	setupCommandUseConstant   = "setup"
	setupCommandShortConstant = "Create template configuration files"
	setupCommandLongConstant  = "setup writes template configuration and plugin list files so a fresh checkout can be configured."

	initCommandUseConstant   = "init"
	initCommandShortConstant = "Build the whole workspace from the plugin list"
	initCommandLongConstant  = "init bootstraps every listed plugin repository, registers each as an editable dependency, and resolves the lock file."
	initInstallFlagConstant  = "install"
	initInstallFlagUsage     = "Sync the virtual environment after initialization"

	addCommandUseConstant   = "add <plugin-url>"
	addCommandShortConstant = "Add a new plugin to the workspace"
	addCommandLongConstant  = "add forks, clones, and registers one plugin repository, then records its URL in the plugin list."

	removeCommandUseConstant   = "remove <plugin-name>"
	removeCommandShortConstant = "Remove a plugin from the workspace"
	removeCommandLongConstant  = "remove drops a plugin's dependency entry, workspace membership, and plugin list entry."
	removeForceFlagConstant    = "force"
	removeForceShorthand       = "f"
	removeForceFlagUsage       = "Delete the plugin source directory as well"

	prodSetupCommandUseConstant   = "prod-setup"
	prodSetupCommandShortConstant = "Prepare a production host from the lock file"
	prodSetupCommandLongConstant  = "prod-setup clones or updates every plugin fork at the development branch and synchronizes the environment."

	diagnoseCommandUseConstant   = "diagnose"
	diagnoseCommandShortConstant = "Analyze dependency conflicts"
	diagnoseCommandLongConstant  = "diagnose runs the dependency resolver and reports conflicts without modifying the workspace."

	firstRunGuidanceMessageConstant = "Template configuration created. Edit plugman.yaml (set github_org) and plugins.txt, then run init.\n"
	configsReadyMessageConstant     = "Configuration files are ready.\n"
	pluginListMissingTemplate       = "Plugin list %q not found. Run setup first.\n"
	initCompleteMessageConstant     = "Workspace initialization complete.\n"
	addCompleteTemplateConstant     = "Plugin %q added. Run 'plugman init --install' or 'uv sync' to update your environment.\n"
	addValidationTemplateConstant   = "Validation failed for %q: %v\nThe plugin folder was cloned; fix its packaging metadata, then run init to register it.\n"
	removeCompleteMessageConstant   = "Plugin removal finished. Run 'uv sync' to update your virtual environment.\n"
	manualRemovalTemplateConstant   = "Remove the plugin source folder manually: rm -rf %s\n"
	prodSetupCompleteMessage        = "Production setup complete.\n"
	diagnoseHealthyMessageConstant  = "No dependency conflicts detected.\n"
	diagnoseReportHeaderConstant    = "Dependency conflict report:\n%s\n"

	organizationRequiredMessage = "github_org is not configured; run setup and edit plugman.yaml"
)

var errOrganizationNotConfigured = errors.New(organizationRequiredMessage)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// SettingsProvider supplies the sanitized manager configuration.
type SettingsProvider func() workspace.Settings

// EventObserverProvider supplies an optional observer for command progress reporting.
type EventObserverProvider func() execshell.CommandEventObserver

// BuilderDependencies carries the shared wiring for every lifecycle command.
type BuilderDependencies struct {
	LoggerProvider        LoggerProvider
	SettingsProvider      SettingsProvider
	EventObserverProvider EventObserverProvider
	WorkingDirectory      string
	Service               *Service
}

func (dependencies BuilderDependencies) resolveLogger() *zap.Logger {
	if dependencies.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := dependencies.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (dependencies BuilderDependencies) resolveSettings() workspace.Settings {
	if dependencies.SettingsProvider == nil {
		return workspace.DefaultSettings()
	}
	return dependencies.SettingsProvider().Sanitize()
}

func (dependencies BuilderDependencies) resolveEventObserver() execshell.CommandEventObserver {
	if dependencies.EventObserverProvider == nil {
		return nil
	}
	return dependencies.EventObserverProvider()
}

func (dependencies BuilderDependencies) resolveProjectRoot() (string, error) {
	trimmedWorkingDirectory := strings.TrimSpace(dependencies.WorkingDirectory)
	if len(trimmedWorkingDirectory) > 0 {
		return trimmedWorkingDirectory, nil
	}
	return os.Getwd()
}

// resolveService constructs the full lifecycle service behind a command,
// unless a pre-built service was injected.
func (dependencies BuilderDependencies) resolveService(requireOrganization bool) (*Service, error) {
	if dependencies.Service != nil {
		return dependencies.Service, nil
	}

	logger := dependencies.resolveLogger()
	settings := dependencies.resolveSettings()
	if requireOrganization && len(settings.GitHubOrganization) == 0 {
		return nil, errOrganizationNotConfigured
	}

	projectRoot, projectRootError := dependencies.resolveProjectRoot()
	if projectRootError != nil {
		return nil, projectRootError
	}

	executor, executorError := execshell.NewShellExecutorWithConfiguration(
		logger,
		execshell.NewOSCommandRunner(),
		execshell.ExecutorConfiguration{
			CommandTimeout: time.Duration(settings.CommandTimeoutSeconds) * time.Second,
			EventObserver:  dependencies.resolveEventObserver(),
		},
	)
	if executorError != nil {
		return nil, executorError
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(executor)
	if managerError != nil {
		return nil, managerError
	}
	githubClient, githubError := githubcli.NewClient(executor, logger)
	if githubError != nil {
		return nil, githubError
	}
	uvClient, uvError := uvcli.NewClient(executor, projectRoot)
	if uvError != nil {
		return nil, uvError
	}

	return NewService(Dependencies{
		Logger:            logger,
		GitExecutor:       executor,
		RepositoryManager: repositoryManager,
		GitHubClient:      githubClient,
		UVClient:          uvClient,
		ProjectRoot:       projectRoot,
		Settings:          settings,
	})
}

// SetupCommandBuilder assembles the setup command.
type SetupCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the setup command.
func (builder *SetupCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   setupCommandUseConstant,
		Short: setupCommandShortConstant,
		Long:  setupCommandLongConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			service, serviceError := builder.resolveService(false)
			if serviceError != nil {
				return serviceError
			}
			firstRun, templateError := service.WriteConfigurationTemplates()
			if templateError != nil {
				return templateError
			}
			if firstRun {
				fmt.Fprint(command.OutOrStdout(), firstRunGuidanceMessageConstant)
				return nil
			}
			fmt.Fprint(command.OutOrStdout(), configsReadyMessageConstant)
			return nil
		},
	}, nil
}

// InitCommandBuilder assembles the init command.
type InitCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the init command.
func (builder *InitCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   initCommandUseConstant,
		Short: initCommandShortConstant,
		Long:  initCommandLongConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			service, serviceError := builder.resolveService(true)
			if serviceError != nil {
				return serviceError
			}
			installEnvironment, _ := command.Flags().GetBool(initInstallFlagConstant)

			initializationError := service.InitializeWorkspace(command.Context(), installEnvironment)
			if initializationError != nil {
				if os.IsNotExist(initializationError) {
					fmt.Fprintf(command.OutOrStdout(), pluginListMissingTemplate, service.PluginListFile().FilePath())
					return nil
				}
				return initializationError
			}
			fmt.Fprint(command.OutOrStdout(), initCompleteMessageConstant)
			return nil
		},
	}
	command.Flags().Bool(initInstallFlagConstant, false, initInstallFlagUsage)
	return command, nil
}

// AddCommandBuilder assembles the add command.
type AddCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the add command.
func (builder *AddCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   addCommandUseConstant,
		Short: addCommandShortConstant,
		Long:  addCommandLongConstant,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService(true)
			if serviceError != nil {
				return serviceError
			}

			setupResult, addError := service.AddPlugin(command.Context(), arguments[0])
			if addError != nil {
				if errors.Is(addError, ErrNotInstallable) {
					fmt.Fprintf(command.OutOrStdout(), addValidationTemplateConstant, pluginLabel(setupResult), addError)
					return nil
				}
				return addError
			}
			fmt.Fprintf(command.OutOrStdout(), addCompleteTemplateConstant, pluginLabel(setupResult))
			return nil
		},
	}, nil
}

func pluginLabel(setupResult SetupResult) string {
	if len(setupResult.LocalPath) == 0 {
		return ""
	}
	return filepath.Base(setupResult.LocalPath)
}

// RemoveCommandBuilder assembles the remove command.
type RemoveCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the remove command.
func (builder *RemoveCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   removeCommandUseConstant,
		Short: removeCommandShortConstant,
		Long:  removeCommandLongConstant,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService(false)
			if serviceError != nil {
				return serviceError
			}
			forceRemoval, _ := command.Flags().GetBool(removeForceFlagConstant)

			removalReport, removalError := service.RemovePlugin(command.Context(), arguments[0], forceRemoval)
			if removalError != nil {
				return removalError
			}
			if len(removalReport.ManualRemovalPath) > 0 {
				fmt.Fprintf(command.OutOrStdout(), manualRemovalTemplateConstant, removalReport.ManualRemovalPath)
			}
			fmt.Fprint(command.OutOrStdout(), removeCompleteMessageConstant)
			return nil
		},
	}
	command.Flags().BoolP(removeForceFlagConstant, removeForceShorthand, false, removeForceFlagUsage)
	return command, nil
}

// ProdSetupCommandBuilder assembles the prod-setup command.
type ProdSetupCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the prod-setup command.
func (builder *ProdSetupCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   prodSetupCommandUseConstant,
		Short: prodSetupCommandShortConstant,
		Long:  prodSetupCommandLongConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			service, serviceError := builder.resolveService(true)
			if serviceError != nil {
				return serviceError
			}

			setupError := service.ProductionSetup(command.Context())
			if setupError != nil {
				if os.IsNotExist(setupError) {
					fmt.Fprintf(command.OutOrStdout(), pluginListMissingTemplate, service.PluginListFile().FilePath())
					return nil
				}
				return setupError
			}
			fmt.Fprint(command.OutOrStdout(), prodSetupCompleteMessage)
			return nil
		},
	}, nil
}

// DiagnoseCommandBuilder assembles the diagnose command.
type DiagnoseCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the diagnose command.
func (builder *DiagnoseCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   diagnoseCommandUseConstant,
		Short: diagnoseCommandShortConstant,
		Long:  diagnoseCommandLongConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			service, serviceError := builder.resolveService(false)
			if serviceError != nil {
				return serviceError
			}

			diagnosisReport, diagnosisError := service.Diagnose(command.Context())
			if diagnosisError != nil {
				return diagnosisError
			}
			if diagnosisReport.Healthy {
				fmt.Fprint(command.OutOrStdout(), diagnoseHealthyMessageConstant)
				return nil
			}
			fmt.Fprintf(command.OutOrStdout(), diagnoseReportHeaderConstant, diagnosisReport.Detail)
			return nil
		},
	}, nil
}
