package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/plugman/internal/batch"
	"github.com/temirov/plugman/internal/execshell"
	"github.com/temirov/plugman/internal/lifecycle"
	"github.com/temirov/plugman/internal/manifest"
	"github.com/temirov/plugman/internal/utils"
	"github.com/temirov/plugman/internal/workspace"
)

const (
	applicationNameConstant             = "plugman"
	applicationShortDescriptionConstant = "Manage a fork-based plugin development workspace"
	applicationLongDescriptionConstant  = "plugman coordinates plugin forks, workspace dependencies, and batch git operations for a multi-repository plugin workspace."

	configFileFlagNameConstant  = "config"
	configFileFlagUsageConstant = "Optional path to a configuration file (YAML)."
	logLevelFlagNameConstant    = "log-level"
	logLevelFlagUsageConstant   = "Override the configured log level."
	logFormatFlagNameConstant   = "log-format"
	logFormatFlagUsageConstant  = "Override the configured log format (structured or console)."
	scopeFlagNameConstant       = "scope"
	scopeFlagUsageConstant      = "Repository scope for batch commands (all, plugins, or root)."

	commonConfigurationKeyConstant   = "common"
	commonLogLevelConfigKeyConstant  = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant = commonConfigurationKeyConstant + ".log_format"
	managerConfigurationKeyConstant  = "manager"

	environmentPrefixConstant              = "PLUGMAN"
	configurationNameConstant              = "plugman"
	configurationTypeConstant              = "yaml"
	defaultConfigurationSearchPathConstant = "."

	configurationInitializedMessageConstant = "configuration initialized"
	configurationFallbackMessageConstant    = "configuration file unreadable; using defaults"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	invalidScopeErrorTemplateConstant       = "invalid scope %q: expected all, plugins, or root"
	rootCommandInfoMessageConstant          = "plugman CLI executed"
	rootCommandDebugMessageConstant         = "plugman CLI diagnostics"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentCountConstant           = "argument_count"
	logFieldArgumentsConstant               = "arguments"
	loggerNotInitializedMessageConstant     = "logger not initialized"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common  ApplicationCommonConfiguration `mapstructure:"common"`
	Manager workspace.Settings             `mapstructure:"manager"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand           *cobra.Command
	configurationLoader   *utils.ConfigurationLoader
	loggerFactory         *utils.LoggerFactory
	logger                *zap.Logger
	configuration         ApplicationConfiguration
	configurationMetadata utils.LoadedConfiguration
	configurationFilePath string
	logLevelFlagValue     string
	logFormatFlagValue    string
	scopeFlagValue        string
	selectedScope         workspace.Scope
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant},
	)

	application := &Application{
		configurationLoader: configurationLoader,
		loggerFactory:       utils.NewLoggerFactory(),
		logger:              zap.NewNop(),
		selectedScope:       workspace.ScopeAll,
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.scopeFlagValue, scopeFlagNameConstant, "", scopeFlagUsageConstant)

	application.registerLifecycleCommands(cobraCommand)
	application.registerManifestCommand(cobraCommand)
	application.registerBatchCommands(cobraCommand)

	application.rootCommand = cobraCommand

	return application
}

func (application *Application) registerLifecycleCommands(rootCommand *cobra.Command) {
	builderDependencies := lifecycle.BuilderDependencies{
		LoggerProvider:        application.provideLogger,
		SettingsProvider:      application.provideSettings,
		EventObserverProvider: application.provideCommandEventObserver,
	}
	if workingDirectory, workingDirectoryError := os.Getwd(); workingDirectoryError == nil {
		builderDependencies.WorkingDirectory = workingDirectory
	}

	lifecycleBuilders := []interface {
		Build() (*cobra.Command, error)
	}{
		&lifecycle.SetupCommandBuilder{BuilderDependencies: builderDependencies},
		&lifecycle.InitCommandBuilder{BuilderDependencies: builderDependencies},
		&lifecycle.AddCommandBuilder{BuilderDependencies: builderDependencies},
		&lifecycle.RemoveCommandBuilder{BuilderDependencies: builderDependencies},
		&lifecycle.ProdSetupCommandBuilder{BuilderDependencies: builderDependencies},
		&lifecycle.DiagnoseCommandBuilder{BuilderDependencies: builderDependencies},
	}
	for _, commandBuilder := range lifecycleBuilders {
		builtCommand, buildError := commandBuilder.Build()
		if buildError == nil {
			rootCommand.AddCommand(builtCommand)
		}
	}
}

func (application *Application) registerManifestCommand(rootCommand *cobra.Command) {
	packageBuilder := manifest.CommandBuilder{
		LoggerProvider:        application.provideLogger,
		SettingsProvider:      application.provideSettings,
		EventObserverProvider: application.provideCommandEventObserver,
	}
	if workingDirectory, workingDirectoryError := os.Getwd(); workingDirectoryError == nil {
		packageBuilder.WorkingDirectory = workingDirectory
	}

	packageCommand, packageBuildError := packageBuilder.Build()
	if packageBuildError == nil {
		rootCommand.AddCommand(packageCommand)
	}
}

func (application *Application) registerBatchCommands(rootCommand *cobra.Command) {
	builderDependencies := batch.BuilderDependencies{
		LoggerProvider:        application.provideLogger,
		SettingsProvider:      application.provideSettings,
		ScopeProvider:         application.provideScope,
		EventObserverProvider: application.provideCommandEventObserver,
	}
	if workingDirectory, workingDirectoryError := os.Getwd(); workingDirectoryError == nil {
		builderDependencies.WorkingDirectory = workingDirectory
	}

	batchBuilders := []interface {
		Build() (*cobra.Command, error)
	}{
		&batch.StatusCommandBuilder{BuilderDependencies: builderDependencies},
		&batch.CommitCommandBuilder{BuilderDependencies: builderDependencies},
		&batch.SyncCommandBuilder{BuilderDependencies: builderDependencies},
		&batch.PushCommandBuilder{BuilderDependencies: builderDependencies},
		&batch.CheckoutCommandBuilder{BuilderDependencies: builderDependencies},
		&batch.CleanupBranchesCommandBuilder{BuilderDependencies: builderDependencies},
	}
	for _, commandBuilder := range batchBuilders {
		builtCommand, buildError := commandBuilder.Build()
		if buildError == nil {
			rootCommand.AddCommand(builtCommand)
		}
	}
}

func (application *Application) provideLogger() *zap.Logger {
	return application.logger
}

func (application *Application) provideSettings() workspace.Settings {
	return application.configuration.Manager
}

func (application *Application) provideScope() workspace.Scope {
	return application.selectedScope
}

// provideCommandEventObserver reports external command progress on standard
// error during interactive console sessions; structured logging sessions rely
// on the executor's debug logs instead.
func (application *Application) provideCommandEventObserver() execshell.CommandEventObserver {
	if utils.LogFormat(application.configuration.Common.LogFormat) != utils.LogFormatConsole {
		return nil
	}
	return execshell.NewConsoleCommandEventObserver(application.rootCommand.ErrOrStderr())
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// ExecuteContext runs the command hierarchy under the provided context so
// interrupts propagate to in-flight commands.
func (application *Application) ExecuteContext(executionContext context.Context) error {
	application.rootCommand.SetContext(executionContext)
	return application.Execute()
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}
	for configurationKey, configurationValue := range managerDefaultConfigurationValues() {
		defaultValues[configurationKey] = configurationValue
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration
	application.configuration.Manager = application.configuration.Manager.Sanitize()

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	if resolutionError := application.resolveSelectedScope(command); resolutionError != nil {
		return resolutionError
	}

	loggerInstance, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = loggerInstance

	if application.configurationMetadata.LoadFailure != nil {
		application.logger.Warn(
			configurationFallbackMessageConstant,
			zap.Error(application.configurationMetadata.LoadFailure),
		)
	}

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	return nil
}

// resolveSelectedScope applies the --scope flag over the configured default.
// Either source must name a recognized scope.
func (application *Application) resolveSelectedScope(command *cobra.Command) error {
	scopeCandidate := application.configuration.Manager.DefaultScope
	if application.persistentFlagChanged(command, scopeFlagNameConstant) {
		scopeCandidate = strings.TrimSpace(application.scopeFlagValue)
	}

	parsedScope, scopeRecognized := workspace.ParseScope(scopeCandidate)
	if !scopeRecognized {
		return fmt.Errorf(invalidScopeErrorTemplateConstant, scopeCandidate)
	}

	application.selectedScope = parsedScope
	return nil
}

func managerDefaultConfigurationValues() map[string]any {
	defaultSettings := workspace.DefaultSettings()
	return map[string]any{
		managerConfigurationKeyConstant + ".plugins_src_dir":   defaultSettings.PluginsSourceDirectory,
		managerConfigurationKeyConstant + ".plugins_list_file": defaultSettings.PluginsListFile,
		managerConfigurationKeyConstant + ".requirements_file": defaultSettings.RequirementsFile,
		managerConfigurationKeyConstant + ".lock_file":         defaultSettings.LockFile,
		managerConfigurationKeyConstant + ".sync_state_file":   defaultSettings.SyncStateFile,
		managerConfigurationKeyConstant + ".sync_log_dir":      defaultSettings.SyncLogDirectory,
		managerConfigurationKeyConstant + ".max_workers":       defaultSettings.MaximumWorkers,
		managerConfigurationKeyConstant + ".command_timeout":   defaultSettings.CommandTimeoutSeconds,
		managerConfigurationKeyConstant + ".dev_branch":        defaultSettings.DevelopmentBranch,
		managerConfigurationKeyConstant + ".default_scope":     defaultSettings.DefaultScope,
	}
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	application.logger.Info(
		rootCommandInfoMessageConstant,
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Int(logFieldArgumentCountConstant, len(arguments)),
	)

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	if len(arguments) == 0 {
		return command.Help()
	}

	return nil
}

func (application *Application) flushLogger() error {
	return application.syncLoggerInstance(application.logger)
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
