package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/plugman/internal/execshell"
	"github.com/temirov/plugman/internal/githubcli"
	"github.com/temirov/plugman/internal/gitrepo"
	"github.com/temirov/plugman/internal/state"
	"github.com/temirov/plugman/internal/workspace"
)

const (
	statusCommandUseConstant   = "status"
	statusCommandShortConstant = "Show branch and worktree state for every repository"

	commitCommandUseConstant   = "commit"
	commitCommandShortConstant = "Commit changes in every dirty repository with a shared Change-ID"
	commitMessageFlagConstant  = "message"
	commitMessageShorthand     = "m"
	commitMessageFlagUsage     = "Commit message applied to every repository"

	syncCommandUseConstant   = "sync"
	syncCommandShortConstant = "Rebase every development branch onto its upstream default branch"
	syncPushFlagConstant     = "push"
	syncPushFlagUsage        = "Push with --force-with-lease after a successful rebase"

	pushCommandUseConstant   = "push"
	pushCommandShortConstant = "Push every repository's current branch to origin"
	pushForceFlagConstant    = "force"
	pushForceShorthand       = "f"
	pushForceFlagUsage       = "Use --force-with-lease"

	checkoutCommandUseConstant   = "checkout <branch>"
	checkoutCommandShortConstant = "Switch every repository to the named branch"
	checkoutCreateFlagConstant   = "create-new"
	checkoutCreateShorthand      = "b"
	checkoutCreateFlagUsage      = "Create the branch if it does not exist"

	cleanupCommandUseConstant   = "cleanup-branches <branch>"
	cleanupCommandShortConstant = "Delete the named remote branch from every plugin fork"

	outcomeLineTemplateConstant  = "  %-30s %-9s %s\n"
	summaryLineTemplateConstant  = "Summary: %d succeeded, %d failed, %d skipped\n"
	changeIDLineTemplateConstant = "Committed with Change-ID: %s\n"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// SettingsProvider supplies the sanitized manager configuration.
type SettingsProvider func() workspace.Settings

// ScopeProvider supplies the repository scope selected for this invocation.
type ScopeProvider func() workspace.Scope

// EventObserverProvider supplies an optional observer for command progress reporting.
type EventObserverProvider func() execshell.CommandEventObserver

// BuilderDependencies carries the shared wiring for every batch command.
type BuilderDependencies struct {
	LoggerProvider        LoggerProvider
	SettingsProvider      SettingsProvider
	ScopeProvider         ScopeProvider
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

func (dependencies BuilderDependencies) resolveScope() workspace.Scope {
	if dependencies.ScopeProvider == nil {
		return workspace.ScopeAll
	}
	return dependencies.ScopeProvider()
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

// resolveService assembles the batch service and its persistence collaborators,
// unless a pre-built service was injected.
func (dependencies BuilderDependencies) resolveService() (*Service, error) {
	if dependencies.Service != nil {
		return dependencies.Service, nil
	}

	logger := dependencies.resolveLogger()
	settings := dependencies.resolveSettings()

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

	transactionLog, transactionLogError := state.NewTransactionLog(filepath.Join(projectRoot, settings.SyncLogDirectory))
	if transactionLogError != nil {
		return nil, transactionLogError
	}

	return NewService(Dependencies{
		Logger:            logger,
		GitExecutor:       executor,
		RepositoryManager: repositoryManager,
		GitHubClient:      githubClient,
		Runner:            workspace.NewConcurrentRunner(logger, settings.MaximumWorkers),
		Discoverer:        workspace.NewFilesystemRepositoryDiscoverer(projectRoot, filepath.Join(projectRoot, settings.PluginsSourceDirectory)),
		TransactionLog:    transactionLog,
		SyncStateStore:    state.NewStore(filepath.Join(projectRoot, settings.SyncStateFile), logger),
		Settings:          settings,
	})
}

// printResult renders per-repository outcomes alphabetically plus a summary line.
func printResult(outputWriter io.Writer, result Result) {
	repositoryNames := make([]string, 0, len(result.Outcomes))
	for repositoryName := range result.Outcomes {
		repositoryNames = append(repositoryNames, repositoryName)
	}
	sort.Strings(repositoryNames)

	for _, repositoryName := range repositoryNames {
		outcome := result.Outcomes[repositoryName]
		fmt.Fprintf(outputWriter, outcomeLineTemplateConstant, repositoryName, outcome.Status, outcome.Detail)
	}
	fmt.Fprintf(outputWriter, summaryLineTemplateConstant, result.Summary.Succeeded, result.Summary.Failed, result.Summary.Skipped)
}

// StatusCommandBuilder assembles the status command.
type StatusCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the status command.
func (builder *StatusCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   statusCommandUseConstant,
		Short: statusCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			result, operationError := service.Status(command.Context(), builder.resolveScope())
			if operationError != nil {
				return operationError
			}
			printResult(command.OutOrStdout(), result)
			return nil
		},
	}, nil
}

// CommitCommandBuilder assembles the commit command.
type CommitCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the commit command.
func (builder *CommitCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commitCommandUseConstant,
		Short: commitCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			commitMessage, _ := command.Flags().GetString(commitMessageFlagConstant)

			result, changeID, operationError := service.Commit(command.Context(), builder.resolveScope(), commitMessage)
			if operationError != nil {
				return operationError
			}
			printResult(command.OutOrStdout(), result)
			fmt.Fprintf(command.OutOrStdout(), changeIDLineTemplateConstant, changeID)
			return nil
		},
	}
	command.Flags().StringP(commitMessageFlagConstant, commitMessageShorthand, "", commitMessageFlagUsage)
	if markError := command.MarkFlagRequired(commitMessageFlagConstant); markError != nil {
		return nil, markError
	}
	return command, nil
}

// SyncCommandBuilder assembles the sync command.
type SyncCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the sync command.
func (builder *SyncCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   syncCommandUseConstant,
		Short: syncCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			pushAfterRebase, _ := command.Flags().GetBool(syncPushFlagConstant)

			result, operationError := service.Sync(command.Context(), builder.resolveScope(), pushAfterRebase)
			if operationError != nil {
				return operationError
			}
			printResult(command.OutOrStdout(), result)
			return nil
		},
	}
	command.Flags().Bool(syncPushFlagConstant, false, syncPushFlagUsage)
	return command, nil
}

// PushCommandBuilder assembles the push command.
type PushCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the push command.
func (builder *PushCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   pushCommandUseConstant,
		Short: pushCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			forceWithLease, _ := command.Flags().GetBool(pushForceFlagConstant)

			result, operationError := service.Push(command.Context(), builder.resolveScope(), forceWithLease)
			if operationError != nil {
				return operationError
			}
			printResult(command.OutOrStdout(), result)
			return nil
		},
	}
	command.Flags().BoolP(pushForceFlagConstant, pushForceShorthand, false, pushForceFlagUsage)
	return command, nil
}

// CheckoutCommandBuilder assembles the checkout command.
type CheckoutCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the checkout command.
func (builder *CheckoutCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   checkoutCommandUseConstant,
		Short: checkoutCommandShortConstant,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			createBranch, _ := command.Flags().GetBool(checkoutCreateFlagConstant)

			result, operationError := service.Checkout(command.Context(), builder.resolveScope(), arguments[0], createBranch)
			if operationError != nil {
				return operationError
			}
			printResult(command.OutOrStdout(), result)
			return nil
		},
	}
	command.Flags().BoolP(checkoutCreateFlagConstant, checkoutCreateShorthand, false, checkoutCreateFlagUsage)
	return command, nil
}

// CleanupBranchesCommandBuilder assembles the cleanup-branches command.
type CleanupBranchesCommandBuilder struct {
	BuilderDependencies
}

// Build constructs the cleanup-branches command.
func (builder *CleanupBranchesCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   cleanupCommandUseConstant,
		Short: cleanupCommandShortConstant,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			result, operationError := service.CleanupBranches(command.Context(), builder.resolveScope(), arguments[0])
			if operationError != nil {
				return operationError
			}
			printResult(command.OutOrStdout(), result)
			return nil
		},
	}, nil
}
