package batch

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/plugman/internal/execshell"
	"github.com/temirov/plugman/internal/githubcli"
	"github.com/temirov/plugman/internal/gitrepo"
	"github.com/temirov/plugman/internal/state"
	"github.com/temirov/plugman/internal/workspace"
)

const (
	loggerMissingMessageConstant            = "logger not configured"
	gitExecutorMissingMessageConstant       = "git executor not configured"
	repositoryManagerMissingMessageConstant = "repository manager not configured"
	githubClientMissingMessageConstant      = "github client not configured"
	runnerMissingMessageConstant            = "concurrent runner not configured"
	discovererMissingMessageConstant        = "repository discoverer not configured"

	originRemoteNameConstant   = "origin"
	upstreamRemoteNameConstant = "upstream"

	gitFetchSubcommandConstant    = "fetch"
	gitAddSubcommandConstant      = "add"
	gitCommitSubcommandConstant   = "commit"
	gitRebaseSubcommandConstant   = "rebase"
	gitPushSubcommandConstant     = "push"
	gitCheckoutSubcommandConstant = "checkout"
	gitRevListSubcommandConstant  = "rev-list"
	gitCountFlagConstant          = "--count"
	gitAllFlagConstant            = "-A"
	gitMessageFlagConstant        = "-m"
	gitPruneFlagConstant          = "--prune"
	gitForceWithLeaseFlagConstant = "--force-with-lease"
	gitDeleteFlagConstant         = "--delete"
	gitCreateBranchFlagConstant   = "-b"

	changeIDTrailerTemplateConstant   = "%s\n\nChange-ID: %s"
	changeIDPrefixConstant            = "I"
	changeIDHexLengthConstant         = 10
	upstreamBranchTemplateConstant    = "upstream/%s"
	aheadRangeTemplateConstant        = "origin/%s..HEAD"
	behindRangeTemplateConstant       = "HEAD..origin/%s"
	statusDetailTemplateConstant      = "(%s) | %s | ahead %s, behind %s"
	cleanWorktreeLabelConstant        = "clean"
	dirtyWorktreeLabelConstant        = "dirty"
	committedDetailConstant           = "committed"
	cleanSkipDetailConstant           = "clean worktree"
	wrongBranchSkipTemplateConstant   = "not on %q branch"
	rootProjectSkipDetailConstant     = "root project"
	branchDeletedDetailConstant       = "deleted"
	branchNotFoundDetailConstant      = "not found"
	rebaseRemediationTemplateConstant = "rebase onto %s failed: %v; run 'git rebase --abort' in %s or resolve the conflicts manually"

	transactionRecordFailureWarning = "could not append transaction record"
	syncStatePersistFailureWarning  = "could not persist sync state"
	logFieldOperationConstant       = "operation"
	logFieldRepositoryConstant      = "repository"

	syncStateStatusKeyConstant   = "status"
	syncStateSyncedAtKeyConstant = "synced_at"

	statusOperationNameConstant          = "status"
	commitOperationNameConstant          = "commit"
	syncOperationNameConstant            = "sync"
	pushOperationNameConstant            = "push"
	checkoutOperationNameConstant        = "checkout"
	cleanupBranchesOperationNameConstant = "cleanup-branches"
)

// Sentinel errors for missing service collaborators.
var (
	ErrLoggerNotConfigured            = errors.New(loggerMissingMessageConstant)
	ErrGitExecutorNotConfigured       = errors.New(gitExecutorMissingMessageConstant)
	ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)
	ErrGitHubClientNotConfigured      = errors.New(githubClientMissingMessageConstant)
	ErrRunnerNotConfigured            = errors.New(runnerMissingMessageConstant)
	ErrDiscovererNotConfigured        = errors.New(discovererMissingMessageConstant)
)

// GitExecutor exposes the subset of shell execution used by batch workers.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryDiscoverer enumerates the repositories a batch operation targets.
type RepositoryDiscoverer interface {
	DiscoverRepositories(scope workspace.Scope) ([]workspace.Repository, error)
}

// TransactionRecord is one audited batch outcome.
type TransactionRecord struct {
	Timestamp  time.Time               `json:"timestamp"`
	Operation  string                  `json:"operation"`
	Repository string                  `json:"repository"`
	Status     workspace.OutcomeStatus `json:"status"`
	Detail     string                  `json:"detail,omitempty"`
}

// Result aggregates the outcomes of one batch operation.
type Result struct {
	Outcomes map[string]workspace.Outcome
	Summary  workspace.OutcomeSummary
}

// Dependencies enumerates collaborators required by the batch service.
type Dependencies struct {
	Logger            *zap.Logger
	GitExecutor       GitExecutor
	RepositoryManager *gitrepo.RepositoryManager
	GitHubClient      *githubcli.Client
	Runner            *workspace.ConcurrentRunner
	Discoverer        RepositoryDiscoverer
	TransactionLog    *state.TransactionLog
	SyncStateStore    *state.Store
	Settings          workspace.Settings
}

// Service fans git maintenance operations out across workspace repositories.
type Service struct {
	logger            *zap.Logger
	gitExecutor       GitExecutor
	repositoryManager *gitrepo.RepositoryManager
	githubClient      *githubcli.Client
	runner            *workspace.ConcurrentRunner
	discoverer        RepositoryDiscoverer
	transactionLog    *state.TransactionLog
	syncStateStore    *state.Store
	settings          workspace.Settings
}

// NewService validates the dependencies and constructs a batch service. The
// transaction log and sync state store are optional; without them outcomes are
// simply not persisted.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if dependencies.RepositoryManager == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	if dependencies.GitHubClient == nil {
		return nil, ErrGitHubClientNotConfigured
	}
	if dependencies.Runner == nil {
		return nil, ErrRunnerNotConfigured
	}
	if dependencies.Discoverer == nil {
		return nil, ErrDiscovererNotConfigured
	}

	return &Service{
		logger:            dependencies.Logger,
		gitExecutor:       dependencies.GitExecutor,
		repositoryManager: dependencies.RepositoryManager,
		githubClient:      dependencies.GitHubClient,
		runner:            dependencies.Runner,
		discoverer:        dependencies.Discoverer,
		transactionLog:    dependencies.TransactionLog,
		syncStateStore:    dependencies.SyncStateStore,
		settings:          dependencies.Settings.Sanitize(),
	}, nil
}

// Status reports branch, worktree cleanliness, and ahead/behind counts per repository.
func (service *Service) Status(executionContext context.Context, scope workspace.Scope) (Result, error) {
	return service.runOperation(executionContext, scope, statusOperationNameConstant, service.statusWorker)
}

// Commit stages and commits every dirty repository with a unified message and a
// shared Change-ID trailer so related commits can be correlated across forks.
func (service *Service) Commit(executionContext context.Context, scope workspace.Scope, commitMessage string) (Result, string, error) {
	changeID := buildChangeID(commitMessage)
	fullMessage := fmt.Sprintf(changeIDTrailerTemplateConstant, commitMessage, changeID)

	result, runError := service.runOperation(executionContext, scope, commitOperationNameConstant,
		func(workerContext context.Context, repository workspace.Repository) workspace.Outcome {
			return service.commitWorker(workerContext, repository, fullMessage)
		})
	return result, changeID, runError
}

// Sync rebases every repository's development branch onto its upstream default
// branch, optionally publishing the result with a lease-protected force push.
func (service *Service) Sync(executionContext context.Context, scope workspace.Scope, pushAfterRebase bool) (Result, error) {
	return service.runOperation(executionContext, scope, syncOperationNameConstant,
		func(workerContext context.Context, repository workspace.Repository) workspace.Outcome {
			outcome := service.syncWorker(workerContext, repository, pushAfterRebase)
			service.persistSyncState(repository, outcome)
			return outcome
		})
}

// Push publishes every repository's current branch to origin.
func (service *Service) Push(executionContext context.Context, scope workspace.Scope, forceWithLease bool) (Result, error) {
	return service.runOperation(executionContext, scope, pushOperationNameConstant,
		func(workerContext context.Context, repository workspace.Repository) workspace.Outcome {
			return service.pushWorker(workerContext, repository, forceWithLease)
		})
}

// Checkout switches every repository to the named branch, optionally creating it.
func (service *Service) Checkout(executionContext context.Context, scope workspace.Scope, branchName string, createBranch bool) (Result, error) {
	return service.runOperation(executionContext, scope, checkoutOperationNameConstant,
		func(workerContext context.Context, repository workspace.Repository) workspace.Outcome {
			return service.checkoutWorker(workerContext, repository, branchName, createBranch)
		})
}

// CleanupBranches deletes the named remote branch from every plugin fork.
// The root project is never touched.
func (service *Service) CleanupBranches(executionContext context.Context, scope workspace.Scope, branchName string) (Result, error) {
	return service.runOperation(executionContext, scope, cleanupBranchesOperationNameConstant,
		func(workerContext context.Context, repository workspace.Repository) workspace.Outcome {
			return service.cleanupBranchesWorker(workerContext, repository, branchName)
		})
}

func (service *Service) runOperation(executionContext context.Context, scope workspace.Scope, operationName string, worker workspace.RepositoryWorker) (Result, error) {
	repositories, discoveryError := service.discoverer.DiscoverRepositories(scope)
	if discoveryError != nil {
		return Result{}, discoveryError
	}

	outcomes := service.runner.Run(executionContext, repositories, worker)
	service.recordOutcomes(operationName, outcomes)

	return Result{Outcomes: outcomes, Summary: workspace.Summarize(outcomes)}, nil
}

func (service *Service) recordOutcomes(operationName string, outcomes map[string]workspace.Outcome) {
	if service.transactionLog == nil {
		return
	}
	for repositoryName, outcome := range outcomes {
		record := TransactionRecord{
			Timestamp:  time.Now().UTC(),
			Operation:  operationName,
			Repository: repositoryName,
			Status:     outcome.Status,
			Detail:     outcome.Detail,
		}
		if appendError := service.transactionLog.Append(record); appendError != nil {
			service.logger.Warn(
				transactionRecordFailureWarning,
				zap.String(logFieldOperationConstant, operationName),
				zap.String(logFieldRepositoryConstant, repositoryName),
				zap.Error(appendError),
			)
		}
	}
}

// persistSyncState updates the durable per-repository sync record so a later
// run can tell when each fork last rebased cleanly.
func (service *Service) persistSyncState(repository workspace.Repository, outcome workspace.Outcome) {
	if service.syncStateStore == nil {
		return
	}

	syncState := service.syncStateStore.Read()
	syncState[repository.Name] = map[string]any{
		syncStateStatusKeyConstant:   string(outcome.Status),
		syncStateSyncedAtKeyConstant: time.Now().UTC().Format(time.RFC3339),
	}
	if writeError := service.syncStateStore.Write(syncState); writeError != nil {
		service.logger.Warn(
			syncStatePersistFailureWarning,
			zap.String(logFieldRepositoryConstant, repository.Name),
			zap.Error(writeError),
		)
	}
}

func (service *Service) statusWorker(executionContext context.Context, repository workspace.Repository) workspace.Outcome {
	currentBranch, branchError := service.repositoryManager.GetCurrentBranch(executionContext, repository.Path)
	if branchError != nil {
		return failedOutcome(branchError)
	}

	worktreeDirty, dirtyError := service.repositoryManager.CheckWorkspaceDirty(executionContext, repository.Path)
	if dirtyError != nil {
		return failedOutcome(dirtyError)
	}
	worktreeLabel := cleanWorktreeLabelConstant
	if worktreeDirty {
		worktreeLabel = dirtyWorktreeLabelConstant
	}

	// A fetch failure only staled the counts; the status line is still useful.
	_, _ = service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitFetchSubcommandConstant, originRemoteNameConstant, currentBranch},
		WorkingDirectory: repository.Path,
		AllowFailure:     true,
		Quiet:            true,
	})

	aheadCount, aheadError := service.countCommits(executionContext, repository.Path, fmt.Sprintf(aheadRangeTemplateConstant, currentBranch))
	if aheadError != nil {
		return failedOutcome(aheadError)
	}
	behindCount, behindError := service.countCommits(executionContext, repository.Path, fmt.Sprintf(behindRangeTemplateConstant, currentBranch))
	if behindError != nil {
		return failedOutcome(behindError)
	}

	return workspace.Outcome{
		Status: workspace.OutcomeStatusSucceeded,
		Detail: fmt.Sprintf(statusDetailTemplateConstant, currentBranch, worktreeLabel, aheadCount, behindCount),
	}
}

func (service *Service) countCommits(executionContext context.Context, repositoryPath string, revisionRange string) (string, error) {
	executionResult, executionError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRevListSubcommandConstant, gitCountFlagConstant, revisionRange},
		WorkingDirectory: repositoryPath,
		Quiet:            true,
	})
	if executionError != nil {
		return "", executionError
	}
	return executionResult.TrimmedOutput(), nil
}

func (service *Service) commitWorker(executionContext context.Context, repository workspace.Repository, fullMessage string) workspace.Outcome {
	worktreeDirty, dirtyError := service.repositoryManager.CheckWorkspaceDirty(executionContext, repository.Path)
	if dirtyError != nil {
		return failedOutcome(dirtyError)
	}
	if !worktreeDirty {
		return workspace.Outcome{Status: workspace.OutcomeStatusSkipped, Detail: cleanSkipDetailConstant}
	}

	if _, stageError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitAddSubcommandConstant, gitAllFlagConstant},
		WorkingDirectory: repository.Path,
	}); stageError != nil {
		return failedOutcome(stageError)
	}

	if _, commitError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCommitSubcommandConstant, gitMessageFlagConstant, fullMessage},
		WorkingDirectory: repository.Path,
	}); commitError != nil {
		return failedOutcome(commitError)
	}

	return workspace.Outcome{Status: workspace.OutcomeStatusSucceeded, Detail: committedDetailConstant}
}

func (service *Service) syncWorker(executionContext context.Context, repository workspace.Repository, pushAfterRebase bool) workspace.Outcome {
	developmentBranch := service.settings.DevelopmentBranch

	currentBranch, branchError := service.repositoryManager.GetCurrentBranch(executionContext, repository.Path)
	if branchError != nil {
		return failedOutcome(branchError)
	}
	if currentBranch != developmentBranch {
		return workspace.Outcome{
			Status: workspace.OutcomeStatusSkipped,
			Detail: fmt.Sprintf(wrongBranchSkipTemplateConstant, developmentBranch),
		}
	}

	for _, remoteName := range []string{upstreamRemoteNameConstant, originRemoteNameConstant} {
		if _, fetchError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
			Arguments:        []string{gitFetchSubcommandConstant, remoteName, gitPruneFlagConstant},
			WorkingDirectory: repository.Path,
			Quiet:            true,
		}); fetchError != nil {
			return failedOutcome(fetchError)
		}
	}

	defaultBranch := service.resolveUpstreamDefaultBranch(executionContext, repository.Path)
	upstreamBranch := fmt.Sprintf(upstreamBranchTemplateConstant, defaultBranch)

	if _, rebaseError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRebaseSubcommandConstant, upstreamBranch},
		WorkingDirectory: repository.Path,
	}); rebaseError != nil {
		return workspace.Outcome{
			Status: workspace.OutcomeStatusFailed,
			Detail: fmt.Sprintf(rebaseRemediationTemplateConstant, upstreamBranch, rebaseError, repository.Path),
		}
	}

	if pushAfterRebase {
		if _, pushError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
			Arguments:        []string{gitPushSubcommandConstant, gitForceWithLeaseFlagConstant, originRemoteNameConstant, developmentBranch},
			WorkingDirectory: repository.Path,
		}); pushError != nil {
			return failedOutcome(pushError)
		}
	}

	return workspace.Outcome{Status: workspace.OutcomeStatusSucceeded}
}

// resolveUpstreamDefaultBranch derives the rebase target from the upstream
// remote. An unreadable or unparsable remote falls back through the GitHub
// client's own "main" default.
func (service *Service) resolveUpstreamDefaultBranch(executionContext context.Context, repositoryPath string) string {
	upstreamURL, urlError := service.repositoryManager.GetRemoteURL(executionContext, repositoryPath, upstreamRemoteNameConstant)
	if urlError != nil {
		return service.githubClient.ResolveDefaultBranch(executionContext, "")
	}

	remote, parseError := gitrepo.ParseRemoteURL(upstreamURL)
	if parseError != nil {
		return service.githubClient.ResolveDefaultBranch(executionContext, "")
	}
	return service.githubClient.ResolveDefaultBranch(executionContext, remote.OwnerRepository())
}

func (service *Service) pushWorker(executionContext context.Context, repository workspace.Repository, forceWithLease bool) workspace.Outcome {
	currentBranch, branchError := service.repositoryManager.GetCurrentBranch(executionContext, repository.Path)
	if branchError != nil {
		return failedOutcome(branchError)
	}

	pushArguments := []string{gitPushSubcommandConstant}
	if forceWithLease {
		pushArguments = append(pushArguments, gitForceWithLeaseFlagConstant)
	}
	pushArguments = append(pushArguments, originRemoteNameConstant, currentBranch)

	if _, pushError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        pushArguments,
		WorkingDirectory: repository.Path,
	}); pushError != nil {
		return failedOutcome(pushError)
	}
	return workspace.Outcome{Status: workspace.OutcomeStatusSucceeded}
}

func (service *Service) checkoutWorker(executionContext context.Context, repository workspace.Repository, branchName string, createBranch bool) workspace.Outcome {
	checkoutArguments := []string{gitCheckoutSubcommandConstant}
	if createBranch {
		checkoutArguments = append(checkoutArguments, gitCreateBranchFlagConstant)
	}
	checkoutArguments = append(checkoutArguments, branchName)

	if _, checkoutError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        checkoutArguments,
		WorkingDirectory: repository.Path,
	}); checkoutError != nil {
		return failedOutcome(checkoutError)
	}
	return workspace.Outcome{Status: workspace.OutcomeStatusSucceeded}
}

func (service *Service) cleanupBranchesWorker(executionContext context.Context, repository workspace.Repository, branchName string) workspace.Outcome {
	if repository.Category == workspace.RepositoryCategoryRoot {
		return workspace.Outcome{Status: workspace.OutcomeStatusSkipped, Detail: rootProjectSkipDetailConstant}
	}

	branchPublished, lookupError := service.repositoryManager.RemoteBranchExists(executionContext, repository.Path, originRemoteNameConstant, branchName)
	if lookupError != nil {
		return failedOutcome(lookupError)
	}
	if !branchPublished {
		return workspace.Outcome{Status: workspace.OutcomeStatusSkipped, Detail: branchNotFoundDetailConstant}
	}

	if _, deleteError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitPushSubcommandConstant, originRemoteNameConstant, gitDeleteFlagConstant, branchName},
		WorkingDirectory: repository.Path,
	}); deleteError != nil {
		return failedOutcome(deleteError)
	}
	return workspace.Outcome{Status: workspace.OutcomeStatusSucceeded, Detail: branchDeletedDetailConstant}
}

// buildChangeID derives a short stable identifier from the wall clock and the
// commit message so commits produced by one batch share a trailer.
func buildChangeID(commitMessage string) string {
	digestInput := strconv.FormatInt(time.Now().UnixNano(), 10) + commitMessage
	digest := sha1.Sum([]byte(digestInput))
	hexDigest := fmt.Sprintf("%x", digest)
	return changeIDPrefixConstant + hexDigest[:changeIDHexLengthConstant]
}

func failedOutcome(failure error) workspace.Outcome {
	return workspace.Outcome{Status: workspace.OutcomeStatusFailed, Detail: strings.TrimSpace(failure.Error())}
}
