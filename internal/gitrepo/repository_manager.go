package gitrepo

import (
	"context"
	"errors"
	"strings"

	"github.com/temirov/plugman/internal/execshell"
)

const (
	gitExecutorMissingMessageConstant = "git executor not configured"

	gitRevParseSubcommandConstant     = "rev-parse"
	gitAbbreviatedRefFlagConstant     = "--abbrev-ref"
	gitHeadReferenceConstant          = "HEAD"
	gitStatusSubcommandConstant       = "status"
	gitStatusPorcelainFlagConstant    = "--porcelain"
	gitRemoteSubcommandConstant       = "remote"
	gitRemoteGetURLSubcommandConstant = "get-url"
	gitRemoteAddSubcommandConstant    = "add"
	gitLSRemoteSubcommandConstant     = "ls-remote"
	gitHeadsFlagConstant              = "--heads"
)

// GitExecutor exposes the subset of shell execution used by the repository manager.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// ErrGitExecutorNotConfigured indicates the repository manager was constructed without an executor.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)

// RepositoryManager answers branch, worktree, and remote queries for local repositories.
type RepositoryManager struct {
	executor GitExecutor
}

// NewRepositoryManager constructs a RepositoryManager backed by the provided executor.
func NewRepositoryManager(executor GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// GetCurrentBranch reports the checked-out branch name for the repository.
func (manager *RepositoryManager) GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, gitAbbreviatedRefFlagConstant, gitHeadReferenceConstant},
		WorkingDirectory: repositoryPath,
		Quiet:            true,
	})
	if executionError != nil {
		return "", executionError
	}
	return executionResult.TrimmedOutput(), nil
}

// CheckWorkspaceDirty reports whether the repository has any tracked or untracked change.
func (manager *RepositoryManager) CheckWorkspaceDirty(executionContext context.Context, repositoryPath string) (bool, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant},
		WorkingDirectory: repositoryPath,
		Quiet:            true,
	})
	if executionError != nil {
		return false, executionError
	}
	return len(executionResult.TrimmedOutput()) > 0, nil
}

// GetRemoteURL reports the configured URL for the named remote.
func (manager *RepositoryManager) GetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string) (string, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRemoteSubcommandConstant, gitRemoteGetURLSubcommandConstant, remoteName},
		WorkingDirectory: repositoryPath,
		Quiet:            true,
	})
	if executionError != nil {
		return "", executionError
	}
	return executionResult.TrimmedOutput(), nil
}

// AddRemote registers a remote, tolerating failures when the remote already exists.
func (manager *RepositoryManager) AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRemoteSubcommandConstant, gitRemoteAddSubcommandConstant, remoteName, remoteURL},
		WorkingDirectory: repositoryPath,
		AllowFailure:     true,
		Quiet:            true,
	})
	return executionError
}

// RemoteBranchExists reports whether the named branch is published on the remote.
func (manager *RepositoryManager) RemoteBranchExists(executionContext context.Context, repositoryPath string, remoteName string, branchName string) (bool, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitLSRemoteSubcommandConstant, gitHeadsFlagConstant, remoteName, branchReference(branchName)},
		WorkingDirectory: repositoryPath,
		AllowFailure:     true,
		Quiet:            true,
	})
	if executionError != nil {
		return false, executionError
	}
	if executionResult.ExitCode != 0 {
		return false, nil
	}
	return len(executionResult.TrimmedOutput()) > 0, nil
}

func branchReference(branchName string) string {
	const branchReferencePrefix = "refs/heads/"
	if strings.HasPrefix(branchName, branchReferencePrefix) {
		return branchName
	}
	return branchReferencePrefix + branchName
}
