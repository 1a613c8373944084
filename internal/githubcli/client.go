package githubcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/plugman/internal/execshell"
)

const (
	repoSubcommandConstant           = "repo"
	viewSubcommandConstant           = "view"
	forkSubcommandConstant           = "fork"
	jsonFlagConstant                 = "--json"
	cloneFlagConstant                = "--clone=false"
	organizationFlagTemplateConstant = "--org=%s"

	defaultBranchJSONFieldConstant       = "defaultBranchRef"
	fallbackDefaultBranchNameConstant    = "main"
	repositoryFieldNameConstant          = "repository"
	organizationFieldNameConstant        = "organization"
	requiredValueMessageConstant         = "value required"
	executorNotConfiguredMessageConstant = "github cli executor not configured"

	operationErrorTemplateConstant        = "%s operation failed: %s"
	responseDecodingErrorTemplateConstant = "%s response decoding failed: %s"
	invalidInputErrorTemplateConstant     = "%s: %s"

	defaultBranchFallbackWarningConstant = "could not resolve default branch; falling back"
	logFieldRepositoryConstant           = "repository"
	logFieldFallbackBranchConstant       = "fallback_branch"

	repositoryExistsOperationNameConstant = OperationName("CheckRepositoryExists")
	forkRepositoryOperationNameConstant   = OperationName("ForkRepository")
)

// OperationName describes a named GitHub CLI workflow supported by the client.
type OperationName string

// GitHubCommandExecutor is the minimal interface required from execshell.ShellExecutor.
type GitHubCommandExecutor interface {
	ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// ErrExecutorNotConfigured indicates the client was constructed without an executor.
var ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps execution issues for GitHub CLI operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// Client coordinates GitHub CLI invocations through execshell.
type Client struct {
	executor GitHubCommandExecutor
	logger   *zap.Logger
}

// NewClient constructs a GitHub CLI client.
func NewClient(executor GitHubCommandExecutor, logger *zap.Logger) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{executor: executor, logger: logger}, nil
}

// RepositoryExists reports whether the repository is visible to the authenticated user.
func (client *Client) RepositoryExists(executionContext context.Context, ownerRepository string) (bool, error) {
	trimmedRepository := strings.TrimSpace(ownerRepository)
	if len(trimmedRepository) == 0 {
		return false, InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}

	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{
		Arguments:    []string{repoSubcommandConstant, viewSubcommandConstant, trimmedRepository},
		AllowFailure: true,
		Quiet:        true,
	})
	if executionError != nil {
		return false, OperationError{Operation: repositoryExistsOperationNameConstant, Cause: executionError}
	}
	return executionResult.ExitCode == 0, nil
}

// ForkRepository creates a fork of the upstream repository under the provided organization.
func (client *Client) ForkRepository(executionContext context.Context, upstreamOwnerRepository string, organizationName string) error {
	trimmedRepository := strings.TrimSpace(upstreamOwnerRepository)
	if len(trimmedRepository) == 0 {
		return InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedOrganization := strings.TrimSpace(organizationName)
	if len(trimmedOrganization) == 0 {
		return InvalidInputError{FieldName: organizationFieldNameConstant, Message: requiredValueMessageConstant}
	}

	_, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{
		Arguments: []string{
			repoSubcommandConstant,
			forkSubcommandConstant,
			trimmedRepository,
			fmt.Sprintf(organizationFlagTemplateConstant, trimmedOrganization),
			cloneFlagConstant,
		},
	})
	if executionError != nil {
		return OperationError{Operation: forkRepositoryOperationNameConstant, Cause: executionError}
	}
	return nil
}

// ResolveDefaultBranch reports the upstream default branch, falling back to "main"
// on any failure. The fallback only guides sync convenience, so lookup errors are
// logged as warnings instead of propagating.
func (client *Client) ResolveDefaultBranch(executionContext context.Context, ownerRepository string) string {
	trimmedRepository := strings.TrimSpace(ownerRepository)
	if len(trimmedRepository) == 0 {
		return fallbackDefaultBranchNameConstant
	}

	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{
		Arguments:    []string{repoSubcommandConstant, viewSubcommandConstant, trimmedRepository, jsonFlagConstant, defaultBranchJSONFieldConstant},
		AllowFailure: true,
		Quiet:        true,
	})
	if executionError != nil || executionResult.ExitCode != 0 {
		client.logDefaultBranchFallback(trimmedRepository)
		return fallbackDefaultBranchNameConstant
	}

	var response struct {
		DefaultBranchRef struct {
			Name string `json:"name"`
		} `json:"defaultBranchRef"`
	}
	decodeError := json.Unmarshal([]byte(executionResult.StandardOutput), &response)
	if decodeError != nil || len(strings.TrimSpace(response.DefaultBranchRef.Name)) == 0 {
		client.logDefaultBranchFallback(trimmedRepository)
		return fallbackDefaultBranchNameConstant
	}

	return strings.TrimSpace(response.DefaultBranchRef.Name)
}

func (client *Client) logDefaultBranchFallback(repositoryIdentifier string) {
	client.logger.Warn(
		defaultBranchFallbackWarningConstant,
		zap.String(logFieldRepositoryConstant, repositoryIdentifier),
		zap.String(logFieldFallbackBranchConstant, fallbackDefaultBranchNameConstant),
	)
}
