package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/plugman/internal/execshell"
	"github.com/temirov/plugman/internal/githubcli"
	"github.com/temirov/plugman/internal/gitrepo"
	"github.com/temirov/plugman/internal/manifest"
	"github.com/temirov/plugman/internal/uvcli"
	"github.com/temirov/plugman/internal/workspace"
)

const (
	loggerMissingMessageConstant            = "logger not configured"
	gitExecutorMissingMessageConstant       = "git executor not configured"
	repositoryManagerMissingMessageConstant = "repository manager not configured"
	githubClientMissingMessageConstant      = "github client not configured"
	uvClientMissingMessageConstant          = "uv client not configured"
	projectRootMissingMessageConstant       = "project root not configured"
	notInstallableMessageConstant           = "plugin is not an installable python package"

	originRemoteNameConstant   = "origin"
	upstreamRemoteNameConstant = "upstream"

	cloneURLTemplateConstant           = "https://github.com/%s/%s.git"
	forkIdentifierTemplateConstant     = "%s/%s"
	upstreamBranchTemplateConstant     = "upstream/%s"
	setupPyFileNameConstant            = "setup.py"
	pluginsDirectoryPermissionConstant = 0o755

	gitCloneSubcommandConstant    = "clone"
	gitCheckoutSubcommandConstant = "checkout"
	gitFetchSubcommandConstant    = "fetch"
	gitPushSubcommandConstant     = "push"
	gitPullSubcommandConstant     = "pull"
	gitCreateBranchFlagConstant   = "-b"
	gitSetUpstreamFlagConstant    = "-u"
	gitShallowDepthFlagConstant   = "--depth=1"

	setupFailedLogMessageConstant          = "repository bootstrap failed"
	partialDirectoryRemovalWarningConstant = "could not remove partially bootstrapped directory"
	packageNameFallbackWarningConstant     = "could not read package name; falling back to folder name"
	dependencyMissingWarningConstant       = "dependency not found in project dependencies"
	workspaceMemberCleanupWarningConstant  = "could not clean up workspace members entry"
	invalidListURLWarningConstant          = "invalid repository url in plugin list; skipping"
	pullUpdatesFailedWarningConstant       = "could not pull updates for existing plugin"
	logFieldPluginConstant                 = "plugin"
	logFieldURLConstant                    = "url"
	logFieldPackageConstant                = "package"

	noRepositoriesPreparedMessageConstant = "no plugin repositories were successfully set up"
	dependencyAbortTemplateConstant       = "adding dependency for %q failed; fix the issue and run init again: %w"
	lockConflictTemplateConstant          = "dependency resolution failed; run diagnose to analyze conflicts: %w"
)

// Sentinel errors for missing service collaborators.
var (
	ErrLoggerNotConfigured            = errors.New(loggerMissingMessageConstant)
	ErrGitExecutorNotConfigured       = errors.New(gitExecutorMissingMessageConstant)
	ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)
	ErrGitHubClientNotConfigured      = errors.New(githubClientMissingMessageConstant)
	ErrUVClientNotConfigured          = errors.New(uvClientMissingMessageConstant)
	ErrProjectRootNotConfigured       = errors.New(projectRootMissingMessageConstant)
)

// ErrNotInstallable indicates a plugin directory carries neither a pyproject
// manifest nor a setup script, so no package manager could install it.
var ErrNotInstallable = errors.New(notInstallableMessageConstant)

// GitExecutor exposes the subset of shell execution used by the lifecycle service.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// SetupStatus reports the terminal state of one repository bootstrap.
type SetupStatus string

// Supported setup statuses.
const (
	SetupStatusSucceeded SetupStatus = SetupStatus("succeeded")
	SetupStatusExists    SetupStatus = SetupStatus("exists")
	SetupStatusFailed    SetupStatus = SetupStatus("failed")
)

// SetupResult reports the outcome of bootstrapping one plugin repository.
type SetupResult struct {
	Status    SetupStatus
	LocalPath string
}

// RemovalReport describes which removal steps completed and what remains manual.
type RemovalReport struct {
	DependencyRemoved bool
	ListEntryRemoved  bool
	DirectoryRemoved  bool
	ManualRemovalPath string
}

// DiagnosisReport carries the dependency resolver verdict.
type DiagnosisReport struct {
	Healthy bool
	Detail  string
}

// Dependencies enumerates collaborators required by the lifecycle service.
type Dependencies struct {
	Logger            *zap.Logger
	GitExecutor       GitExecutor
	RepositoryManager *gitrepo.RepositoryManager
	GitHubClient      *githubcli.Client
	UVClient          *uvcli.Client
	ProjectRoot       string
	Settings          workspace.Settings
}

// Service orchestrates plugin bootstrap, dependency registration, and removal.
type Service struct {
	logger            *zap.Logger
	gitExecutor       GitExecutor
	repositoryManager *gitrepo.RepositoryManager
	githubClient      *githubcli.Client
	uvClient          *uvcli.Client
	projectRoot       string
	settings          workspace.Settings
	pluginsDirectory  string
	pluginList        *PluginList
}

// NewService validates the dependencies and constructs a lifecycle service.
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
	if dependencies.UVClient == nil {
		return nil, ErrUVClientNotConfigured
	}
	if len(strings.TrimSpace(dependencies.ProjectRoot)) == 0 {
		return nil, ErrProjectRootNotConfigured
	}

	settings := dependencies.Settings.Sanitize()
	return &Service{
		logger:            dependencies.Logger,
		gitExecutor:       dependencies.GitExecutor,
		repositoryManager: dependencies.RepositoryManager,
		githubClient:      dependencies.GitHubClient,
		uvClient:          dependencies.UVClient,
		projectRoot:       dependencies.ProjectRoot,
		settings:          settings,
		pluginsDirectory:  filepath.Join(dependencies.ProjectRoot, settings.PluginsSourceDirectory),
		pluginList:        NewPluginList(filepath.Join(dependencies.ProjectRoot, settings.PluginsListFile)),
	}, nil
}

// PluginListFile exposes the managed plugin list.
func (service *Service) PluginListFile() *PluginList {
	return service.pluginList
}

// SetupRepository forks, clones, and branch-bootstraps one plugin repository.
// The call is idempotent: a repository that already exists locally is reported
// as SetupStatusExists without touching the remote side. Any failure after the
// clone started removes the partially created directory so a retry starts clean.
func (service *Service) SetupRepository(executionContext context.Context, upstreamURL string) (SetupResult, error) {
	remote, parseError := gitrepo.ParseRemoteURL(upstreamURL)
	if parseError != nil {
		return SetupResult{Status: SetupStatusFailed}, parseError
	}

	pluginName := remote.Repository
	localPath := filepath.Join(service.pluginsDirectory, pluginName)
	if _, statError := os.Stat(localPath); statError == nil {
		return SetupResult{Status: SetupStatusExists, LocalPath: localPath}, nil
	}

	bootstrapError := service.bootstrapRepository(executionContext, remote, upstreamURL, pluginName, localPath)
	if bootstrapError != nil {
		service.logger.Error(
			setupFailedLogMessageConstant,
			zap.String(logFieldPluginConstant, pluginName),
			zap.Error(bootstrapError),
		)
		if removeError := os.RemoveAll(localPath); removeError != nil {
			service.logger.Warn(
				partialDirectoryRemovalWarningConstant,
				zap.String(logFieldPluginConstant, pluginName),
				zap.Error(removeError),
			)
		}
		return SetupResult{Status: SetupStatusFailed}, bootstrapError
	}

	return SetupResult{Status: SetupStatusSucceeded, LocalPath: localPath}, nil
}

func (service *Service) bootstrapRepository(executionContext context.Context, remote gitrepo.RemoteURL, upstreamURL string, pluginName string, localPath string) error {
	forkIdentifier := fmt.Sprintf(forkIdentifierTemplateConstant, service.settings.GitHubOrganization, pluginName)

	forkExists, existenceError := service.githubClient.RepositoryExists(executionContext, forkIdentifier)
	if existenceError != nil {
		return existenceError
	}
	if !forkExists {
		if forkError := service.githubClient.ForkRepository(executionContext, remote.OwnerRepository(), service.settings.GitHubOrganization); forkError != nil {
			return forkError
		}
	}

	if directoryError := os.MkdirAll(service.pluginsDirectory, pluginsDirectoryPermissionConstant); directoryError != nil {
		return directoryError
	}

	cloneURL := fmt.Sprintf(cloneURLTemplateConstant, service.settings.GitHubOrganization, pluginName)
	if _, cloneError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCloneSubcommandConstant, cloneURL, localPath},
		WorkingDirectory: service.projectRoot,
	}); cloneError != nil {
		return cloneError
	}

	if remoteError := service.repositoryManager.AddRemote(executionContext, localPath, upstreamRemoteNameConstant, upstreamURL); remoteError != nil {
		return remoteError
	}

	return service.bootstrapDevelopmentBranch(executionContext, remote, localPath)
}

// bootstrapDevelopmentBranch checks out the development branch, creating it from
// the upstream default branch and publishing it when the fork does not have one yet.
func (service *Service) bootstrapDevelopmentBranch(executionContext context.Context, remote gitrepo.RemoteURL, localPath string) error {
	developmentBranch := service.settings.DevelopmentBranch

	branchPublished, lookupError := service.repositoryManager.RemoteBranchExists(executionContext, localPath, originRemoteNameConstant, developmentBranch)
	if lookupError != nil {
		return lookupError
	}

	if branchPublished {
		_, checkoutError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
			Arguments:        []string{gitCheckoutSubcommandConstant, developmentBranch},
			WorkingDirectory: localPath,
		})
		return checkoutError
	}

	defaultBranch := service.githubClient.ResolveDefaultBranch(executionContext, remote.OwnerRepository())
	if _, fetchError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitFetchSubcommandConstant, upstreamRemoteNameConstant, defaultBranch},
		WorkingDirectory: localPath,
		Quiet:            true,
	}); fetchError != nil {
		return fetchError
	}
	if _, branchError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{
			gitCheckoutSubcommandConstant,
			gitCreateBranchFlagConstant,
			developmentBranch,
			fmt.Sprintf(upstreamBranchTemplateConstant, defaultBranch),
		},
		WorkingDirectory: localPath,
	}); branchError != nil {
		return branchError
	}
	_, pushError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitPushSubcommandConstant, gitSetUpstreamFlagConstant, originRemoteNameConstant, developmentBranch},
		WorkingDirectory: localPath,
	})
	return pushError
}

// RegisterDependency installs a cloned plugin as an editable dependency of the
// root project after checking the plugin actually carries packaging metadata.
func (service *Service) RegisterDependency(executionContext context.Context, localPath string) error {
	manifestPath := filepath.Join(localPath, manifest.PyProjectFileName)
	setupScriptPath := filepath.Join(localPath, setupPyFileNameConstant)
	if !fileExists(manifestPath) && !fileExists(setupScriptPath) {
		return fmt.Errorf("%w: %s declares neither %s nor %s; add packaging metadata to the plugin repository first",
			ErrNotInstallable, filepath.Base(localPath), manifest.PyProjectFileName, setupPyFileNameConstant)
	}

	relativePath, relativeError := filepath.Rel(service.projectRoot, localPath)
	if relativeError != nil {
		return relativeError
	}
	return service.uvClient.AddEditable(executionContext, filepath.ToSlash(relativePath))
}

// RemoveDependency removes a plugin's dependency entry and its workspace
// membership. The two steps are independent: a dependency that was already
// absent still gets its workspace member entry cleaned up, and a workspace
// cleanup failure is reported as a warning rather than unwinding the removal.
func (service *Service) RemoveDependency(executionContext context.Context, folderName string) error {
	packageName := service.resolvePackageName(folderName)

	removed, removeError := service.uvClient.Remove(executionContext, packageName)
	if removeError != nil {
		return removeError
	}
	if !removed {
		service.logger.Warn(
			dependencyMissingWarningConstant,
			zap.String(logFieldPackageConstant, packageName),
		)
	}

	memberEntry := path.Join(service.settings.PluginsSourceDirectory, folderName)
	rootManifestPath := filepath.Join(service.projectRoot, manifest.PyProjectFileName)
	if _, memberError := manifest.RemoveWorkspaceMemberLine(rootManifestPath, memberEntry); memberError != nil {
		service.logger.Warn(
			workspaceMemberCleanupWarningConstant,
			zap.String(logFieldPluginConstant, folderName),
			zap.Error(memberError),
		)
	}
	return nil
}

// resolvePackageName reads the plugin's declared package name, falling back to
// the normalized folder name when the manifest is missing or unreadable.
func (service *Service) resolvePackageName(folderName string) string {
	pluginManifestPath := filepath.Join(service.pluginsDirectory, folderName, manifest.PyProjectFileName)
	pluginManifest, loadError := manifest.LoadPyProject(pluginManifestPath)
	if loadError != nil {
		if !os.IsNotExist(loadError) {
			service.logger.Warn(
				packageNameFallbackWarningConstant,
				zap.String(logFieldPluginConstant, folderName),
				zap.Error(loadError),
			)
		}
		return manifest.NormalizePackageName(folderName)
	}

	declaredName := pluginManifest.PackageName()
	if len(declaredName) == 0 {
		return manifest.NormalizePackageName(folderName)
	}
	return manifest.NormalizePackageName(declaredName)
}

// InitializeWorkspace builds the whole project from the plugin list: bootstrap
// every repository concurrently, register each prepared plugin sequentially,
// and resolve the lock file. Dependency registration aborts on the first
// failure so a broken plugin never leaves the manifest half-updated.
func (service *Service) InitializeWorkspace(executionContext context.Context, installEnvironment bool) error {
	if _, venvError := service.uvClient.EnsureVirtualEnv(executionContext); venvError != nil {
		return venvError
	}

	repositoryURLs, listError := service.pluginList.ReadURLs()
	if listError != nil {
		return listError
	}

	preparedPaths := service.setupRepositoriesConcurrently(executionContext, repositoryURLs)
	if len(preparedPaths) == 0 {
		return errors.New(noRepositoriesPreparedMessageConstant)
	}

	for _, preparedPath := range preparedPaths {
		if registrationError := service.RegisterDependency(executionContext, preparedPath); registrationError != nil {
			return fmt.Errorf(dependencyAbortTemplateConstant, filepath.Base(preparedPath), registrationError)
		}
	}

	if _, lockError := service.uvClient.Lock(executionContext, false); lockError != nil {
		return fmt.Errorf(lockConflictTemplateConstant, lockError)
	}

	if installEnvironment {
		return service.uvClient.Sync(executionContext)
	}
	return nil
}

// setupRepositoriesConcurrently bootstraps every listed repository under the
// configured worker ceiling and returns the local paths that are usable,
// preserving the input order. Failed bootstraps are logged inside
// SetupRepository and simply omitted.
func (service *Service) setupRepositoriesConcurrently(executionContext context.Context, repositoryURLs []string) []string {
	preparedPaths := make([]string, len(repositoryURLs))

	var workerGroup errgroup.Group
	workerGroup.SetLimit(service.settings.MaximumWorkers)
	var resultMutex sync.Mutex

	for urlIndex, repositoryURL := range repositoryURLs {
		urlIndex, repositoryURL := urlIndex, repositoryURL
		workerGroup.Go(func() error {
			setupResult, _ := service.SetupRepository(executionContext, repositoryURL)
			if setupResult.Status == SetupStatusFailed {
				return nil
			}
			resultMutex.Lock()
			preparedPaths[urlIndex] = setupResult.LocalPath
			resultMutex.Unlock()
			return nil
		})
	}
	_ = workerGroup.Wait()

	orderedPaths := make([]string, 0, len(repositoryURLs))
	for _, preparedPath := range preparedPaths {
		if len(preparedPath) > 0 {
			orderedPaths = append(orderedPaths, preparedPath)
		}
	}
	return orderedPaths
}

// AddPlugin bootstraps one new plugin, registers its dependency, and records
// its URL in the plugin list.
func (service *Service) AddPlugin(executionContext context.Context, upstreamURL string) (SetupResult, error) {
	setupResult, setupError := service.SetupRepository(executionContext, upstreamURL)
	if setupError != nil {
		return setupResult, setupError
	}

	if registrationError := service.RegisterDependency(executionContext, setupResult.LocalPath); registrationError != nil {
		return setupResult, registrationError
	}

	if _, listError := service.pluginList.AddURL(upstreamURL); listError != nil {
		return setupResult, listError
	}
	return setupResult, nil
}

// RemovePlugin removes a plugin's dependency, list entry, and optionally its
// source directory. Without force the directory stays on disk and the report
// names the path the operator should delete manually.
func (service *Service) RemovePlugin(executionContext context.Context, folderName string, forceDirectoryRemoval bool) (RemovalReport, error) {
	report := RemovalReport{}

	if _, venvError := service.uvClient.EnsureVirtualEnv(executionContext); venvError != nil {
		return report, venvError
	}

	if removalError := service.RemoveDependency(executionContext, folderName); removalError != nil {
		return report, removalError
	}
	report.DependencyRemoved = true

	entryRemoved, listError := service.pluginList.RemoveByName(folderName)
	if listError != nil {
		return report, listError
	}
	report.ListEntryRemoved = entryRemoved

	pluginPath := filepath.Join(service.pluginsDirectory, folderName)
	if _, statError := os.Stat(pluginPath); statError != nil {
		return report, nil
	}

	if forceDirectoryRemoval {
		if removeError := os.RemoveAll(pluginPath); removeError != nil {
			return report, removeError
		}
		report.DirectoryRemoved = true
		return report, nil
	}

	relativePath, relativeError := filepath.Rel(service.projectRoot, pluginPath)
	if relativeError != nil {
		relativePath = pluginPath
	}
	report.ManualRemovalPath = filepath.ToSlash(relativePath)
	return report, nil
}

// ProductionSetup clones or updates every listed fork at the development branch
// and synchronizes the environment from the lock file. Clones are shallow; a
// production host never rebases history.
func (service *Service) ProductionSetup(executionContext context.Context) error {
	if _, venvError := service.uvClient.EnsureVirtualEnv(executionContext); venvError != nil {
		return venvError
	}

	repositoryURLs, listError := service.pluginList.ReadURLs()
	if listError != nil {
		return listError
	}

	if directoryError := os.MkdirAll(service.pluginsDirectory, pluginsDirectoryPermissionConstant); directoryError != nil {
		return directoryError
	}

	for _, repositoryURL := range repositoryURLs {
		remote, parseError := gitrepo.ParseRemoteURL(repositoryURL)
		if parseError != nil {
			service.logger.Warn(
				invalidListURLWarningConstant,
				zap.String(logFieldURLConstant, repositoryURL),
			)
			continue
		}
		service.cloneOrUpdateFork(executionContext, remote.Repository)
	}

	return service.uvClient.Sync(executionContext)
}

func (service *Service) cloneOrUpdateFork(executionContext context.Context, pluginName string) {
	localPath := filepath.Join(service.pluginsDirectory, pluginName)
	developmentBranch := service.settings.DevelopmentBranch

	if _, statError := os.Stat(localPath); statError == nil {
		if _, pullError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
			Arguments:        []string{gitPullSubcommandConstant, originRemoteNameConstant, developmentBranch},
			WorkingDirectory: localPath,
		}); pullError != nil {
			service.logger.Warn(
				pullUpdatesFailedWarningConstant,
				zap.String(logFieldPluginConstant, pluginName),
				zap.Error(pullError),
			)
		}
		return
	}

	cloneURL := fmt.Sprintf(cloneURLTemplateConstant, service.settings.GitHubOrganization, pluginName)
	if _, cloneError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{
			gitCloneSubcommandConstant,
			gitShallowDepthFlagConstant,
			gitCreateBranchFlagConstant,
			developmentBranch,
			cloneURL,
			localPath,
		},
		WorkingDirectory: service.projectRoot,
	}); cloneError != nil {
		service.logger.Error(
			setupFailedLogMessageConstant,
			zap.String(logFieldPluginConstant, pluginName),
			zap.Error(cloneError),
		)
	}
}

// Diagnose runs the dependency resolver without failing the command and
// reports the conflict output when resolution is impossible.
func (service *Service) Diagnose(executionContext context.Context) (DiagnosisReport, error) {
	if _, venvError := service.uvClient.EnsureVirtualEnv(executionContext); venvError != nil {
		return DiagnosisReport{}, venvError
	}

	lockResult, lockError := service.uvClient.Lock(executionContext, true)
	if lockError != nil {
		return DiagnosisReport{}, lockError
	}
	if lockResult.ExitCode == 0 {
		return DiagnosisReport{Healthy: true}, nil
	}

	conflictDetail := strings.TrimSpace(lockResult.StandardError)
	if len(conflictDetail) == 0 {
		conflictDetail = strings.TrimSpace(lockResult.StandardOutput)
	}
	return DiagnosisReport{Healthy: false, Detail: conflictDetail}, nil
}

func fileExists(candidatePath string) bool {
	_, statError := os.Stat(candidatePath)
	return statError == nil
}
