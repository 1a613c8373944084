package lifecycle_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/plugman/internal/execshell"
	"github.com/temirov/plugman/internal/githubcli"
	"github.com/temirov/plugman/internal/gitrepo"
	"github.com/temirov/plugman/internal/lifecycle"
	"github.com/temirov/plugman/internal/uvcli"
	"github.com/temirov/plugman/internal/workspace"
)

const (
	testOrganizationConstant = "acme"
	upstreamOwnerConstant    = "upstream-owner"
	testPluginNameConstant   = "foo"
	upstreamURLConstant      = "https://github.com/upstream-owner/foo.git"
	cloneFailureMessage      = "clone rejected"
)

type scriptedResponse struct {
	result execshell.ExecutionResult
	err    error
}

// scriptedExecutor satisfies the git, gh, and uv executor interfaces. Responses
// are keyed by "<tool> <arguments>"; unscripted invocations succeed silently.
type scriptedExecutor struct {
	responses map[string]scriptedResponse
	hook      func(commandKey string)
	recorded  []string
}

func commandKey(commandName execshell.CommandName, details execshell.CommandDetails) string {
	return string(commandName) + " " + strings.Join(details.Arguments, " ")
}

func (executor *scriptedExecutor) respond(commandName execshell.CommandName, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	invocationKey := commandKey(commandName, details)
	executor.recorded = append(executor.recorded, invocationKey)
	if executor.hook != nil {
		executor.hook(invocationKey)
	}
	if response, scripted := executor.responses[invocationKey]; scripted {
		return response.result, response.err
	}
	return execshell.ExecutionResult{}, nil
}

func (executor *scriptedExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.respond(execshell.CommandGit, details)
}

func (executor *scriptedExecutor) ExecuteGitHubCLI(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.respond(execshell.CommandGitHub, details)
}

func (executor *scriptedExecutor) ExecuteUV(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.respond(execshell.CommandUV, details)
}

func buildService(testInstance *testing.T, projectRoot string, executor *scriptedExecutor) *lifecycle.Service {
	testInstance.Helper()

	repositoryManager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)
	githubClient, githubError := githubcli.NewClient(executor, zap.NewNop())
	require.NoError(testInstance, githubError)
	uvClient, uvError := uvcli.NewClient(executor, projectRoot)
	require.NoError(testInstance, uvError)

	service, serviceError := lifecycle.NewService(lifecycle.Dependencies{
		Logger:            zap.NewNop(),
		GitExecutor:       executor,
		RepositoryManager: repositoryManager,
		GitHubClient:      githubClient,
		UVClient:          uvClient,
		ProjectRoot:       projectRoot,
		Settings:          workspace.Settings{GitHubOrganization: testOrganizationConstant},
	})
	require.NoError(testInstance, serviceError)
	return service
}

func TestSetupRepositoryBootstrapsNewFork(testInstance *testing.T) {
	projectRoot := testInstance.TempDir()
	localPath := filepath.Join(projectRoot, "plugins", testPluginNameConstant)

	executor := &scriptedExecutor{
		responses: map[string]scriptedResponse{
			"gh repo view acme/foo": {result: execshell.ExecutionResult{ExitCode: 1}},
			"gh repo view upstream-owner/foo --json defaultBranchRef": {
				result: execshell.ExecutionResult{StandardOutput: `{"defaultBranchRef":{"name":"master"}}`},
			},
		},
	}
	service := buildService(testInstance, projectRoot, executor)

	setupResult, setupError := service.SetupRepository(context.Background(), upstreamURLConstant)
	require.NoError(testInstance, setupError)
	require.Equal(testInstance, lifecycle.SetupStatusSucceeded, setupResult.Status)
	require.Equal(testInstance, localPath, setupResult.LocalPath)

	require.Equal(testInstance, []string{
		"gh repo view acme/foo",
		"gh repo fork upstream-owner/foo --org=acme --clone=false",
		"git clone https://github.com/acme/foo.git " + localPath,
		"git remote add upstream " + upstreamURLConstant,
		"git ls-remote --heads origin refs/heads/dev",
		"gh repo view upstream-owner/foo --json defaultBranchRef",
		"git fetch upstream master",
		"git checkout -b dev upstream/master",
		"git push -u origin dev",
	}, executor.recorded)
}

func TestSetupRepositoryChecksOutPublishedDevBranch(testInstance *testing.T) {
	projectRoot := testInstance.TempDir()

	executor := &scriptedExecutor{
		responses: map[string]scriptedResponse{
			"gh repo view acme/foo": {result: execshell.ExecutionResult{ExitCode: 0}},
			"git ls-remote --heads origin refs/heads/dev": {
				result: execshell.ExecutionResult{StandardOutput: "deadbeef\trefs/heads/dev\n"},
			},
		},
	}
	service := buildService(testInstance, projectRoot, executor)

	setupResult, setupError := service.SetupRepository(context.Background(), upstreamURLConstant)
	require.NoError(testInstance, setupError)
	require.Equal(testInstance, lifecycle.SetupStatusSucceeded, setupResult.Status)

	require.Contains(testInstance, executor.recorded, "git checkout dev")
	require.NotContains(testInstance, executor.recorded, "gh repo fork upstream-owner/foo --org=acme --clone=false")
}

func TestSetupRepositoryIsIdempotent(testInstance *testing.T) {
	projectRoot := testInstance.TempDir()
	localPath := filepath.Join(projectRoot, "plugins", testPluginNameConstant)
	require.NoError(testInstance, os.MkdirAll(localPath, 0o755))

	executor := &scriptedExecutor{}
	service := buildService(testInstance, projectRoot, executor)

	setupResult, setupError := service.SetupRepository(context.Background(), upstreamURLConstant)
	require.NoError(testInstance, setupError)
	require.Equal(testInstance, lifecycle.SetupStatusExists, setupResult.Status)
	require.Equal(testInstance, localPath, setupResult.LocalPath)
	require.Empty(testInstance, executor.recorded)
}

func TestSetupRepositoryRemovesPartialDirectoryOnFailure(testInstance *testing.T) {
	projectRoot := testInstance.TempDir()
	localPath := filepath.Join(projectRoot, "plugins", testPluginNameConstant)
	cloneKey := "git clone https://github.com/acme/foo.git " + localPath

	executor := &scriptedExecutor{
		responses: map[string]scriptedResponse{
			"gh repo view acme/foo":                       {result: execshell.ExecutionResult{ExitCode: 0}},
			"git ls-remote --heads origin refs/heads/dev": {err: errors.New(cloneFailureMessage)},
		},
	}
	executor.hook = func(invocationKey string) {
		if invocationKey == cloneKey {
			require.NoError(testInstance, os.MkdirAll(localPath, 0o755))
		}
	}
	service := buildService(testInstance, projectRoot, executor)

	setupResult, setupError := service.SetupRepository(context.Background(), upstreamURLConstant)
	require.Error(testInstance, setupError)
	require.Equal(testInstance, lifecycle.SetupStatusFailed, setupResult.Status)

	_, statError := os.Stat(localPath)
	require.True(testInstance, os.IsNotExist(statError))
}

func TestSetupRepositoryRejectsUnparsableURL(testInstance *testing.T) {
	executor := &scriptedExecutor{}
	service := buildService(testInstance, testInstance.TempDir(), executor)

	setupResult, setupError := service.SetupRepository(context.Background(), "not a url")
	require.Error(testInstance, setupError)
	require.Equal(testInstance, lifecycle.SetupStatusFailed, setupResult.Status)
	require.Empty(testInstance, executor.recorded)
}

func TestRegisterDependencyRequiresPackagingMetadata(testInstance *testing.T) {
	projectRoot := testInstance.TempDir()
	pluginPath := filepath.Join(projectRoot, "plugins", testPluginNameConstant)
	require.NoError(testInstance, os.MkdirAll(pluginPath, 0o755))

	executor := &scriptedExecutor{}
	service := buildService(testInstance, projectRoot, executor)

	registrationError := service.RegisterDependency(context.Background(), pluginPath)
	require.Error(testInstance, registrationError)
	require.ErrorIs(testInstance, registrationError, lifecycle.ErrNotInstallable)
	require.Empty(testInstance, executor.recorded)
}

func TestRegisterDependencyAddsEditablePath(testInstance *testing.T) {
	projectRoot := testInstance.TempDir()
	pluginPath := filepath.Join(projectRoot, "plugins", testPluginNameConstant)
	require.NoError(testInstance, os.MkdirAll(pluginPath, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(pluginPath, "pyproject.toml"), []byte("[project]\nname = \"plugin_foo\"\n"), 0o644))

	executor := &scriptedExecutor{}
	service := buildService(testInstance, projectRoot, executor)

	require.NoError(testInstance, service.RegisterDependency(context.Background(), pluginPath))
	require.Equal(testInstance, []string{"uv add plugins/foo --editable"}, executor.recorded)
}

func writeRemovalFixture(testInstance *testing.T) string {
	testInstance.Helper()

	projectRoot := testInstance.TempDir()
	rootManifestContent := "[tool.uv.workspace]\nmembers = [\n    \"plugins/foo\",\n    \"plugins/bar\",\n]\n"
	require.NoError(testInstance, os.WriteFile(filepath.Join(projectRoot, "pyproject.toml"), []byte(rootManifestContent), 0o644))

	pluginPath := filepath.Join(projectRoot, "plugins", testPluginNameConstant)
	require.NoError(testInstance, os.MkdirAll(pluginPath, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(pluginPath, "pyproject.toml"), []byte("[project]\nname = \"plugin_foo\"\n"), 0o644))
	return projectRoot
}

func TestRemoveDependencyScenarios(testInstance *testing.T) {
	testCases := []struct {
		name           string
		removeResponse scriptedResponse
		expectedError  bool
	}{
		{
			name:           "removes_declared_dependency",
			removeResponse: scriptedResponse{result: execshell.ExecutionResult{ExitCode: 0}},
		},
		{
			name: "tolerates_missing_dependency",
			removeResponse: scriptedResponse{
				result: execshell.ExecutionResult{ExitCode: 1, StandardError: "warning: `plugin-foo` not found in dependencies"},
			},
		},
		{
			name: "reports_other_removal_failures",
			removeResponse: scriptedResponse{
				result: execshell.ExecutionResult{ExitCode: 1, StandardError: "unrelated failure"},
			},
			expectedError: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			projectRoot := writeRemovalFixture(subTest)
			executor := &scriptedExecutor{
				responses: map[string]scriptedResponse{
					"uv remove plugin-foo": testCase.removeResponse,
				},
			}
			service := buildService(subTest, projectRoot, executor)

			removalError := service.RemoveDependency(context.Background(), testPluginNameConstant)
			if testCase.expectedError {
				require.Error(subTest, removalError)
				return
			}
			require.NoError(subTest, removalError)
			require.Equal(subTest, []string{"uv remove plugin-foo"}, executor.recorded)

			rootManifestContent, readError := os.ReadFile(filepath.Join(projectRoot, "pyproject.toml"))
			require.NoError(subTest, readError)
			require.NotContains(subTest, string(rootManifestContent), "plugins/foo")
			require.Contains(subTest, string(rootManifestContent), "plugins/bar")
		})
	}
}

func TestInitializeWorkspaceRegistersPreparedPlugins(testInstance *testing.T) {
	projectRoot := testInstance.TempDir()
	pluginPath := filepath.Join(projectRoot, "plugins", testPluginNameConstant)
	require.NoError(testInstance, os.MkdirAll(pluginPath, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(pluginPath, "pyproject.toml"), []byte("[project]\nname = \"plugin_foo\"\n"), 0o644))
	require.NoError(testInstance, os.WriteFile(filepath.Join(projectRoot, "plugins.txt"), []byte(upstreamURLConstant+"\n"), 0o644))

	executor := &scriptedExecutor{}
	service := buildService(testInstance, projectRoot, executor)

	require.NoError(testInstance, service.InitializeWorkspace(context.Background(), false))
	require.Equal(testInstance, []string{
		"uv venv",
		"uv add plugins/foo --editable",
		"uv lock",
	}, executor.recorded)
}

func TestInitializeWorkspaceSurfacesMissingPluginList(testInstance *testing.T) {
	executor := &scriptedExecutor{}
	service := buildService(testInstance, testInstance.TempDir(), executor)

	initializationError := service.InitializeWorkspace(context.Background(), false)
	require.Error(testInstance, initializationError)
	require.True(testInstance, os.IsNotExist(initializationError))
}

func TestRemovePluginReportsManualRemovalWithoutForce(testInstance *testing.T) {
	projectRoot := writeRemovalFixture(testInstance)
	require.NoError(testInstance, os.WriteFile(filepath.Join(projectRoot, "plugins.txt"), []byte(upstreamURLConstant+"\n"), 0o644))

	executor := &scriptedExecutor{}
	service := buildService(testInstance, projectRoot, executor)

	removalReport, removalError := service.RemovePlugin(context.Background(), testPluginNameConstant, false)
	require.NoError(testInstance, removalError)
	require.True(testInstance, removalReport.DependencyRemoved)
	require.True(testInstance, removalReport.ListEntryRemoved)
	require.False(testInstance, removalReport.DirectoryRemoved)
	require.Equal(testInstance, "plugins/foo", removalReport.ManualRemovalPath)

	_, statError := os.Stat(filepath.Join(projectRoot, "plugins", testPluginNameConstant))
	require.NoError(testInstance, statError)
}

func TestRemovePluginForceDeletesDirectory(testInstance *testing.T) {
	projectRoot := writeRemovalFixture(testInstance)
	require.NoError(testInstance, os.WriteFile(filepath.Join(projectRoot, "plugins.txt"), []byte(upstreamURLConstant+"\n"), 0o644))

	executor := &scriptedExecutor{}
	service := buildService(testInstance, projectRoot, executor)

	removalReport, removalError := service.RemovePlugin(context.Background(), testPluginNameConstant, true)
	require.NoError(testInstance, removalError)
	require.True(testInstance, removalReport.DirectoryRemoved)
	require.Empty(testInstance, removalReport.ManualRemovalPath)

	_, statError := os.Stat(filepath.Join(projectRoot, "plugins", testPluginNameConstant))
	require.True(testInstance, os.IsNotExist(statError))
}

func TestProductionSetupClonesAndUpdatesForks(testInstance *testing.T) {
	projectRoot := testInstance.TempDir()
	existingPluginPath := filepath.Join(projectRoot, "plugins", "existing")
	require.NoError(testInstance, os.MkdirAll(existingPluginPath, 0o755))
	listContent := "https://github.com/upstream-owner/existing\n" + upstreamURLConstant + "\n"
	require.NoError(testInstance, os.WriteFile(filepath.Join(projectRoot, "plugins.txt"), []byte(listContent), 0o644))

	executor := &scriptedExecutor{}
	service := buildService(testInstance, projectRoot, executor)

	require.NoError(testInstance, service.ProductionSetup(context.Background()))
	require.Equal(testInstance, []string{
		"uv venv",
		"git pull origin dev",
		"git clone --depth=1 -b dev https://github.com/acme/foo.git " + filepath.Join(projectRoot, "plugins", testPluginNameConstant),
		"uv sync --all-extras",
	}, executor.recorded)
}

func TestDiagnoseReportsConflicts(testInstance *testing.T) {
	testCases := []struct {
		name            string
		lockResponse    scriptedResponse
		expectedHealthy bool
		expectedDetail  string
	}{
		{
			name:            "healthy_resolution",
			lockResponse:    scriptedResponse{result: execshell.ExecutionResult{ExitCode: 0}},
			expectedHealthy: true,
		},
		{
			name: "conflict_report_from_stderr",
			lockResponse: scriptedResponse{
				result: execshell.ExecutionResult{ExitCode: 1, StandardError: "no solution found\n"},
			},
			expectedHealthy: false,
			expectedDetail:  "no solution found",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			executor := &scriptedExecutor{
				responses: map[string]scriptedResponse{"uv lock": testCase.lockResponse},
			}
			service := buildService(subTest, subTest.TempDir(), executor)

			diagnosisReport, diagnosisError := service.Diagnose(context.Background())
			require.NoError(subTest, diagnosisError)
			require.Equal(subTest, testCase.expectedHealthy, diagnosisReport.Healthy)
			require.Equal(subTest, testCase.expectedDetail, diagnosisReport.Detail)
		})
	}
}
