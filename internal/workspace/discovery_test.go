package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/plugman/internal/workspace"
)

func createGitRepository(testInstance *testing.T, repositoryPath string) {
	testInstance.Helper()
	require.NoError(testInstance, os.MkdirAll(filepath.Join(repositoryPath, ".git"), 0o755))
}

func buildWorkspaceFixture(testInstance *testing.T) (string, string) {
	testInstance.Helper()

	projectRoot := testInstance.TempDir()
	pluginsDirectory := filepath.Join(projectRoot, "plugins")

	createGitRepository(testInstance, projectRoot)
	createGitRepository(testInstance, filepath.Join(pluginsDirectory, "zeta-plugin"))
	createGitRepository(testInstance, filepath.Join(pluginsDirectory, "alpha-plugin"))

	// Non-repositories are ignored: a plain directory and a loose file.
	require.NoError(testInstance, os.MkdirAll(filepath.Join(pluginsDirectory, "scratch"), 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(pluginsDirectory, "notes.txt"), []byte("notes"), 0o644))

	return projectRoot, pluginsDirectory
}

func TestDiscoverRepositoriesScopes(testInstance *testing.T) {
	projectRoot, pluginsDirectory := buildWorkspaceFixture(testInstance)
	discoverer := workspace.NewFilesystemRepositoryDiscoverer(projectRoot, pluginsDirectory)

	testCases := []struct {
		name          string
		scope         workspace.Scope
		expectedNames []string
	}{
		{
			name:          "all_lists_root_first_then_plugins_alphabetically",
			scope:         workspace.ScopeAll,
			expectedNames: []string{filepath.Base(projectRoot), "alpha-plugin", "zeta-plugin"},
		},
		{
			name:          "plugins_scope_excludes_root",
			scope:         workspace.ScopePlugins,
			expectedNames: []string{"alpha-plugin", "zeta-plugin"},
		},
		{
			name:          "root_scope_excludes_plugins",
			scope:         workspace.ScopeRoot,
			expectedNames: []string{filepath.Base(projectRoot)},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			repositories, discoveryError := discoverer.DiscoverRepositories(testCase.scope)
			require.NoError(subTest, discoveryError)

			discoveredNames := make([]string, 0, len(repositories))
			for _, repository := range repositories {
				discoveredNames = append(discoveredNames, repository.Name)
			}
			require.Equal(subTest, testCase.expectedNames, discoveredNames)
		})
	}
}

func TestDiscoverRepositoriesCategorizesEntries(testInstance *testing.T) {
	projectRoot, pluginsDirectory := buildWorkspaceFixture(testInstance)
	discoverer := workspace.NewFilesystemRepositoryDiscoverer(projectRoot, pluginsDirectory)

	repositories, discoveryError := discoverer.DiscoverRepositories(workspace.ScopeAll)
	require.NoError(testInstance, discoveryError)
	require.Len(testInstance, repositories, 3)
	require.Equal(testInstance, workspace.RepositoryCategoryRoot, repositories[0].Category)
	require.Equal(testInstance, workspace.RepositoryCategoryPlugin, repositories[1].Category)
	require.Equal(testInstance, workspace.RepositoryCategoryPlugin, repositories[2].Category)
}

func TestDiscoverRepositoriesCreatesMissingPluginsDirectory(testInstance *testing.T) {
	projectRoot := testInstance.TempDir()
	pluginsDirectory := filepath.Join(projectRoot, "plugins")
	discoverer := workspace.NewFilesystemRepositoryDiscoverer(projectRoot, pluginsDirectory)

	repositories, discoveryError := discoverer.DiscoverRepositories(workspace.ScopeAll)
	require.NoError(testInstance, discoveryError)
	require.Empty(testInstance, repositories)
	require.DirExists(testInstance, pluginsDirectory)
}
