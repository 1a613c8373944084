package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/plugman/internal/utils"
	"github.com/temirov/plugman/internal/workspace"
)

type managerConfiguration struct {
	Manager workspace.Settings `mapstructure:"manager"`
}

func TestLoadConfigurationWithoutFileAppliesDefaults(testInstance *testing.T) {
	loader := utils.NewConfigurationLoader("plugman", "yaml", "PLUGMAN", []string{testInstance.TempDir()})

	defaults := map[string]any{
		"manager.max_workers": workspace.DefaultSettings().MaximumWorkers,
		"manager.dev_branch":  workspace.DefaultSettings().DevelopmentBranch,
	}

	var configuration managerConfiguration
	loadedConfiguration, loadError := loader.LoadConfiguration("", defaults, &configuration)
	require.NoError(testInstance, loadError)
	require.Empty(testInstance, loadedConfiguration.ConfigFileUsed)
	require.Equal(testInstance, workspace.DefaultSettings().MaximumWorkers, configuration.Manager.MaximumWorkers)
	require.Equal(testInstance, workspace.DefaultSettings().DevelopmentBranch, configuration.Manager.DevelopmentBranch)
}

func TestLoadConfigurationReadsYAMLFile(testInstance *testing.T) {
	configurationDirectory := testInstance.TempDir()
	configurationPath := filepath.Join(configurationDirectory, "plugman.yaml")
	configurationContent := "manager:\n  github_org: acme\n  max_workers: 3\n  dev_branch: develop\n"
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(configurationContent), 0o644))

	loader := utils.NewConfigurationLoader("plugman", "yaml", "PLUGMAN", []string{configurationDirectory})

	var configuration managerConfiguration
	loadedConfiguration, loadError := loader.LoadConfiguration("", nil, &configuration)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, configurationPath, loadedConfiguration.ConfigFileUsed)
	require.Equal(testInstance, "acme", configuration.Manager.GitHubOrganization)
	require.Equal(testInstance, 3, configuration.Manager.MaximumWorkers)
	require.Equal(testInstance, "develop", configuration.Manager.DevelopmentBranch)
}

func TestLoadConfigurationExplicitFileOverridesSearchPaths(testInstance *testing.T) {
	searchDirectory := testInstance.TempDir()
	require.NoError(testInstance, os.WriteFile(filepath.Join(searchDirectory, "plugman.yaml"), []byte("manager:\n  github_org: search-path-org\n"), 0o644))

	explicitPath := filepath.Join(testInstance.TempDir(), "custom.yaml")
	require.NoError(testInstance, os.WriteFile(explicitPath, []byte("manager:\n  github_org: explicit-org\n"), 0o644))

	loader := utils.NewConfigurationLoader("plugman", "yaml", "PLUGMAN", []string{searchDirectory})

	var configuration managerConfiguration
	loadedConfiguration, loadError := loader.LoadConfiguration(explicitPath, nil, &configuration)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, explicitPath, loadedConfiguration.ConfigFileUsed)
	require.Equal(testInstance, "explicit-org", configuration.Manager.GitHubOrganization)
}

func TestLoadConfigurationMalformedFileFallsBackToDefaults(testInstance *testing.T) {
	configurationDirectory := testInstance.TempDir()
	require.NoError(testInstance, os.WriteFile(filepath.Join(configurationDirectory, "plugman.yaml"), []byte("manager: [unclosed"), 0o644))

	loader := utils.NewConfigurationLoader("plugman", "yaml", "PLUGMAN", []string{configurationDirectory})

	defaults := map[string]any{
		"manager.max_workers": workspace.DefaultSettings().MaximumWorkers,
		"manager.dev_branch":  workspace.DefaultSettings().DevelopmentBranch,
	}

	var configuration managerConfiguration
	loadedConfiguration, loadError := loader.LoadConfiguration("", defaults, &configuration)
	require.NoError(testInstance, loadError)
	require.Error(testInstance, loadedConfiguration.LoadFailure)
	require.Equal(testInstance, workspace.DefaultSettings().MaximumWorkers, configuration.Manager.MaximumWorkers)
	require.Equal(testInstance, workspace.DefaultSettings().DevelopmentBranch, configuration.Manager.DevelopmentBranch)
}
