package workspace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/plugman/internal/workspace"
)

func TestSanitizeSettings(testInstance *testing.T) {
	testCases := []struct {
		name     string
		input    workspace.Settings
		expected workspace.Settings
	}{
		{
			name:     "zero_value_settings_gain_every_default",
			input:    workspace.Settings{},
			expected: workspace.DefaultSettings(),
		},
		{
			name: "whitespace_values_fall_back_to_defaults",
			input: workspace.Settings{
				PluginsSourceDirectory: "  ",
				PluginsListFile:        "\t",
				GitHubOrganization:     "  acme  ",
				MaximumWorkers:         -3,
				CommandTimeoutSeconds:  0,
				DefaultScope:           "everything",
			},
			expected: func() workspace.Settings {
				expected := workspace.DefaultSettings()
				expected.GitHubOrganization = "acme"
				return expected
			}(),
		},
		{
			name: "explicit_values_survive_untouched",
			input: workspace.Settings{
				PluginsSourceDirectory: "modules",
				PluginsListFile:        "modules.txt",
				RequirementsFile:       "requirements.prod.txt",
				LockFile:               "uv.lock",
				SyncStateFile:          "state.json",
				SyncLogDirectory:       "history",
				GitHubOrganization:     "acme",
				MaximumWorkers:         3,
				CommandTimeoutSeconds:  60,
				DevelopmentBranch:      "develop",
				DefaultScope:           "plugins",
			},
			expected: workspace.Settings{
				PluginsSourceDirectory: "modules",
				PluginsListFile:        "modules.txt",
				RequirementsFile:       "requirements.prod.txt",
				LockFile:               "uv.lock",
				SyncStateFile:          "state.json",
				SyncLogDirectory:       "history",
				GitHubOrganization:     "acme",
				MaximumWorkers:         3,
				CommandTimeoutSeconds:  60,
				DevelopmentBranch:      "develop",
				DefaultScope:           "plugins",
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			require.Equal(subTest, testCase.expected, testCase.input.Sanitize())
		})
	}
}

func TestParseScope(testInstance *testing.T) {
	testCases := []struct {
		name           string
		value          string
		expectedScope  workspace.Scope
		expectedParsed bool
	}{
		{name: "all", value: "all", expectedScope: workspace.ScopeAll, expectedParsed: true},
		{name: "plugins", value: "plugins", expectedScope: workspace.ScopePlugins, expectedParsed: true},
		{name: "root", value: "root", expectedScope: workspace.ScopeRoot, expectedParsed: true},
		{name: "unknown_value_rejected", value: "everything", expectedParsed: false},
		{name: "empty_value_rejected", value: "", expectedParsed: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			parsedScope, parsed := workspace.ParseScope(testCase.value)
			require.Equal(subTest, testCase.expectedParsed, parsed)
			if testCase.expectedParsed {
				require.Equal(subTest, testCase.expectedScope, parsedScope)
			}
		})
	}
}
