package lifecycle_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/plugman/internal/lifecycle"
)

const (
	pluginListFileNameConstant = "plugins.txt"
	firstPluginURLConstant     = "https://github.com/acme/plugin-one"
	secondPluginURLConstant    = "https://github.com/acme/Plugin-Two.git"
)

func writePluginListFixture(testInstance *testing.T, fileContent string) *lifecycle.PluginList {
	testInstance.Helper()
	listPath := filepath.Join(testInstance.TempDir(), pluginListFileNameConstant)
	require.NoError(testInstance, os.WriteFile(listPath, []byte(fileContent), 0o644))
	return lifecycle.NewPluginList(listPath)
}

func TestReadURLsSkipsCommentsAndBlankLines(testInstance *testing.T) {
	pluginList := writePluginListFixture(testInstance,
		"# plugin repositories\n\n"+firstPluginURLConstant+"\n   \n"+secondPluginURLConstant+"\n")

	repositoryURLs, readError := pluginList.ReadURLs()
	require.NoError(testInstance, readError)
	require.Equal(testInstance, []string{firstPluginURLConstant, secondPluginURLConstant}, repositoryURLs)
}

func TestReadURLsSurfacesMissingFile(testInstance *testing.T) {
	pluginList := lifecycle.NewPluginList(filepath.Join(testInstance.TempDir(), pluginListFileNameConstant))

	_, readError := pluginList.ReadURLs()
	require.Error(testInstance, readError)
	require.True(testInstance, os.IsNotExist(readError))
}

func TestAddURLDeduplicates(testInstance *testing.T) {
	pluginList := writePluginListFixture(testInstance, firstPluginURLConstant+"\n")

	added, addError := pluginList.AddURL(firstPluginURLConstant)
	require.NoError(testInstance, addError)
	require.False(testInstance, added)

	added, addError = pluginList.AddURL(secondPluginURLConstant)
	require.NoError(testInstance, addError)
	require.True(testInstance, added)

	repositoryURLs, readError := pluginList.ReadURLs()
	require.NoError(testInstance, readError)
	require.Equal(testInstance, []string{firstPluginURLConstant, secondPluginURLConstant}, repositoryURLs)
}

func TestRemoveByNameScenarios(testInstance *testing.T) {
	testCases := []struct {
		name            string
		pluginName      string
		expectedRemoved bool
		expectedURLs    []string
	}{
		{
			name:            "plain_suffix_match",
			pluginName:      "plugin-one",
			expectedRemoved: true,
			expectedURLs:    []string{secondPluginURLConstant},
		},
		{
			name:            "case_insensitive_git_suffix_match",
			pluginName:      "plugin-two",
			expectedRemoved: true,
			expectedURLs:    []string{firstPluginURLConstant},
		},
		{
			name:            "unknown_name_removes_nothing",
			pluginName:      "plugin-three",
			expectedRemoved: false,
			expectedURLs:    []string{firstPluginURLConstant, secondPluginURLConstant},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			pluginList := writePluginListFixture(subTest, firstPluginURLConstant+"\n"+secondPluginURLConstant+"\n")

			removed, removeError := pluginList.RemoveByName(testCase.pluginName)
			require.NoError(subTest, removeError)
			require.Equal(subTest, testCase.expectedRemoved, removed)

			repositoryURLs, readError := pluginList.ReadURLs()
			require.NoError(subTest, readError)
			require.Equal(subTest, testCase.expectedURLs, repositoryURLs)
		})
	}
}

func TestRemoveByNameToleratesMissingFile(testInstance *testing.T) {
	pluginList := lifecycle.NewPluginList(filepath.Join(testInstance.TempDir(), pluginListFileNameConstant))

	removed, removeError := pluginList.RemoveByName("plugin-one")
	require.NoError(testInstance, removeError)
	require.False(testInstance, removed)
}
