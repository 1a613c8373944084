package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/plugman/internal/manifest"
)

const (
	fixtureManifestFileNameConstant = "pyproject.toml"
	removedMemberEntryConstant      = "plugins/foo"
)

func TestNormalizePackageName(testInstance *testing.T) {
	testCases := []struct {
		name           string
		packageName    string
		expectedResult string
	}{
		{name: "underscores_fold_to_hyphens", packageName: "plugin_foo_bar", expectedResult: "plugin-foo-bar"},
		{name: "hyphenated_name_unchanged", packageName: "plugin-foo", expectedResult: "plugin-foo"},
		{name: "surrounding_whitespace_trimmed", packageName: "  plugin_foo  ", expectedResult: "plugin-foo"},
		{name: "empty_name_stays_empty", packageName: "", expectedResult: ""},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			require.Equal(subTest, testCase.expectedResult, manifest.NormalizePackageName(testCase.packageName))
		})
	}
}

func TestPackageNamePrefersProjectTable(testInstance *testing.T) {
	testCases := []struct {
		name            string
		manifestContent string
		expectedName    string
	}{
		{
			name:            "project_name_wins",
			manifestContent: "[project]\nname = \"plugin_foo\"\n\n[tool.poetry]\nname = \"legacy-name\"\n",
			expectedName:    "plugin_foo",
		},
		{
			name:            "poetry_name_used_as_fallback",
			manifestContent: "[tool.poetry]\nname = \"legacy-name\"\n",
			expectedName:    "legacy-name",
		},
		{
			name:            "missing_tables_yield_empty_name",
			manifestContent: "[build-system]\nrequires = [\"hatchling\"]\n",
			expectedName:    "",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			manifestPath := filepath.Join(subTest.TempDir(), fixtureManifestFileNameConstant)
			require.NoError(subTest, os.WriteFile(manifestPath, []byte(testCase.manifestContent), 0o644))

			parsedManifest, loadError := manifest.LoadPyProject(manifestPath)
			require.NoError(subTest, loadError)
			require.Equal(subTest, testCase.expectedName, parsedManifest.PackageName())
		})
	}
}

func TestLoadPyProjectReportsErrors(testInstance *testing.T) {
	testCases := []struct {
		name            string
		prepareManifest func(*testing.T, string)
	}{
		{
			name:            "missing_file",
			prepareManifest: func(*testing.T, string) {},
		},
		{
			name: "unparsable_content",
			prepareManifest: func(subTest *testing.T, manifestPath string) {
				require.NoError(subTest, os.WriteFile(manifestPath, []byte("[project\nname"), 0o644))
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			manifestPath := filepath.Join(subTest.TempDir(), fixtureManifestFileNameConstant)
			testCase.prepareManifest(subTest, manifestPath)

			_, loadError := manifest.LoadPyProject(manifestPath)
			require.Error(subTest, loadError)
		})
	}
}

func TestRemoveWorkspaceMemberLine(testInstance *testing.T) {
	manifestContent := "[project]\n" +
		"name = \"bot-root\"\n" +
		"\n" +
		"[tool.uv.workspace]\n" +
		"members = [\n" +
		"    \"plugins/foo\",\n" +
		"    \"plugins/bar\",  # keep\n" +
		"]\n"
	expectedContent := "[project]\n" +
		"name = \"bot-root\"\n" +
		"\n" +
		"[tool.uv.workspace]\n" +
		"members = [\n" +
		"    \"plugins/bar\",  # keep\n" +
		"]\n"

	testCases := []struct {
		name            string
		memberEntry     string
		expectedRemoved bool
		expectedContent string
	}{
		{
			name:            "matching_member_removed_others_verbatim",
			memberEntry:     removedMemberEntryConstant,
			expectedRemoved: true,
			expectedContent: expectedContent,
		},
		{
			name:            "unknown_member_leaves_manifest_untouched",
			memberEntry:     "plugins/absent",
			expectedRemoved: false,
			expectedContent: manifestContent,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			manifestPath := filepath.Join(subTest.TempDir(), fixtureManifestFileNameConstant)
			require.NoError(subTest, os.WriteFile(manifestPath, []byte(manifestContent), 0o644))

			removed, removeError := manifest.RemoveWorkspaceMemberLine(manifestPath, testCase.memberEntry)
			require.NoError(subTest, removeError)
			require.Equal(subTest, testCase.expectedRemoved, removed)

			updatedContent, readError := os.ReadFile(manifestPath)
			require.NoError(subTest, readError)
			require.Equal(subTest, testCase.expectedContent, string(updatedContent))
		})
	}
}

func TestRemoveWorkspaceMemberLineIgnoresLookalikesOutsideMembersArray(testInstance *testing.T) {
	manifestContent := "[project]\n" +
		"name = \"bot-root\"\n" +
		"keywords = [\n" +
		"    \"plugins/foo\",\n" +
		"]\n" +
		"\n" +
		"# \"plugins/foo\" stays pinned here\n" +
		"\n" +
		"[tool.uv.workspace]\n" +
		"members = [\n" +
		"    \"plugins/foo\",\n" +
		"]\n" +
		"\n" +
		"[tool.other]\n" +
		"paths = [\n" +
		"    \"plugins/foo\",\n" +
		"]\n"
	expectedContent := "[project]\n" +
		"name = \"bot-root\"\n" +
		"keywords = [\n" +
		"    \"plugins/foo\",\n" +
		"]\n" +
		"\n" +
		"# \"plugins/foo\" stays pinned here\n" +
		"\n" +
		"[tool.uv.workspace]\n" +
		"members = [\n" +
		"]\n" +
		"\n" +
		"[tool.other]\n" +
		"paths = [\n" +
		"    \"plugins/foo\",\n" +
		"]\n"

	manifestPath := filepath.Join(testInstance.TempDir(), fixtureManifestFileNameConstant)
	require.NoError(testInstance, os.WriteFile(manifestPath, []byte(manifestContent), 0o644))

	removed, removeError := manifest.RemoveWorkspaceMemberLine(manifestPath, "plugins/foo")
	require.NoError(testInstance, removeError)
	require.True(testInstance, removed)

	updatedContent, readError := os.ReadFile(manifestPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, expectedContent, string(updatedContent))
}
