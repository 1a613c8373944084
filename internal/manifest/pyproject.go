package manifest

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// PyProjectFileName is the canonical manifest file name for Python packages.
const PyProjectFileName = "pyproject.toml"

const (
	nameSeparatorUnderscoreConstant = "_"
	nameSeparatorHyphenConstant     = "-"
	memberLineQuoteCutsetConstant   = `"'`
	memberLineTrailingCommaConstant = ","
	manifestLineSeparatorConstant   = "\n"
	workspaceTableNameConstant      = "tool.uv.workspace"
	membersKeyNameConstant          = "members"
	membersArrayOpenConstant        = "["
	membersArrayCloseConstant       = "]"
	tableHeaderCutsetConstant       = "[]"
)

// DependencySource describes a [tool.uv.sources] entry for one dependency.
type DependencySource struct {
	Path      string `toml:"path"`
	Workspace bool   `toml:"workspace"`
	Editable  bool   `toml:"editable"`
}

// IsLocal reports whether the source points at a workspace-local directory.
func (source DependencySource) IsLocal() bool {
	return source.Workspace || len(strings.TrimSpace(source.Path)) > 0
}

// PyProject models the subset of pyproject.toml the manager reads.
type PyProject struct {
	Project struct {
		Name                 string              `toml:"name"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		UV struct {
			Workspace struct {
				Members []string `toml:"members"`
			} `toml:"workspace"`
			Sources map[string]DependencySource `toml:"sources"`
		} `toml:"uv"`
		Poetry struct {
			Name string `toml:"name"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// LoadPyProject parses the manifest at the given path.
func LoadPyProject(manifestPath string) (PyProject, error) {
	manifestBytes, readError := os.ReadFile(manifestPath)
	if readError != nil {
		return PyProject{}, readError
	}

	var parsedManifest PyProject
	if unmarshalError := toml.Unmarshal(manifestBytes, &parsedManifest); unmarshalError != nil {
		return PyProject{}, unmarshalError
	}
	return parsedManifest, nil
}

// PackageName reports the declared package name, preferring [project] over [tool.poetry].
func (manifest PyProject) PackageName() string {
	projectName := strings.TrimSpace(manifest.Project.Name)
	if len(projectName) > 0 {
		return projectName
	}
	return strings.TrimSpace(manifest.Tool.Poetry.Name)
}

// NormalizePackageName folds underscore and hyphen separators so declared and
// resolved names compare equal.
func NormalizePackageName(packageName string) string {
	return strings.ReplaceAll(strings.TrimSpace(packageName), nameSeparatorUnderscoreConstant, nameSeparatorHyphenConstant)
}

// RemoveWorkspaceMemberLine drops the workspace-member entry matching the
// provided value from the [tool.uv.workspace] members array, editing line by
// line so every other line is preserved verbatim in its original order.
// Identical-looking lines outside that array are never touched. It reports
// whether a line was removed.
func RemoveWorkspaceMemberLine(manifestPath string, memberEntry string) (bool, error) {
	manifestBytes, readError := os.ReadFile(manifestPath)
	if readError != nil {
		return false, readError
	}

	manifestLines := strings.Split(string(manifestBytes), manifestLineSeparatorConstant)
	retainedLines := make([]string, 0, len(manifestLines))
	currentTableName := ""
	insideMembersArray := false
	removed := false
	for _, manifestLine := range manifestLines {
		trimmedLine := strings.TrimSpace(manifestLine)

		if tableName, isTableHeader := parseTableHeader(trimmedLine); isTableHeader {
			currentTableName = tableName
			insideMembersArray = false
		} else if currentTableName == workspaceTableNameConstant {
			switch {
			case insideMembersArray:
				if strings.HasPrefix(trimmedLine, membersArrayCloseConstant) {
					insideMembersArray = false
				} else if !removed && workspaceMemberLineMatches(trimmedLine, memberEntry) {
					removed = true
					continue
				}
			case strings.HasPrefix(trimmedLine, membersKeyNameConstant):
				if strings.Contains(trimmedLine, membersArrayOpenConstant) && !strings.Contains(trimmedLine, membersArrayCloseConstant) {
					insideMembersArray = true
				}
			}
		}

		retainedLines = append(retainedLines, manifestLine)
	}

	if !removed {
		return false, nil
	}

	writeError := os.WriteFile(manifestPath, []byte(strings.Join(retainedLines, manifestLineSeparatorConstant)), 0o644)
	if writeError != nil {
		return false, writeError
	}
	return true, nil
}

func parseTableHeader(trimmedLine string) (string, bool) {
	if !strings.HasPrefix(trimmedLine, membersArrayOpenConstant) || !strings.HasSuffix(trimmedLine, membersArrayCloseConstant) {
		return "", false
	}
	return strings.Trim(trimmedLine, tableHeaderCutsetConstant), true
}

func workspaceMemberLineMatches(trimmedLine string, memberEntry string) bool {
	candidateEntry := strings.TrimSuffix(trimmedLine, memberLineTrailingCommaConstant)
	candidateEntry = strings.Trim(candidateEntry, memberLineQuoteCutsetConstant)
	return candidateEntry == memberEntry
}
