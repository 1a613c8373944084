package lifecycle

import (
	"os"
	"strings"
)

const (
	pluginListCommentPrefixConstant  = "#"
	pluginListLineSeparatorConstant  = "\n"
	pluginListFilePermissionConstant = 0o644
	gitSuffixConstant                = ".git"
	repositoryPathSeparatorConstant  = "/"
)

// PluginList manages the newline-separated file of upstream repository URLs.
type PluginList struct {
	path string
}

// NewPluginList constructs a PluginList over the provided file path.
func NewPluginList(path string) *PluginList {
	return &PluginList{path: path}
}

// FilePath reports the backing file location.
func (list *PluginList) FilePath() string {
	return list.path
}

// ReadURLs returns every configured upstream URL, skipping blank lines and
// comment lines. A missing file surfaces the os.IsNotExist error unchanged.
func (list *PluginList) ReadURLs() ([]string, error) {
	fileContent, readError := os.ReadFile(list.path)
	if readError != nil {
		return nil, readError
	}

	repositoryURLs := []string{}
	for _, fileLine := range strings.Split(string(fileContent), pluginListLineSeparatorConstant) {
		trimmedLine := strings.TrimSpace(fileLine)
		if len(trimmedLine) == 0 || strings.HasPrefix(trimmedLine, pluginListCommentPrefixConstant) {
			continue
		}
		repositoryURLs = append(repositoryURLs, trimmedLine)
	}
	return repositoryURLs, nil
}

// AddURL appends the URL when it is not already listed. It reports whether the
// file changed.
func (list *PluginList) AddURL(repositoryURL string) (bool, error) {
	existingLines, readError := list.readLines()
	if readError != nil && !os.IsNotExist(readError) {
		return false, readError
	}

	for _, existingLine := range existingLines {
		if existingLine == repositoryURL {
			return false, nil
		}
	}

	updatedLines := append(existingLines, repositoryURL)
	return true, list.writeLines(updatedLines)
}

// RemoveByName drops every entry whose repository name matches the provided
// folder name, comparing case-insensitively and tolerating a trailing ".git".
// It reports whether any entry was removed; a missing file removes nothing.
func (list *PluginList) RemoveByName(pluginName string) (bool, error) {
	existingLines, readError := list.readLines()
	if readError != nil {
		if os.IsNotExist(readError) {
			return false, nil
		}
		return false, readError
	}

	loweredName := strings.ToLower(strings.TrimSpace(pluginName))
	nameSuffix := repositoryPathSeparatorConstant + loweredName
	nameSuffixWithGit := nameSuffix + gitSuffixConstant

	retainedLines := make([]string, 0, len(existingLines))
	removed := false
	for _, existingLine := range existingLines {
		loweredLine := strings.ToLower(strings.TrimSpace(existingLine))
		if strings.HasSuffix(loweredLine, nameSuffix) || strings.HasSuffix(loweredLine, nameSuffixWithGit) {
			removed = true
			continue
		}
		retainedLines = append(retainedLines, existingLine)
	}

	if !removed {
		return false, nil
	}
	return true, list.writeLines(retainedLines)
}

func (list *PluginList) readLines() ([]string, error) {
	fileContent, readError := os.ReadFile(list.path)
	if readError != nil {
		return nil, readError
	}

	fileLines := []string{}
	for _, fileLine := range strings.Split(string(fileContent), pluginListLineSeparatorConstant) {
		if len(strings.TrimSpace(fileLine)) == 0 {
			continue
		}
		fileLines = append(fileLines, fileLine)
	}
	return fileLines, nil
}

func (list *PluginList) writeLines(fileLines []string) error {
	fileContent := strings.Join(fileLines, pluginListLineSeparatorConstant) + pluginListLineSeparatorConstant
	return os.WriteFile(list.path, []byte(fileContent), pluginListFilePermissionConstant)
}
