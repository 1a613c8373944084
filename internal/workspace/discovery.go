package workspace

import (
	"os"
	"path/filepath"
	"sort"
)

const gitMetadataDirectoryNameConstant = ".git"

// FilesystemRepositoryDiscoverer enumerates workspace repositories on disk.
type FilesystemRepositoryDiscoverer struct {
	projectRoot      string
	pluginsDirectory string
}

// NewFilesystemRepositoryDiscoverer constructs a discoverer for the given workspace layout.
func NewFilesystemRepositoryDiscoverer(projectRoot string, pluginsDirectory string) *FilesystemRepositoryDiscoverer {
	return &FilesystemRepositoryDiscoverer{projectRoot: projectRoot, pluginsDirectory: pluginsDirectory}
}

// DiscoverRepositories returns the repositories matched by the scope.
// The root project is always listed first; plugins follow alphabetically, so
// repeated runs over an unchanged directory listing report identically.
func (discoverer *FilesystemRepositoryDiscoverer) DiscoverRepositories(scope Scope) ([]Repository, error) {
	var repositories []Repository

	if scope == ScopeAll || scope == ScopePlugins {
		pluginRepositories, discoveryError := discoverer.discoverPluginRepositories()
		if discoveryError != nil {
			return nil, discoveryError
		}
		repositories = append(repositories, pluginRepositories...)
	}

	if scope == ScopeAll || scope == ScopeRoot {
		if containsGitMetadata(discoverer.projectRoot) {
			rootRepository := Repository{
				Path:     discoverer.projectRoot,
				Name:     filepath.Base(discoverer.projectRoot),
				Category: RepositoryCategoryRoot,
			}
			repositories = append([]Repository{rootRepository}, repositories...)
		}
	}

	return repositories, nil
}

func (discoverer *FilesystemRepositoryDiscoverer) discoverPluginRepositories() ([]Repository, error) {
	if makeDirectoryError := os.MkdirAll(discoverer.pluginsDirectory, 0o755); makeDirectoryError != nil {
		return nil, makeDirectoryError
	}

	directoryEntries, readError := os.ReadDir(discoverer.pluginsDirectory)
	if readError != nil {
		return nil, readError
	}

	var pluginRepositories []Repository
	for _, directoryEntry := range directoryEntries {
		if !directoryEntry.IsDir() {
			continue
		}
		pluginPath := filepath.Join(discoverer.pluginsDirectory, directoryEntry.Name())
		if !containsGitMetadata(pluginPath) {
			continue
		}
		pluginRepositories = append(pluginRepositories, Repository{
			Path:     pluginPath,
			Name:     directoryEntry.Name(),
			Category: RepositoryCategoryPlugin,
		})
	}

	sort.Slice(pluginRepositories, func(firstIndex int, secondIndex int) bool {
		return pluginRepositories[firstIndex].Name < pluginRepositories[secondIndex].Name
	})

	return pluginRepositories, nil
}

func containsGitMetadata(repositoryPath string) bool {
	metadataInfo, statError := os.Stat(filepath.Join(repositoryPath, gitMetadataDirectoryNameConstant))
	return statError == nil && metadataInfo.IsDir()
}
