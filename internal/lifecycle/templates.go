package lifecycle

import (
	"os"
	"path/filepath"
)

const (
	configurationFileNameConstant = "plugman.yaml"

	configurationTemplateConstant = `# plugman configuration
manager:
  # GitHub organization or user holding every plugin fork (required)
  github_org: "my-bot-workspace"

  # Local directory that receives plugin source checkouts
  plugins_src_dir: "plugins"

  # File listing the upstream repository URLs, one per line
  plugins_list_file: "plugins.txt"

  # Development branch used in every plugin fork
  dev_branch: "dev"

  # Concurrent worker ceiling for batch operations
  max_workers: 8

  # Timeout in seconds for external commands such as git and uv
  command_timeout: 1200
`

	pluginListTemplateConstant = "# Add one plugin repository URL per line\n"
)

// WriteConfigurationTemplates creates the template configuration and plugin
// list files when they are missing. It reports whether this looks like a first
// run, meaning the configuration file did not exist yet.
func (service *Service) WriteConfigurationTemplates() (bool, error) {
	configurationPath := filepath.Join(service.projectRoot, configurationFileNameConstant)
	firstRun := !fileExists(configurationPath)

	templates := map[string]string{
		configurationPath:             configurationTemplateConstant,
		service.pluginList.FilePath(): pluginListTemplateConstant,
	}
	for templatePath, templateContent := range templates {
		if fileExists(templatePath) {
			continue
		}
		if writeError := os.WriteFile(templatePath, []byte(templateContent), pluginListFilePermissionConstant); writeError != nil {
			return firstRun, writeError
		}
	}
	return firstRun, nil
}
