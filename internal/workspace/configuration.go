package workspace

import "strings"

const (
	defaultPluginsSourceDirectoryConstant = "plugins"
	defaultPluginsListFileConstant        = "plugins.txt"
	defaultRequirementsFileConstant       = "requirements.txt"
	defaultLockFileConstant               = "uv.lock"
	defaultSyncStateFileConstant          = ".plugman_sync_state.json"
	defaultSyncLogDirectoryConstant       = ".plugman_history"
	defaultCommandTimeoutSecondsConstant  = 1200
	defaultDevelopmentBranchConstant      = "dev"
)

// Settings captures the manager configuration shared by every command.
type Settings struct {
	PluginsSourceDirectory string `mapstructure:"plugins_src_dir"`
	PluginsListFile        string `mapstructure:"plugins_list_file"`
	RequirementsFile       string `mapstructure:"requirements_file"`
	LockFile               string `mapstructure:"lock_file"`
	SyncStateFile          string `mapstructure:"sync_state_file"`
	SyncLogDirectory       string `mapstructure:"sync_log_dir"`
	GitHubOrganization     string `mapstructure:"github_org"`
	MaximumWorkers         int    `mapstructure:"max_workers"`
	CommandTimeoutSeconds  int    `mapstructure:"command_timeout"`
	DevelopmentBranch      string `mapstructure:"dev_branch"`
	DefaultScope           string `mapstructure:"default_scope"`
}

// DefaultSettings provides baseline manager configuration values.
func DefaultSettings() Settings {
	return Settings{
		PluginsSourceDirectory: defaultPluginsSourceDirectoryConstant,
		PluginsListFile:        defaultPluginsListFileConstant,
		RequirementsFile:       defaultRequirementsFileConstant,
		LockFile:               defaultLockFileConstant,
		SyncStateFile:          defaultSyncStateFileConstant,
		SyncLogDirectory:       defaultSyncLogDirectoryConstant,
		GitHubOrganization:     "",
		MaximumWorkers:         defaultMaximumWorkersConstant,
		CommandTimeoutSeconds:  defaultCommandTimeoutSecondsConstant,
		DevelopmentBranch:      defaultDevelopmentBranchConstant,
		DefaultScope:           string(ScopeAll),
	}
}

// Sanitize trims textual values and substitutes defaults for missing or
// out-of-range entries so downstream services never revalidate.
func (settings Settings) Sanitize() Settings {
	defaults := DefaultSettings()
	sanitized := settings

	sanitized.PluginsSourceDirectory = valueOrDefault(settings.PluginsSourceDirectory, defaults.PluginsSourceDirectory)
	sanitized.PluginsListFile = valueOrDefault(settings.PluginsListFile, defaults.PluginsListFile)
	sanitized.RequirementsFile = valueOrDefault(settings.RequirementsFile, defaults.RequirementsFile)
	sanitized.LockFile = valueOrDefault(settings.LockFile, defaults.LockFile)
	sanitized.SyncStateFile = valueOrDefault(settings.SyncStateFile, defaults.SyncStateFile)
	sanitized.SyncLogDirectory = valueOrDefault(settings.SyncLogDirectory, defaults.SyncLogDirectory)
	sanitized.GitHubOrganization = strings.TrimSpace(settings.GitHubOrganization)
	sanitized.DevelopmentBranch = valueOrDefault(settings.DevelopmentBranch, defaults.DevelopmentBranch)

	if sanitized.MaximumWorkers <= 0 {
		sanitized.MaximumWorkers = defaults.MaximumWorkers
	}
	if sanitized.CommandTimeoutSeconds <= 0 {
		sanitized.CommandTimeoutSeconds = defaults.CommandTimeoutSeconds
	}

	if _, scopeRecognized := ParseScope(strings.TrimSpace(settings.DefaultScope)); scopeRecognized {
		sanitized.DefaultScope = strings.TrimSpace(settings.DefaultScope)
	} else {
		sanitized.DefaultScope = defaults.DefaultScope
	}

	return sanitized
}

func valueOrDefault(candidate string, fallback string) string {
	trimmed := strings.TrimSpace(candidate)
	if len(trimmed) == 0 {
		return fallback
	}
	return trimmed
}
