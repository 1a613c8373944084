// Package lifecycle manages the fork-based plugin workspace: repository
// bootstrap (fork, clone, development branch), editable dependency
// registration and removal, the plugin list file, and production host setup.
package lifecycle
