// Package githubcli wraps the GitHub CLI for fork management and repository
// metadata queries.
package githubcli
