// Package gitrepo provides git remote URL parsing and repository-level query
// helpers shared across plugman services.
package gitrepo
