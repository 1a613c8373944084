// Package utils hosts shared infrastructure for configuration loading and
// structured logging used across plugman commands.
package utils
