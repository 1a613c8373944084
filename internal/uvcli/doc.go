// Package uvcli wraps the uv dependency tool for workspace dependency
// registration, locking, and production compilation.
package uvcli
