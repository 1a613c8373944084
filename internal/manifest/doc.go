// Package manifest parses pyproject manifests and rewrites workspace-local
// dependencies into pinned fork references for production deployments.
package manifest
