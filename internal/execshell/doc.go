// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging, per-invocation timeouts, and error
// classification via ShellExecutor, exposes OSCommandRunner for default
// process execution, and defines the abstractions used throughout plugman to
// run git, gh, and uv in a testable manner.
package execshell
