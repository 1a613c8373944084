// Package workspace models the managed repository set: deterministic
// discovery of the root project and plugin forks, and a bounded-concurrency
// runner that fans batch workers out across them.
package workspace
