// Package sandbox defines the Runner interface used to execute skill
// entrypoints and provides the subprocess-based implementation. Each
// invocation gets a private working directory, a restricted environment,
// and its own process group so teardown reaches spawned children.
package sandbox
