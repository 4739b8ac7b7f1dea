// Package engine provides the skill run execution engine. It orchestrates
// the run lifecycle by resolving skill versions, validating inputs against
// their declared parameters, driving the sandbox with timeout and
// cancellation enforcement, and mirroring every state change to both the
// store and the event bus in real time.
package engine
