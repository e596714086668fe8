// Package orchestrator drives features through the stage pipeline. Each
// stage gathers inputs, hands off to its lead role, calls the role
// producers, stores the resulting artifacts, and records issues. Blocking
// issues trigger bounded retries; every transition is persisted before the
// next one begins, so a feature can be resumed after a crash or pause.
package orchestrator
