// Package scheduler runs periodic maintenance through the dispatch engine.
//
// Each predeclared task maps a name to a route descriptor. Its cron
// expression is read from configuration at startup; a missing or invalid
// expression aborts startup with a *SchedulingConfigError before any task
// is scheduled. Every firing runs the descriptor with an empty envelope and
// discards the outcome. Faults are logged and never stop later firings.
package scheduler
