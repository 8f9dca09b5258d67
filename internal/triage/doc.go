// Package triage is the business boundary for Sentinel's issue triage.
// It defines the Engine (the intake/dedup/classify/route state machine),
// the pure Dedup and Routing decisions, the Service (submission lifecycle,
// in-flight dedup, async dispatch, tracker hand-off), the Store interface
// and the domain models.
package triage
