// Package alerts evaluates focus alert rules against each scored sample of a
// running session and delivers webhook notifications to Slack, Teams, or
// generic HTTP targets when a rule fires or resolves.
//
// With no rules configured the engine uses two defaults: "focus-low"
// (score < 0.3, warning) and "focus-critical" (score < 0.15, critical), each
// with a 30s cooldown.
package alerts
