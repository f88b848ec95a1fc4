// Package moderation evaluates message content against an ordered set of
// rules and reports a verdict.
//
// Rules run in a fixed order: length, forbidden words, spam patterns,
// suspicious keywords, excessive mentions, excessive custom reactions,
// excessive capitals. Every rule runs; the verdict is the violation with the
// highest severity, and among equal severities the earliest rule wins.
//
// The engine only reports. It never edits or deletes content; callers apply
// the recommended actions themselves.
package moderation
