// Package notifier announces newly listed events.
//
// Announcements go to Twitter as one post per event, to a Telegram chat as a
// single digest, or to standard output in dry-run mode. Only events that do
// not need review are announced. The Twitter notifier handles OAuth 1.0a
// signing and spaces out posts to stay under rate limits.
package notifier
