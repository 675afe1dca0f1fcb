// Package notifications delivers job events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when no topic is set. Completed and
// failed job notices can be toggled independently; test and batch events are
// always sent.
package notifications
