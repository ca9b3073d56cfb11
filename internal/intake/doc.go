// Package intake turns inbound chat updates into stored reminders and
// replies.
//
// Decide is pure: it classifies one update against the current time. The
// Dispatcher executes decisions, talking to the store and the transport.
package intake
