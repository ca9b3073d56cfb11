// Package reminder holds the notification task model and the grammar that
// turns a chat message such as "01.01.2099 10:00 Buy milk" into a task.
//
// The wire format for reminder timestamps is fixed: dd.MM.yyyy HH:mm, used
// both for parsing requests and for rendering confirmations.
package reminder
