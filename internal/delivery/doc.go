// Package delivery sends due reminders back to their chats on a cron
// cadence and marks them delivered.
package delivery
