package intake

import (
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/transport"
)

// StartCommand is answered with the greeting and never parsed.
const StartCommand = "/start"

type Outcome int

const (
	OutcomeSkip Outcome = iota
	OutcomeGreet
	OutcomeReject
	OutcomeStore
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkip:
		return "skip"
	case OutcomeGreet:
		return "greet"
	case OutcomeReject:
		return "reject"
	case OutcomeStore:
		return "store"
	default:
		return "unknown"
	}
}

// Decision is what should happen to one update.
type Decision struct {
	Outcome Outcome
	Target  transport.ChatTarget

	// Reject
	Kind reminder.ErrorKind
	Err  error

	// Store
	Task reminder.Task
}

// Decide classifies u. now is the validation instant; loc is the zone the
// date-time token is read in (now's location when nil).
func Decide(u transport.Update, now time.Time, loc *time.Location) Decision {
	m := u.Message
	if m == nil {
		return Decision{Outcome: OutcomeSkip}
	}
	d := Decision{Target: m.Target()}
	if m.Text == StartCommand {
		d.Outcome = OutcomeGreet
		return d
	}
	if loc == nil {
		loc = now.Location()
	}

	req, err := reminder.ParseIn(m.Text, now, loc)
	if err != nil {
		d.Outcome = OutcomeReject
		d.Kind = reminder.KindOf(err)
		d.Err = err
		return d
	}

	task, err := reminder.NewTask(m.ChatID, req.Text, req.DateTime)
	if err != nil {
		// Only reachable for chat id 0; treat as a malformed request.
		d.Outcome = OutcomeReject
		d.Kind = reminder.KindMalformedRequest
		d.Err = err
		return d
	}
	d.Outcome = OutcomeStore
	d.Task = task
	return d
}
