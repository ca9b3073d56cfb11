package intake

import (
	"strings"
	"time"

	"remindbot/internal/reminder"
)

// Texts are the fixed user-facing replies. Confirmation and Delivery accept
// the placeholders {message} and {time}.
type Texts struct {
	Greeting       string
	InvalidMessage string
	InvalidDate    string
	SaveFailed     string
	Confirmation   string
	Delivery       string
}

func DefaultTexts() Texts {
	return Texts{
		Greeting:       `Hello! Send me a reminder as "dd.MM.yyyy HH:mm text", for example "01.01.2099 10:00 Buy milk".`,
		InvalidMessage: `Invalid message. Use the format "dd.MM.yyyy HH:mm text".`,
		InvalidDate:    `Invalid date. Use a real date in the future in the format dd.MM.yyyy HH:mm.`,
		SaveFailed:     `Sorry, I could not save your reminder. Please try again later.`,
		Confirmation:   `Reminder saved: "{message}". I will remind you on {time}.`,
		Delivery:       `Reminder: {message}`,
	}
}

// WithDefaults fills empty fields from DefaultTexts.
func (t Texts) WithDefaults() Texts {
	d := DefaultTexts()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&t.Greeting, d.Greeting)
	fill(&t.InvalidMessage, d.InvalidMessage)
	fill(&t.InvalidDate, d.InvalidDate)
	fill(&t.SaveFailed, d.SaveFailed)
	fill(&t.Confirmation, d.Confirmation)
	fill(&t.Delivery, d.Delivery)
	return t
}

// Render substitutes the task fields into tmpl.
func Render(tmpl, message string, at time.Time) string {
	return strings.NewReplacer("{message}", message, "{time}", reminder.Format(at)).Replace(tmpl)
}

func (t Texts) confirmation(task reminder.Task) string {
	return Render(t.Confirmation, task.Message, task.DateTime)
}

func (t Texts) rejection(kind reminder.ErrorKind) string {
	if kind == reminder.KindMalformedRequest {
		return t.InvalidMessage
	}
	return t.InvalidDate
}
