package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Layout is the only accepted and produced textual form of a reminder time.
const Layout = "02.01.2006 15:04"

const tokenLen = len(Layout)

var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrInvalidDateTime  = errors.New("invalid date-time")
	ErrPastDateTime     = errors.New("date-time is not in the future")
)

type ErrorKind int

const (
	KindMalformedRequest ErrorKind = iota + 1
	KindInvalidDateTime
	KindPastDateTime
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedRequest:
		return "malformed_request"
	case KindInvalidDateTime:
		return "invalid_date_time"
	case KindPastDateTime:
		return "past_date_time"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindMalformedRequest:
		return ErrMalformedRequest
	case KindInvalidDateTime:
		return ErrInvalidDateTime
	case KindPastDateTime:
		return ErrPastDateTime
	default:
		return nil
	}
}

// ParseError is the failure branch of Parse. It matches the kind's sentinel
// with errors.Is.
type ParseError struct {
	Kind  ErrorKind
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Is(target error) bool { return target == e.Kind.sentinel() }

func (e *ParseError) Unwrap() error { return e.Err }

// KindOf returns the parse failure kind of err, or 0 when err is not a
// *ParseError.
func KindOf(err error) ErrorKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// Request is the success branch of Parse.
type Request struct {
	DateTime time.Time
	Text     string
}

// Parse reads "<dd.MM.yyyy HH:mm> <text>" in the local zone. now is the
// instant the request is validated against; the parsed time must be strictly
// after it.
func Parse(text string, now time.Time) (Request, error) {
	return ParseIn(text, now, now.Location())
}

// ParseIn is Parse with an explicit location for the date-time token.
func ParseIn(text string, now time.Time, loc *time.Location) (Request, error) {
	if loc == nil {
		loc = time.Local
	}
	token, rest, err := split(text)
	if err != nil {
		return Request{}, &ParseError{Kind: KindMalformedRequest, Input: text, Err: err}
	}

	at, err := time.ParseInLocation(Layout, token, loc)
	if err != nil {
		return Request{}, &ParseError{Kind: KindInvalidDateTime, Input: text, Err: err}
	}
	if !at.After(now) {
		return Request{}, &ParseError{
			Kind:  KindPastDateTime,
			Input: text,
			Err:   fmt.Errorf("%s is not after %s", Format(at), Format(now)),
		}
	}
	return Request{DateTime: at, Text: rest}, nil
}

// split cuts text into the fixed-width date-time token and the trimmed
// remainder after the single separating whitespace.
func split(text string) (token, rest string, err error) {
	if len(text) <= tokenLen+1 {
		return "", "", errors.New("too short")
	}
	token = text[:tokenLen]
	for i := 0; i < len(token); i++ {
		c := token[i]
		if !(c >= '0' && c <= '9') && c != '.' && c != ':' && !isSpaceByte(c) {
			return "", "", fmt.Errorf("unexpected %q in date-time token", c)
		}
	}
	if !isSpaceByte(text[tokenLen]) {
		return "", "", errors.New("missing separator after date-time")
	}
	rest = strings.TrimSpace(text[tokenLen+1:])
	if rest == "" {
		return "", "", errors.New("reminder text is empty")
	}
	if !utf8.ValidString(rest) {
		return "", "", errors.New("reminder text is not valid UTF-8")
	}
	return token, rest, nil
}

func isSpaceByte(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Format renders t in the wire format.
func Format(t time.Time) string { return t.Format(Layout) }
