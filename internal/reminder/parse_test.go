package reminder

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 15, 12, 30, 45, 0, time.UTC)

func TestParseValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		at   time.Time
		text string
	}{
		{name: "plain", in: "01.01.2099 10:00 Buy milk", at: time.Date(2099, 1, 1, 10, 0, 0, 0, time.UTC), text: "Buy milk"},
		{name: "letters and punctuation", in: "25.12.2024 09:30 Call mom, then buy gifts!", at: time.Date(2024, 12, 25, 9, 30, 0, 0, time.UTC), text: "Call mom, then buy gifts!"},
		{name: "non latin", in: "01.07.2024 08:00 Позвонить маме", at: time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC), text: "Позвонить маме"},
		{name: "trailing whitespace trimmed", in: "01.01.2099 10:00 pay rent \n", at: time.Date(2099, 1, 1, 10, 0, 0, 0, time.UTC), text: "pay rent"},
		{name: "extra spaces before text", in: "01.01.2099 10:00    stretch", at: time.Date(2099, 1, 1, 10, 0, 0, 0, time.UTC), text: "stretch"},
		{name: "one minute ahead", in: "15.06.2024 12:31 soon", at: time.Date(2024, 6, 15, 12, 31, 0, 0, time.UTC), text: "soon"},
		{name: "tab separator", in: "01.01.2099 10:00\tx", at: time.Date(2099, 1, 1, 10, 0, 0, 0, time.UTC), text: "x"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in, fixedNow)
			require.NoError(t, err)
			assert.True(t, got.DateTime.Equal(tt.at), "DateTime = %v, want %v", got.DateTime, tt.at)
			assert.Equal(t, tt.text, got.Text)
		})
	}
}

func TestParseFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		kind ErrorKind
		is   error
	}{
		{name: "empty", in: "", kind: KindMalformedRequest, is: ErrMalformedRequest},
		{name: "free text", in: "not a valid request", kind: KindMalformedRequest, is: ErrMalformedRequest},
		{name: "no text", in: "01.01.2099 10:00", kind: KindMalformedRequest, is: ErrMalformedRequest},
		{name: "only spaces after", in: "01.01.2099 10:00     ", kind: KindMalformedRequest, is: ErrMalformedRequest},
		{name: "no separator", in: "01.01.2099 10:00Buy milk", kind: KindMalformedRequest, is: ErrMalformedRequest},
		{name: "letters in token", in: "01.Jan.2099 10:0 Buy milk", kind: KindMalformedRequest, is: ErrMalformedRequest},
		{name: "non-breaking space separator", in: "01.01.2099 10:00\u00a0nbsp sep", kind: KindMalformedRequest, is: ErrMalformedRequest},
		{name: "invalid utf-8 text", in: "01.01.2099 10:00 \xff\xfe", kind: KindMalformedRequest, is: ErrMalformedRequest},
		{name: "unpadded token", in: "1.1.2099   10:00 Buy milk", kind: KindInvalidDateTime, is: ErrInvalidDateTime},
		{name: "impossible date", in: "31.02.2099 10:00 Buy milk", kind: KindInvalidDateTime, is: ErrInvalidDateTime},
		{name: "bad hour", in: "01.01.2099 25:00 Buy milk", kind: KindInvalidDateTime, is: ErrInvalidDateTime},
		{name: "past", in: "01.01.2000 10:00 Buy milk", kind: KindPastDateTime, is: ErrPastDateTime},
		{name: "same minute as now", in: "15.06.2024 12:30 too late", kind: KindPastDateTime, is: ErrPastDateTime},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in, fixedNow)
			require.Error(t, err)
			assert.Equal(t, Request{}, got)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.True(t, errors.Is(err, tt.is), "errors.Is(%v, %v)", err, tt.is)
		})
	}
}

func TestParseExactlyNowIsPast(t *testing.T) {
	t.Parallel()
	now := time.Date(2030, 3, 1, 8, 0, 0, 0, time.UTC)
	_, err := Parse("01.03.2030 08:00 wake up", now)
	require.ErrorIs(t, err, ErrPastDateTime)

	_, err = Parse("01.03.2030 08:01 wake up", now)
	require.NoError(t, err)
}

func TestParseUsesLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, loc)
	got, err := ParseIn("02.01.2030 09:15 standup", now, loc)
	require.NoError(t, err)
	assert.Equal(t, loc, got.DateTime.Location())
	assert.Equal(t, 9, got.DateTime.Hour())
}

func TestParseIsIdempotent(t *testing.T) {
	t.Parallel()
	in := "01.01.2099 10:00 Buy milk"
	a, errA := Parse(in, fixedNow)
	b, errB := Parse(in, fixedNow)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestFormatRoundTrip(t *testing.T) {
	t.Parallel()
	at := time.Date(2099, 12, 25, 9, 30, 0, 0, time.UTC)
	s := Format(at)
	assert.Equal(t, "25.12.2099 09:30", s)

	got, err := Parse(s+" gifts", fixedNow)
	require.NoError(t, err)
	assert.True(t, got.DateTime.Equal(at))
}

func TestParseErrorMessage(t *testing.T) {
	t.Parallel()
	_, err := Parse("hello", fixedNow)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "malformed request"), err.Error())
	assert.Equal(t, "malformed_request", KindMalformedRequest.String())
	assert.Equal(t, ErrorKind(0), KindOf(errors.New("other")))
}
