package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	logx "remindbot/pkg/logx"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"hello"}, splitText("hello", textLimit, ""))
	assert.Equal(t, []string{""}, splitText("", textLimit, ""))
}

func TestSplitTextRuneLimit(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("я", 25)
	chunks := splitText(s, 10, "")
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
	assert.Equal(t, s, strings.Join(chunks, ""))
}

func TestSplitTextPrefersNewline(t *testing.T) {
	t.Parallel()
	s := "aaaaaaa\nbbbbbbbbbb"
	chunks := splitText(s, 10, "")
	assert.Equal(t, []string{"aaaaaaa", "bbbbbbbbbb"}, chunks)
}

func TestSplitTextHTMLTag(t *testing.T) {
	t.Parallel()
	s := "abcdef<b>bold</b>"
	chunks := splitText(s, 8, "HTML")
	assert.Equal(t, "abcdef", chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], "<b>"))
}

func TestTextUpdate(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:       9,
		Chat:     &tele.Chat{ID: -100},
		Sender:   &tele.User{ID: 7, Username: "alice"},
		Text:     "01.01.2099 10:00 Buy milk",
		ThreadID: 3,
	}
	up, ok := textUpdate(55, m)
	require.True(t, ok)
	assert.Equal(t, 55, up.ID)
	require.NotNil(t, up.Message)
	assert.Equal(t, int64(-100), up.Message.ChatID)
	assert.Equal(t, 3, up.Message.ThreadID)
	assert.Equal(t, int64(7), up.Message.FromID)
	assert.Equal(t, "alice", up.Message.FromUsername)
	assert.Equal(t, m.Text, up.Message.Text)

	_, ok = textUpdate(1, nil)
	assert.False(t, ok)

	up, ok = textUpdate(2, &tele.Message{Chat: &tele.Chat{ID: 1}, Text: "x"})
	require.True(t, ok)
	assert.Zero(t, up.Message.FromID)
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{}, logx.Nop())
	assert.Error(t, err)

	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, a.Supervisor())
}
