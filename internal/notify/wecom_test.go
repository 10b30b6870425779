package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecheck/internal/retry"
	"github.com/codecheck/internal/segment"
)

type botServer struct {
	mu       sync.Mutex
	messages []map[string]any
	times    []time.Time
	reply    func(n int) (int, string)
}

func (s *botServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var msg map[string]any
	_ = json.NewDecoder(r.Body).Decode(&msg)

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.times = append(s.times, time.Now())
	n := len(s.messages)
	s.mu.Unlock()

	status, body := http.StatusOK, `{"errcode":0,"errmsg":"ok"}`
	if s.reply != nil {
		status, body = s.reply(n)
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestWeCom_NotifySingleMarkdown(t *testing.T) {
	bot := &botServer{}
	srv := httptest.NewServer(bot)
	defer srv.Close()

	w := NewWeCom(WeComOptions{WebhookURL: srv.URL})
	require.NoError(t, w.Notify(context.Background(), "### report"))

	require.Len(t, bot.messages, 1)
	assert.Equal(t, "markdown", bot.messages[0]["msgtype"])
	assert.Equal(t, map[string]any{"content": "### report"}, bot.messages[0]["markdown"])
}

func TestWeCom_TextMessagesArePacedAndOrdered(t *testing.T) {
	bot := &botServer{}
	srv := httptest.NewServer(bot)
	defer srv.Close()

	const interval = 40 * time.Millisecond
	w := NewWeCom(WeComOptions{WebhookURL: srv.URL, MessageType: MessageText, Interval: interval})
	assert.Equal(t, segment.Plain, w.Splitter().Mode)

	sent, err := w.SendChunks(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	require.Len(t, bot.messages, 3)
	for i, want := range []string{"one", "two", "three"} {
		assert.Equal(t, "text", bot.messages[i]["msgtype"])
		assert.Equal(t, want, bot.messages[i]["text"].(map[string]any)["content"])
	}
	for i := 1; i < len(bot.times); i++ {
		assert.GreaterOrEqual(t, bot.times[i].Sub(bot.times[i-1]), interval-5*time.Millisecond)
	}
}

func TestWeCom_RejectedChunkStopsDelivery(t *testing.T) {
	bot := &botServer{reply: func(n int) (int, string) {
		if n == 2 {
			return http.StatusOK, `{"errcode":93000,"errmsg":"invalid webhook url"}`
		}
		return http.StatusOK, `{"errcode":0,"errmsg":"ok"}`
	}}
	srv := httptest.NewServer(bot)
	defer srv.Close()

	w := NewWeCom(WeComOptions{WebhookURL: srv.URL})
	sent, err := w.SendChunks(context.Background(), []string{"a", "b", "c"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2/3")
	assert.Contains(t, err.Error(), "errcode 93000")
	assert.Equal(t, 1, sent)
	assert.Len(t, bot.messages, 2)
}

func TestWeCom_RetriesTransientFailures(t *testing.T) {
	bot := &botServer{reply: func(n int) (int, string) {
		switch n {
		case 1:
			return http.StatusBadGateway, "bad gateway"
		case 2:
			return http.StatusOK, `{"errcode":45009,"errmsg":"api freq out of limit"}`
		}
		return http.StatusOK, `{"errcode":0,"errmsg":"ok"}`
	}}
	srv := httptest.NewServer(bot)
	defer srv.Close()

	w := NewWeCom(WeComOptions{
		WebhookURL: srv.URL,
		Retry:      retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
	})
	sent, err := w.SendChunks(context.Background(), []string{"only"})

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Len(t, bot.messages, 3)
}

func TestWeCom_NotifySplitsLongReports(t *testing.T) {
	bot := &botServer{}
	srv := httptest.NewServer(bot)
	defer srv.Close()

	var b strings.Builder
	for i := 1; i <= 8; i++ {
		fmt.Fprintf(&b, "#### File %d: f.go\n", i)
		b.WriteString(strings.Repeat("evaluation ", 100))
		b.WriteString("\n\n")
	}

	w := NewWeCom(WeComOptions{WebhookURL: srv.URL})
	require.NoError(t, w.Notify(context.Background(), b.String()))

	assert.Greater(t, len(bot.messages), 1)
	for _, msg := range bot.messages {
		content := msg["markdown"].(map[string]any)["content"].(string)
		assert.LessOrEqual(t, len(content), w.Splitter().Limit())
	}
}

func TestParseMessageType(t *testing.T) {
	mt, err := ParseMessageType("")
	require.NoError(t, err)
	assert.Equal(t, MessageMarkdown, mt)

	mt, err = ParseMessageType("text")
	require.NoError(t, err)
	assert.Equal(t, MessageText, mt)

	_, err = ParseMessageType("news")
	assert.Error(t, err)
}

func TestWriter_Notify(t *testing.T) {
	var out bytes.Buffer
	w := &Writer{Out: &out, Splitter: &segment.Splitter{Budget: 60, SafetyMargin: 0, Mode: segment.Plain}}

	require.NoError(t, w.Notify(context.Background(), strings.Repeat("z", 100)))
	assert.Contains(t, out.String(), "----- chunk 1/")
	assert.Contains(t, out.String(), "----- chunk 2/")
}
