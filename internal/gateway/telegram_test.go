package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/flowdesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	report string
	err    error

	requests   []string
	identities []string
}

func (f *fakeRunner) Run(ctx context.Context, request, identity string) (string, error) {
	f.requests = append(f.requests, request)
	f.identities = append(f.identities, identity)
	return f.report, f.err
}

type fakeHistory struct {
	runs []store.RunRecord
	err  error
}

func (f *fakeHistory) Recent(ctx context.Context, identity string, limit int) ([]store.RunRecord, error) {
	return f.runs, f.err
}

// botServer fakes the Bot API endpoints the gateway uses.
type botServer struct {
	mu   sync.Mutex
	sent []string
}

func (b *botServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"flowdesk","username":"flowdesk_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		b.mu.Lock()
		b.sent = append(b.sent, r.FormValue("chat_id")+":"+r.FormValue("text"))
		b.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	}
}

func newTestGateway(t *testing.T, runner Runner, history HistoryLister) (*TelegramGateway, *botServer) {
	t.Helper()
	srv := &botServer{}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint("test-token", ts.URL+"/bot%s/%s")
	require.NoError(t, err)
	return newTelegramGateway(bot, runner, history, nil), srv
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7},
		Chat: &tgbotapi.Chat{ID: 42},
		Text: text,
	}
}

func commandMessage(cmd string) *tgbotapi.Message {
	msg := textMessage(cmd)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return msg
}

func TestHandle_RunsRequest(t *testing.T) {
	runner := &fakeRunner{report: "<summary>done</summary>"}
	tg, _ := newTestGateway(t, runner, nil)

	reply := tg.handle(context.Background(), textMessage("  post the weekly numbers  "))
	assert.Equal(t, "<summary>done</summary>", reply)
	assert.Equal(t, []string{"post the weekly numbers"}, runner.requests)
	assert.Equal(t, []string{"42"}, runner.identities, "the chat is the identity")
}

func TestHandle_FailedRunShowsUserMessage(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	tg, _ := newTestGateway(t, runner, nil)

	reply := tg.handle(context.Background(), textMessage("do it"))
	assert.Contains(t, reply, "something went wrong")
	assert.NotContains(t, reply, "boom")
}

func TestHandle_EmptyTextIsIgnored(t *testing.T) {
	runner := &fakeRunner{}
	tg, _ := newTestGateway(t, runner, nil)

	assert.Empty(t, tg.handle(context.Background(), textMessage("   ")))
	assert.Empty(t, runner.requests)
}

func TestHandle_History(t *testing.T) {
	finished := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	history := &fakeHistory{runs: []store.RunRecord{
		{Request: "send invoice reminders", Status: "succeeded", FinishedAt: finished},
		{Request: "sync contacts", Status: "failed", FinishedAt: finished.Add(-time.Hour)},
	}}
	runner := &fakeRunner{}
	tg, _ := newTestGateway(t, runner, history)

	reply := tg.handle(context.Background(), commandMessage("/history"))
	assert.Contains(t, reply, "2026-03-01 09:30 [succeeded] send invoice reminders")
	assert.Contains(t, reply, "[failed] sync contacts")
	assert.Empty(t, runner.requests)
}

func TestHandle_HistoryUnavailable(t *testing.T) {
	tg, _ := newTestGateway(t, &fakeRunner{}, nil)
	assert.Contains(t, tg.handle(context.Background(), commandMessage("/history")), "not enabled")

	tg.History = &fakeHistory{err: errors.New("db locked")}
	assert.Contains(t, tg.handle(context.Background(), commandMessage("/history")), "couldn't load")

	tg.History = &fakeHistory{}
	assert.Equal(t, "You have no runs yet.", tg.handle(context.Background(), commandMessage("/history")))
}

func TestHandle_UnknownCommand(t *testing.T) {
	tg, _ := newTestGateway(t, &fakeRunner{}, nil)
	assert.Equal(t, "Unknown command /weather.", tg.handle(context.Background(), commandMessage("/weather")))
}

func TestSend(t *testing.T) {
	tg, srv := newTestGateway(t, &fakeRunner{}, nil)

	require.NoError(t, tg.Send("42", "hello"))
	assert.Equal(t, []string{"42:hello"}, srv.sent)

	assert.Error(t, tg.Send("not-a-chat", "hello"))
}

func TestHandle_GroupChatSharesIdentity(t *testing.T) {
	runner := &fakeRunner{report: "ok"}
	tg, _ := newTestGateway(t, runner, nil)

	first := textMessage("a")
	second := textMessage("b")
	second.From = &tgbotapi.User{ID: 8}
	tg.handle(context.Background(), first)
	tg.handle(context.Background(), second)

	assert.Equal(t, []string{"42", "42"}, runner.identities)
}

func TestDeliver(t *testing.T) {
	tg, srv := newTestGateway(t, &fakeRunner{}, nil)

	runner := &fakeRunner{report: "<summary>sent</summary>"}
	require.NoError(t, Deliver(context.Background(), tg, runner, "42", "weekly numbers"))
	assert.Equal(t, []string{"42"}, runner.identities)

	failing := &fakeRunner{err: errors.New("boom")}
	err := Deliver(context.Background(), tg, failing, "42", "weekly numbers")
	assert.EqualError(t, err, "boom")

	require.Len(t, srv.sent, 2)
	assert.Equal(t, "42:<summary>sent</summary>", srv.sent[0])
	assert.Contains(t, srv.sent[1], "something went wrong")

	assert.Error(t, Deliver(context.Background(), tg, runner, "bad-chat", "x"))
}
