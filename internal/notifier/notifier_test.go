package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
	"MemberReserve/internal/reserve"
)

var (
	alice = ledger.MustParseAddress("0x00000000000000000000000000000000000000a1")
	gov   = ledger.MustParseAddress("0x00000000000000000000000000000000000000c0")
)

type chatServer struct {
	mu       sync.Mutex
	messages []map[string]interface{}
	failures int
	reject   bool
	updates  [][]map[string]interface{}
	polls    int
}

func (c *chatServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		switch r.URL.Path {
		case "/bottoken/getUpdates":
			c.polls++
			var batch []map[string]interface{}
			if len(c.updates) > 0 {
				batch, c.updates = c.updates[0], c.updates[1:]
			} else {
				time.Sleep(10 * time.Millisecond)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "result": batch})
		case "/bottoken/sendMessage":
			switch {
			case c.reject:
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			case c.failures > 0:
				c.failures--
				w.WriteHeader(http.StatusBadGateway)
			default:
				var payload map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				c.messages = append(c.messages, payload)
				_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
}

func (c *chatServer) sent() []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]interface{}(nil), c.messages...)
}

func newTestBot(t *testing.T, chat *chatServer) *Bot {
	srv := httptest.NewServer(chat.handler(t))
	t.Cleanup(srv.Close)
	b := NewBot("token", "42", "", zap.NewNop())
	b.SetAPIBase(srv.URL)
	b.backoff = time.Millisecond
	return b
}

func TestSend(t *testing.T) {
	chat := &chatServer{}
	b := newTestBot(t, chat)

	require.NoError(t, b.Send(context.Background(), "<b>hi</b>"))

	msgs := chat.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", msgs[0]["chat_id"])
	assert.Equal(t, "<b>hi</b>", msgs[0]["text"])
	assert.Equal(t, "HTML", msgs[0]["parse_mode"])
	assert.NotContains(t, msgs[0], "reply_to_message_id")
}

func TestSend_ErrorStatus(t *testing.T) {
	chat := &chatServer{failures: 1}
	b := newTestBot(t, chat)

	err := b.Send(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 502, apiErr.Status)
	assert.True(t, apiErr.Temporary())
}

func TestSendWithRetry_RecoversAfterFailure(t *testing.T) {
	chat := &chatServer{failures: 1}
	b := newTestBot(t, chat)

	require.NoError(t, b.SendWithRetry(context.Background(), "again", 2))
	assert.Len(t, chat.sent(), 1)
}

func TestSendWithRetry_GivesUpOnRejectedMessage(t *testing.T) {
	chat := &chatServer{reject: true}
	b := newTestBot(t, chat)
	b.backoff = time.Hour

	err := b.SendWithRetry(context.Background(), "x", 5)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
	assert.Contains(t, apiErr.Description, "chat not found")
}

func TestSendWithRetry_StopsOnCancel(t *testing.T) {
	chat := &chatServer{failures: 10}
	b := newTestBot(t, chat)
	b.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	assert.ErrorIs(t, b.SendWithRetry(ctx, "x", 3), context.Canceled)
}

func message(updateID, chatID int64, text string) map[string]interface{} {
	return map[string]interface{}{
		"update_id": updateID,
		"message": map[string]interface{}{
			"message_id": updateID * 10,
			"text":       text,
			"chat":       map[string]interface{}{"id": chatID},
		},
	}
}

func TestStartPolling_AnswersOnlyConfiguredChat(t *testing.T) {
	chat := &chatServer{updates: [][]map[string]interface{}{{
		message(1, 7, "/claim"),
		message(2, 42, "hello"),
		message(3, 42, "/status@reserve_bot now"),
	}}}
	b := newTestBot(t, chat)

	var (
		mu       sync.Mutex
		commands []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.StartPolling(ctx, func(cmd string) string {
			mu.Lock()
			defer mu.Unlock()
			commands = append(commands, cmd)
			return "ok: " + cmd
		})
	}()

	assert.Eventually(t, func() bool { return len(chat.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	assert.Equal(t, []string{"/status now"}, commands)
	mu.Unlock()
	msg := chat.sent()[0]
	assert.Equal(t, "ok: /status now", msg["text"])
	assert.Equal(t, float64(30), msg["reply_to_message_id"])
}

func TestNormalizeCommand(t *testing.T) {
	assert.Equal(t, "/price", normalizeCommand(" /price@bot "))
	assert.Equal(t, "", normalizeCommand("   "))
}

func TestFormatEvent(t *testing.T) {
	msg := FormatEvent(model.Joined{ID: 7, Member: alice, Price: ledger.MustParseEther("0.01")})
	assert.Contains(t, msg, "#7")
	assert.Contains(t, msg, "0.01 ETH")

	msg = FormatEvent(model.Quit{Member: alice, IDs: []uint64{1, 2}, Amount: ledger.MustParseEther("1.5")})
	assert.Contains(t, msg, "#1, #2")
	assert.Contains(t, msg, "1.5 ETH")

	msg = FormatEvent(model.ProposalSettled{Period: 1, Candidate: gov, Passed: true, ForVotes: 6, Quorum: 5})
	assert.Contains(t, msg, "passed")
	assert.Contains(t, msg, "6/5")

	assert.Contains(t, FormatEvent(model.GovernorSet{}), "cleared")
	assert.Empty(t, FormatEvent(nil))
}

func TestFormatReserveStatus(t *testing.T) {
	msg := FormatReserveStatus(reserve.State{
		Balance:              ledger.MustParseEther("2"),
		BookValue:            ledger.MustParseEther("0.5"),
		AdjustedSupply:       4,
		Owner:                gov,
		Governor:             gov,
		YieldRecipientLocked: true,
	}, 6, ledger.MustParseEther("0.01"))

	assert.Contains(t, msg, "Balance: 2 ETH")
	assert.Contains(t, msg, "Book value: 0.5 ETH")
	assert.Contains(t, msg, "Members: 4 (issued 6)")
	assert.Contains(t, msg, "Yield goes to")
}

func TestFormatGovernance(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Contains(t, FormatGovernance(model.StateNoActiveProposal, nil, now), "no_active_proposal")

	p := &model.Proposal{Period: 1, Candidate: gov, Quorum: 5, ForVotes: 3, Status: model.ProposalOpen, EndTime: now.Add(time.Hour)}
	assert.Contains(t, FormatGovernance(model.StateProposalOpen, p, now), "Voting ends in 1h0m0s")
	assert.Contains(t, FormatGovernance(model.StateProposalOpen, p, now.Add(2*time.Hour)), "ready to settle")
}

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	block chan struct{}
}

func (r *recordingSender) SendWithRetry(ctx context.Context, text string, _ int) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func TestFeed_ForwardsEvents(t *testing.T) {
	sender := &recordingSender{}
	feed := NewFeed(sender, 8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	feed.Listen(1, []ledger.Change{
		model.ReserveBalanceSet{Balance: ledger.NewAmount(1)},
		model.Joined{ID: 1, Member: alice, Price: ledger.NewAmount(1)},
		model.GovernanceLocked{Candidate: gov},
	})

	assert.Eventually(t, func() bool { return sender.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestFeed_DropsWhenFull(t *testing.T) {
	sender := &recordingSender{}
	feed := NewFeed(sender, 1, zap.NewNop())

	for i := uint64(1); i <= 3; i++ {
		feed.Listen(i, []ledger.Change{model.Joined{ID: i, Member: alice}})
	}
	assert.Len(t, feed.queue, 1)
}
