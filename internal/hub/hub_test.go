package hub

import (
	"bytes"
	"log"
	"os"
	"testing"
	"time"

	"arena-core/internal/wire"
)

type fakeRouter struct {
	mailboxes map[string]wire.Mailbox
}

func (f *fakeRouter) Route(matchID string) (wire.Mailbox, bool) {
	m, ok := f.mailboxes[matchID]
	return m, ok
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[test] ", 0)
}

func TestHubBroadcastToRoomRecordsChatHistory(t *testing.T) {
	h := NewHub(&fakeRouter{mailboxes: map[string]wire.Mailbox{}}, testLogger())
	go h.Run()

	c := &Client{send: make(chan []byte, 4), playerID: "p1", connID: "c1", logger: testLogger(), chatLimiter: newTokenBucket(10, time.Second)}
	h.JoinRoom("m1", c, false)

	h.BroadcastToRoom("m1", wire.Event{Kind: wire.EvChatMessage, MatchID: "m1", Payload: map[string]string{"text": "hi"}})

	select {
	case <-c.send:
	case <-time.After(time.Second):
		t.Fatal("expected chat event delivered to room participant")
	}

	h.mu.RLock()
	history := h.rooms["m1"].chatHistory
	h.mu.RUnlock()
	if len(history) != 1 {
		t.Fatalf("chat history len = %d, want 1", len(history))
	}
}

func TestHubUnauthorizedCommandRejected(t *testing.T) {
	received := make(chan wire.Command, 1)
	router := &fakeRouter{mailboxes: map[string]wire.Mailbox{
		"m1": wire.MailboxFunc(func(cmd wire.Command) error {
			received <- cmd
			return nil
		}),
	}}
	h := NewHub(router, testLogger())
	go h.Run()

	c := &Client{send: make(chan []byte, 4), playerID: "outsider", connID: "c2", logger: testLogger(), chatLimiter: newTokenBucket(10, time.Second)}
	h.registerClient(c)

	// m1's room already has a different participant, so "outsider" (not a
	// member) gets rejected rather than forwarded.
	member := &Client{send: make(chan []byte, 4), playerID: "p1", connID: "c1", logger: testLogger(), chatLimiter: newTokenBucket(10, time.Second)}
	h.JoinRoom("m1", member, false)

	h.Deliver(c, ClientMessage{Type: string(wire.CmdSubmitSolution), Data: []byte(`{"match_id":"m1","code":"x","language":"python"}`)})

	select {
	case <-received:
		t.Fatal("command should have been rejected for non-member")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case raw := <-c.send:
		if len(raw) == 0 {
			t.Fatal("expected an error payload")
		}
	case <-time.After(time.Second):
		t.Fatal("expected error event for unauthorized command")
	}
}

func TestHubChatRateLimiting(t *testing.T) {
	h := NewHub(&fakeRouter{mailboxes: map[string]wire.Mailbox{}}, testLogger())
	go h.Run()

	c := &Client{send: make(chan []byte, 32), playerID: "p1", connID: "c1", logger: testLogger(), chatLimiter: newTokenBucket(2, time.Hour)}
	h.registerClient(c)
	h.JoinRoom("m1", c, false)

	msg := ClientMessage{Type: string(wire.CmdUserTyping), Data: []byte(`{"match_id":"m1","is_typing":true}`)}
	for i := 0; i < 2; i++ {
		h.Deliver(c, msg)
	}
	h.Deliver(c, msg) // third should be rate-limited

	time.Sleep(100 * time.Millisecond)
	drained := 0
	rateLimited := false
	for {
		select {
		case raw := <-c.send:
			drained++
			if bytes.Contains(raw, []byte("rate_limited")) {
				rateLimited = true
			}
		default:
			goto done
		}
	}
done:
	if drained == 0 {
		t.Fatal("expected at least one error event for the rate-limited message")
	}
	if !rateLimited {
		t.Fatal("expected a rate_limited error event for the third message")
	}
}
