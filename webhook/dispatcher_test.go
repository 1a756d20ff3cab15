package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/contacto31/ama-tyc-service/models"
)

type capture struct {
	mu     sync.Mutex
	bodies [][]byte
	sigs   []string
	events []string
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.sigs = append(c.sigs, r.Header.Get(SignatureHeader))
		c.events = append(c.events, r.Header.Get(EventHeader))
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func testRecord(target string) models.ConsentRequest {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := now.Add(10 * time.Minute)
	return models.ConsentRequest{
		RequestID:    "req-1",
		SubjectID:    "subject-1",
		Channel:      "link",
		Token:        "tok",
		NotifyTarget: target,
		State:        models.StateAccepted,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
		AcceptedAt:   &at,
		Metadata:     []byte(`{"plan":"basic"}`),
	}
}

func TestDispatcherDeliversSignedPayload(t *testing.T) {
	recv := &capture{}
	srv := httptest.NewServer(recv.handler(http.StatusOK))
	defer srv.Close()

	d := New(Config{Secret: "test-secret", Workers: 1})
	d.Enqueue(testRecord(srv.URL), "accepted")
	d.Close()

	if recv.count() != 1 {
		t.Fatalf("expected one delivery, got %d", recv.count())
	}
	if recv.events[0] != "accepted" {
		t.Fatalf("expected event header %q, got %q", "accepted", recv.events[0])
	}
	if !VerifySignature([]byte("test-secret"), recv.bodies[0], recv.sigs[0]) {
		t.Fatalf("signature does not verify against the body bytes")
	}

	var p Payload
	if err := json.Unmarshal(recv.bodies[0], &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Event != "accepted" || p.RequestID != "req-1" || p.SubjectID != "subject-1" {
		t.Fatalf("payload identity wrong: %+v", p)
	}
	if p.State != models.StateAccepted || p.AcceptedAt == nil || p.OpenedAt != nil {
		t.Fatalf("payload state wrong: %+v", p)
	}
	if string(p.Metadata) != `{"plan":"basic"}` {
		t.Fatalf("metadata not echoed verbatim: %s", p.Metadata)
	}
}

func TestDispatcherNoTargetIsNoOp(t *testing.T) {
	recv := &capture{}
	srv := httptest.NewServer(recv.handler(http.StatusOK))
	defer srv.Close()

	d := New(Config{Secret: "test-secret", Workers: 1})
	d.Enqueue(testRecord(""), "expired")
	d.Close()

	if recv.count() != 0 {
		t.Fatalf("expected no delivery, got %d", recv.count())
	}
}

func TestDispatcherSwallowsReceiverFailure(t *testing.T) {
	recv := &capture{}
	srv := httptest.NewServer(recv.handler(http.StatusInternalServerError))
	defer srv.Close()

	d := New(Config{Secret: "test-secret", Workers: 1})
	d.Enqueue(testRecord(srv.URL), "expired")
	d.Close()

	// One attempt, no retry.
	if recv.count() != 1 {
		t.Fatalf("expected one attempt, got %d", recv.count())
	}
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	recv := &capture{}
	srv := httptest.NewServer(recv.handler(http.StatusOK))
	defer srv.Close()

	d := New(Config{Secret: "test-secret", Workers: 1})
	d.Close()
	d.Enqueue(testRecord(srv.URL), "accepted")

	if recv.count() != 0 {
		t.Fatalf("expected drop after close, got %d deliveries", recv.count())
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := []byte("shared")
	body := []byte(`{"event":"accepted"}`)

	sig := SignBody(secret, body)
	if !VerifySignature(secret, body, sig) {
		t.Fatalf("signature should verify")
	}
	if VerifySignature(secret, []byte(`{"event":"expired"}`), sig) {
		t.Fatalf("signature must not verify a different body")
	}
	if VerifySignature([]byte("wrong"), body, sig) {
		t.Fatalf("signature must not verify with a different secret")
	}
	if VerifySignature(secret, body, "") {
		t.Fatalf("empty signature must not verify")
	}
}
