package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/contacto31/ama-tyc-service/models"

	"gorm.io/datatypes"
)

const (
	SignatureHeader = "X-Consent-Signature"
	EventHeader     = "X-Consent-Event"

	DefaultTimeout   = 5 * time.Second
	DefaultQueueSize = 64
	DefaultWorkers   = 2
)

// Payload is the notification body POSTed to a request's notify
// target. Metadata is echoed back verbatim from creation.
type Payload struct {
	Event      string         `json:"event"`
	SubjectID  string         `json:"subject_id"`
	RequestID  string         `json:"request_id"`
	State      models.State   `json:"state"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	OpenedAt   *time.Time     `json:"opened_at"`
	AcceptedAt *time.Time     `json:"accepted_at"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
}

type Config struct {
	Secret    string
	Timeout   time.Duration
	QueueSize int
	Workers   int
}

type job struct {
	rec   models.ConsentRequest
	event string
}

// Dispatcher delivers signed state-transition webhooks through a small
// worker pool. Delivery is fire-and-forget: the request path that
// triggered a transition never blocks on or learns about the outcome.
type Dispatcher struct {
	secret []byte
	client *http.Client

	mu     sync.Mutex
	jobs   chan job
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	d := &Dispatcher{
		secret: []byte(cfg.Secret),
		client: &http.Client{Timeout: cfg.Timeout},
		jobs:   make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue hands a notification to the worker pool. It never blocks:
// when the queue is full the event is dropped and logged, matching the
// no-retry contract. Records without a notify target are a silent
// no-op.
func (d *Dispatcher) Enqueue(rec models.ConsentRequest, event string) {
	if rec.NotifyTarget == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		log.Printf("webhook: dispatcher closed, dropping %q for %s", event, rec.RequestID)
		return
	}
	select {
	case d.jobs <- job{rec: rec, event: event}:
	default:
		log.Printf("webhook: queue full, dropping %q for %s", event, rec.RequestID)
	}
}

// Close stops accepting work and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.deliver(j.rec, j.event)
	}
}

// deliver signs and POSTs one notification. Failures are logged and
// never retried.
func (d *Dispatcher) deliver(rec models.ConsentRequest, event string) {
	body, err := json.Marshal(buildPayload(rec, event))
	if err != nil {
		log.Printf("webhook: marshal %q for %s: %v", event, rec.RequestID, err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, rec.NotifyTarget, bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook: build request %q for %s: %v", event, rec.RequestID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event)
	req.Header.Set(SignatureHeader, SignBody(d.secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		log.Printf("webhook: deliver %q for %s to %s: %v", event, rec.RequestID, rec.NotifyTarget, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("webhook: deliver %q for %s to %s: status %d", event, rec.RequestID, rec.NotifyTarget, resp.StatusCode)
	}
}

func buildPayload(rec models.ConsentRequest, event string) Payload {
	return Payload{
		Event:      event,
		SubjectID:  rec.SubjectID,
		RequestID:  rec.RequestID,
		State:      rec.State,
		CreatedAt:  rec.CreatedAt,
		ExpiresAt:  rec.ExpiresAt,
		OpenedAt:   rec.OpenedAt,
		AcceptedAt: rec.AcceptedAt,
		Metadata:   rec.Metadata,
	}
}

// SignBody computes the hex HMAC-SHA256 of the exact body bytes.
func SignBody(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header produced by SignBody.
// Exposed for receivers and tests.
func VerifySignature(secret, body []byte, signatureHeader string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || len(secret) == 0 {
		return false
	}
	if strings.HasPrefix(strings.ToLower(sig), "sha256=") {
		sig = sig[len("sha256="):]
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
