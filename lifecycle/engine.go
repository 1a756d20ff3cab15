package lifecycle

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/contacto31/ama-tyc-service/models"
	"github.com/contacto31/ama-tyc-service/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Webhook event names.
const (
	EventAccepted = "accepted"
	EventExpired  = "expired"
)

const (
	DefaultTTL     = 60 * time.Minute
	DefaultChannel = "link"
)

var (
	// ErrNotFound means the token resolves to no record anywhere.
	ErrNotFound = errors.New("consent request not found")
	// ErrExpired means the request passed its expiry window before acceptance.
	ErrExpired = errors.New("consent link expired")
)

// Store is the durable source of truth for consent requests. All
// mutating calls are conditional writes: they report whether this
// caller won the transition, so concurrent operations on the same
// token resolve to exactly one winner.
type Store interface {
	Insert(rec *models.ConsentRequest) error
	FindByToken(token string) (models.ConsentRequest, error)
	MarkOpened(requestID string, at time.Time) (bool, error)
	MarkAccepted(requestID string, at time.Time, by, agent string) (bool, error)
	MarkExpired(requestID string) (bool, error)
}

// Dispatcher delivers state-transition notifications. Enqueue must
// never block or fail the calling request path.
type Dispatcher interface {
	Enqueue(rec models.ConsentRequest, event string)
}

// CreateInput is a validated creation request (HTTP-level validation
// happens in the controller).
type CreateInput struct {
	SubjectID    string
	Channel      string
	TTL          time.Duration
	NotifyTarget string
	Metadata     datatypes.JSON
}

// Engine owns the consent-request state machine. It reconciles the
// process-local cache against the durable store and triggers webhook
// dispatch on transitions.
type Engine struct {
	store    Store
	cache    *requestCache
	dispatch Dispatcher

	Now      func() time.Time
	NewID    func() string
	NewToken func() (string, error)
}

func New(store Store, dispatch Dispatcher) *Engine {
	return &Engine{
		store:    store,
		cache:    newRequestCache(),
		dispatch: dispatch,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
		NewToken: utils.NewToken,
	}
}

// Create persists a new CREATED request and warms the cache. The store
// write is correctness-critical: on failure nothing is cached and the
// error is returned to the caller.
func (e *Engine) Create(in CreateInput) (models.ConsentRequest, error) {
	now := e.Now()
	ttl := in.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	channel := in.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	token, err := e.NewToken()
	if err != nil {
		return models.ConsentRequest{}, fmt.Errorf("generate token: %w", err)
	}

	rec := models.ConsentRequest{
		RequestID:    e.NewID(),
		SubjectID:    in.SubjectID,
		Channel:      channel,
		Token:        token,
		TokenDigest:  utils.DigestToken(token),
		NotifyTarget: in.NotifyTarget,
		Metadata:     in.Metadata,
		State:        models.StateCreated,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	if err := e.store.Insert(&rec); err != nil {
		return models.ConsentRequest{}, fmt.Errorf("persist consent request: %w", err)
	}
	e.cache.Put(rec)
	return rec, nil
}

// View resolves a token to its current record for rendering. The first
// non-expired read transitions CREATED to OPENED (first writer wins);
// that bookkeeping write is best-effort and soft-fails. Reads of an
// ACCEPTED record are successful no-ops.
func (e *Engine) View(token string) (models.ConsentRequest, error) {
	rec, err := e.load(token)
	if err != nil {
		return rec, err
	}

	if rec.State == models.StateAccepted {
		return rec, nil
	}
	if rec.State == models.StateExpired {
		return rec, ErrExpired
	}
	if e.Now().After(rec.ExpiresAt) {
		return e.expire(rec)
	}

	if rec.State == models.StateCreated {
		now := e.Now()
		won, err := e.store.MarkOpened(rec.RequestID, now)
		switch {
		case err != nil:
			// Opened-at bookkeeping is not safety-critical; keep the
			// in-process view moving and surface the failure in logs.
			log.Printf("lifecycle: persist opened_at for %s failed: %v", rec.RequestID, err)
			rec.State = models.StateOpened
			rec.OpenedAt = &now
			e.cache.Put(rec)
		case won:
			rec.State = models.StateOpened
			rec.OpenedAt = &now
			e.cache.Put(rec)
		default:
			// Lost the race: another reader or a concurrent transition
			// got there first. The store has the canonical record.
			if fresh, ferr := e.store.FindByToken(token); ferr == nil {
				rec = fresh
				e.cache.Put(rec)
			}
		}
	}
	return rec, nil
}

// Accept applies the acceptance transition for a token. It is
// idempotent: repeat calls return the original acceptance without a
// duplicate notification, and concurrent calls resolve to exactly one
// durable write and one dispatch.
func (e *Engine) Accept(token, by, agent string) (models.ConsentRequest, error) {
	rec, err := e.load(token)
	if err != nil {
		return rec, err
	}

	if rec.State == models.StateAccepted {
		return rec, nil
	}
	if rec.State == models.StateExpired {
		return rec, ErrExpired
	}
	if e.Now().After(rec.ExpiresAt) {
		return e.expire(rec)
	}

	now := e.Now()
	won, err := e.store.MarkAccepted(rec.RequestID, now, by, agent)
	if err != nil {
		return rec, fmt.Errorf("persist acceptance: %w", err)
	}
	if !won {
		// A concurrent accept or expiry committed first; report the
		// canonical outcome without dispatching anything.
		fresh, ferr := e.store.FindByToken(token)
		if ferr != nil {
			return rec, fmt.Errorf("reload after lost acceptance race: %w", ferr)
		}
		e.cache.Put(fresh)
		if fresh.State == models.StateAccepted {
			return fresh, nil
		}
		return fresh, ErrExpired
	}

	rec.State = models.StateAccepted
	rec.AcceptedAt = &now
	rec.AcceptedBy = by
	rec.AcceptedAgent = agent
	e.cache.Put(rec)
	e.dispatch.Enqueue(rec, EventAccepted)
	return rec, nil
}

// Sweep force-expires every cache-resident request in CREATED or
// OPENED whose window has passed, and returns how many transitioned.
// It is safe alongside live traffic: the conditional store write makes
// concurrent transitions resolve to one winner, and a record already
// moved by a read or accept simply doesn't count here.
func (e *Engine) Sweep() int {
	count := 0
	for _, rec := range e.cache.Snapshot() {
		if rec.State != models.StateCreated && rec.State != models.StateOpened {
			continue
		}
		if !e.Now().After(rec.ExpiresAt) {
			continue
		}
		won, err := e.store.MarkExpired(rec.RequestID)
		if err != nil {
			log.Printf("lifecycle: sweep expire %s failed: %v", rec.RequestID, err)
			continue
		}
		if !won {
			if fresh, ferr := e.store.FindByToken(rec.Token); ferr == nil {
				e.cache.Put(fresh)
			}
			continue
		}
		rec.State = models.StateExpired
		e.cache.Put(rec)
		e.dispatch.Enqueue(rec, EventExpired)
		count++
	}
	return count
}

// load checks the cache first and rehydrates it from the store on a
// miss. The store is authoritative on divergence.
func (e *Engine) load(token string) (models.ConsentRequest, error) {
	if rec, ok := e.cache.Get(token); ok {
		return rec, nil
	}
	rec, err := e.store.FindByToken(token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rec, ErrNotFound
		}
		return rec, fmt.Errorf("load consent request: %w", err)
	}
	e.cache.Put(rec)
	return rec, nil
}

// expire commits the expiry transition for a stale record. The winner
// of the conditional write dispatches the single "expired"
// notification; losers report whatever the store settled on (a
// concurrent accept can still win the race).
func (e *Engine) expire(rec models.ConsentRequest) (models.ConsentRequest, error) {
	won, err := e.store.MarkExpired(rec.RequestID)
	if err != nil {
		return rec, fmt.Errorf("persist expiration: %w", err)
	}
	if !won {
		fresh, ferr := e.store.FindByToken(rec.Token)
		if ferr != nil {
			return rec, ErrExpired
		}
		e.cache.Put(fresh)
		if fresh.State == models.StateAccepted {
			return fresh, nil
		}
		return fresh, ErrExpired
	}
	rec.State = models.StateExpired
	e.cache.Put(rec)
	e.dispatch.Enqueue(rec, EventExpired)
	return rec, ErrExpired
}
