package lifecycle

import (
	"testing"
	"time"

	"github.com/contacto31/ama-tyc-service/models"
)

func TestCachePutGetHoldsCopies(t *testing.T) {
	c := newRequestCache()
	rec := models.ConsentRequest{
		RequestID: "req-1",
		Token:     "tok-1",
		State:     models.StateCreated,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	c.Put(rec)

	got, ok := c.Get("tok-1")
	if !ok {
		t.Fatalf("expected hit for tok-1")
	}
	got.State = models.StateAccepted

	again, _ := c.Get("tok-1")
	if again.State != models.StateCreated {
		t.Fatalf("cache entry mutated through a returned copy")
	}
}

func TestCacheMiss(t *testing.T) {
	c := newRequestCache()
	if _, ok := c.Get("absent"); ok {
		t.Fatalf("expected miss")
	}
}

func TestCacheSnapshot(t *testing.T) {
	c := newRequestCache()
	c.Put(models.ConsentRequest{Token: "a", State: models.StateCreated})
	c.Put(models.ConsentRequest{Token: "b", State: models.StateOpened})
	c.Put(models.ConsentRequest{Token: "a", State: models.StateOpened}) // overwrite

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	if c.Len() != 2 {
		t.Fatalf("expected Len 2, got %d", c.Len())
	}
}
