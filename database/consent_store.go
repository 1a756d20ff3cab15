package database

import (
	"errors"
	"time"

	"github.com/contacto31/ama-tyc-service/lifecycle"
	"github.com/contacto31/ama-tyc-service/models"

	"gorm.io/gorm"
)

// ConsentStore is the GORM-backed durable store for consent requests.
// Every transition is a conditional UPDATE guarded on the current
// state (and null-ness of the write-once timestamp), so concurrent
// callers racing on the same token resolve to exactly one winner via
// RowsAffected.
type ConsentStore struct {
	db *gorm.DB
}

func NewConsentStore(db *gorm.DB) *ConsentStore {
	return &ConsentStore{db: db}
}

func (s *ConsentStore) Insert(rec *models.ConsentRequest) error {
	return s.db.Create(rec).Error
}

func (s *ConsentStore) FindByToken(token string) (models.ConsentRequest, error) {
	var rec models.ConsentRequest
	if err := s.db.Where("token = ?", token).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rec, lifecycle.ErrNotFound
		}
		return rec, err
	}
	return rec, nil
}

func (s *ConsentStore) MarkOpened(requestID string, at time.Time) (bool, error) {
	res := s.db.Model(&models.ConsentRequest{}).
		Where("request_id = ? AND state = ? AND opened_at IS NULL", requestID, models.StateCreated).
		Updates(map[string]any{"state": models.StateOpened, "opened_at": at})
	return res.RowsAffected == 1, res.Error
}

func (s *ConsentStore) MarkAccepted(requestID string, at time.Time, by, agent string) (bool, error) {
	res := s.db.Model(&models.ConsentRequest{}).
		Where("request_id = ? AND state IN ? AND accepted_at IS NULL",
			requestID, []models.State{models.StateCreated, models.StateOpened}).
		Updates(map[string]any{
			"state":          models.StateAccepted,
			"accepted_at":    at,
			"accepted_by":    by,
			"accepted_agent": agent,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *ConsentStore) MarkExpired(requestID string) (bool, error) {
	res := s.db.Model(&models.ConsentRequest{}).
		Where("request_id = ? AND state IN ?",
			requestID, []models.State{models.StateCreated, models.StateOpened}).
		Update("state", models.StateExpired)
	return res.RowsAffected == 1, res.Error
}
