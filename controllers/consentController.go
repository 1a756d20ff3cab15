package controllers

import (
	"encoding/json"
	"time"

	"github.com/contacto31/ama-tyc-service/lifecycle"
	"github.com/contacto31/ama-tyc-service/middlewares"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
)

// Engine and BaseURL are wired in main before routes are registered.
var (
	Engine  *lifecycle.Engine
	BaseURL string
)

type createRequestDTO struct {
	SubjectID    string         `json:"subject_id" validate:"required,max=128"`
	Channel      string         `json:"channel" validate:"omitempty,max=32"`
	TTLMinutes   int            `json:"ttl_minutes" validate:"omitempty,gt=0"`
	NotifyTarget string         `json:"notify_target" validate:"required,url,max=2048"`
	Metadata     map[string]any `json:"metadata"`
}

// CreateRequest issues a new consent request and returns the public
// link for it. Internal-only endpoint.
func CreateRequest(c *fiber.Ctx) error {
	var dto createRequestDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}

	var meta datatypes.JSON
	if dto.Metadata != nil {
		b, err := json.Marshal(dto.Metadata)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid metadata")
		}
		meta = b
	}

	rec, err := Engine.Create(lifecycle.CreateInput{
		SubjectID:    dto.SubjectID,
		Channel:      dto.Channel,
		TTL:          time.Duration(dto.TTLMinutes) * time.Minute,
		NotifyTarget: dto.NotifyTarget,
		Metadata:     meta,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"ok":         true,
		"request_id": rec.RequestID,
		"subject_id": rec.SubjectID,
		"url":        BaseURL + "/c/" + rec.Token,
		"token":      rec.Token,
		"expires_at": rec.ExpiresAt,
	})
}

// ShowRequest resolves a token to the current record for the consent
// page to render. First non-expired read moves CREATED to OPENED.
func ShowRequest(c *fiber.Ctx) error {
	rec, err := Engine.View(c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"ok":      true,
		"request": rec,
	})
}

// AcceptRequest applies the acceptance transition. Safe to call more
// than once; repeats return the original acceptance.
func AcceptRequest(c *fiber.Ctx) error {
	rec, err := Engine.Accept(c.Params("token"), c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"ok":          true,
		"message":     "consent accepted",
		"subject_id":  rec.SubjectID,
		"request_id":  rec.RequestID,
		"accepted_at": rec.AcceptedAt,
		"accepted_by": rec.AcceptedBy,
	})
}

// SweepRequests force-expires stale cache-resident requests. Triggered
// by an external scheduler through the internal gate.
func SweepRequests(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":            true,
		"expired_count": Engine.Sweep(),
	})
}
