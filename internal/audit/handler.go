package audit

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/request"
)

// Handler exposes the audit trail to admins.
type Handler struct {
	log Log
}

// NewHandler builds an audit handler.
func NewHandler(log Log) *Handler {
	return &Handler{log: log}
}

type entryResponse struct {
	ID           string            `json:"id"`
	ActorID      string            `json:"actor_id"`
	ActorRole    string            `json:"actor_role"`
	Action       string            `json:"action"`
	SubjectType  SubjectType       `json:"subject_type"`
	SubjectID    string            `json:"subject_id"`
	BeforeStatus string            `json:"before_status,omitempty"`
	AfterStatus  string            `json:"after_status,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// List returns the trail of one subject when subject_type and subject_id are
// given, or the latest entries otherwise.
func (h *Handler) List(c *fiber.Ctx) error {
	var (
		entries []Entry
		err     error
	)
	subjectType, subjectID := c.Query("subject_type"), c.Query("subject_id")
	if subjectType != "" && subjectID != "" {
		entries, err = h.log.ListBySubject(c.UserContext(), SubjectType(subjectType), subjectID)
	} else {
		entries, err = h.log.List(c.UserContext(), request.Page(c))
	}
	if err != nil {
		return err
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:           e.ID,
			ActorID:      e.ActorID,
			ActorRole:    e.ActorRole,
			Action:       e.Action,
			SubjectType:  e.SubjectType,
			SubjectID:    e.SubjectID,
			BeforeStatus: e.BeforeStatus,
			AfterStatus:  e.AfterStatus,
			Notes:        e.Notes,
			Metadata:     e.Metadata,
			CreatedAt:    e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": out})
}
