package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domain "github.com/oshokin/frigate-notifier/internal/domain/alarm"
	"github.com/oshokin/frigate-notifier/internal/logger"
	"github.com/oshokin/frigate-notifier/internal/repository/events"
)

type healthResponse struct {
	Status string `json:"status"`
}

type eventsResponse struct {
	Pending int             `json:"pending"`
	Events  []events.Record `json:"events"`
}

type actorResponse struct {
	Hostname string `json:"hostname"`
	Username string `json:"username"`
}

type snoozeResponse struct {
	Until       *time.Time     `json:"until,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
	LastActor   *actorResponse `json:"last_actor,omitempty"`
	Active      bool           `json:"active"`
	ArmState    string         `json:"arm_state"`
	Suppressing bool           `json:"suppressing"`
}

type actionRequest struct {
	Action string `json:"action" binding:"required"`
	// Source is an optional label stored as the snooze actor.
	Source string `json:"source"`
}

type actionResponse struct {
	Action  string `json:"action"`
	Snoozed bool   `json:"snoozed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) listEvents(c *gin.Context) {
	records := s.events.List()
	if records == nil {
		records = []events.Record{}
	}

	c.JSON(http.StatusOK, eventsResponse{
		Pending: len(records),
		Events:  records,
	})
}

func (s *Server) snoozeStatus(c *gin.Context) {
	status, err := s.snooze.Status(c.Request.Context())
	if err != nil {
		logger.ErrorKV(c.Request.Context(), "Failed to read snooze status", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})

		return
	}

	resp := snoozeResponse{
		Active:      status.Active,
		ArmState:    string(status.ArmState),
		Suppressing: status.Suppressing,
	}

	if status.Snooze != nil {
		resp.Until = &status.Snooze.Until
		resp.UpdatedAt = &status.Snooze.UpdatedAt

		if actor := status.Snooze.LastActor; actor != nil {
			resp.LastActor = &actorResponse{Hostname: actor.Hostname, Username: actor.Username}
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "action is required"})

		return
	}

	actor := &domain.Actor{
		Hostname: c.ClientIP(),
		Username: httpActorUsername,
	}

	if req.Source != "" {
		actor.Username = req.Source
	}

	snoozed, err := s.snooze.HandleAction(c.Request.Context(), req.Action, actor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})

		return
	}

	c.JSON(http.StatusOK, actionResponse{Action: req.Action, Snoozed: snoozed})
}
