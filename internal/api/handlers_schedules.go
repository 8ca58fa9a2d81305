package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jedp/fptv/internal/services"
)

func (s *RESTServer) getSchedules(c *gin.Context) {
	schedules, err := s.scheduler.ListSchedules()
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if schedules == nil {
		schedules = make([]services.Schedule, 0)
	}
	c.JSON(http.StatusOK, schedules)
}

func (s *RESTServer) addSchedule(c *gin.Context) {
	var req struct {
		CronExpression string `json:"cron_expression"`
		DryRun         bool   `json:"dry_run"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	id, err := s.scheduler.AddSchedule(req.CronExpression, req.DryRun)
	if err != nil {
		respondBadRequest(c, err, true)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "Schedule added"})
}

func (s *RESTServer) updateSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgInvalidID})
		return
	}

	var req struct {
		CronExpression string `json:"cron_expression"`
		Enabled        *bool  `json:"enabled"`
		DryRun         bool   `json:"dry_run"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	if err := s.scheduler.UpdateSchedule(id, req.CronExpression, enabled, req.DryRun); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule updated"})
}

func (s *RESTServer) deleteSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgInvalidID})
		return
	}

	if err := s.scheduler.DeleteSchedule(id); err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}
