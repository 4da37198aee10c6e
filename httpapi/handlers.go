package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	"github.com/cyp0633/libroutine/availability"
	"github.com/cyp0633/libroutine/careblock"
	"github.com/cyp0633/libroutine/eventlog"
	"github.com/cyp0633/libroutine/household"
	"github.com/cyp0633/libroutine/recurrence"
	"github.com/cyp0633/libroutine/transition"
)

var errChildNotFound = errors.New("child not found")

type availabilityResponse struct {
	availability.Result
	At time.Time `json:"at"`
}

func (s *Server) getAvailability(c *gin.Context) {
	c.JSON(http.StatusOK, availabilityResponse{
		Result: s.deps.Availability.Explain(),
		At:     s.deps.Clock.Now(),
	})
}

func (s *Server) getAvailabilityAt(c *gin.Context) {
	now := s.deps.Clock.Now()
	date, err := time.ParseInLocation(recurrence.DateLayout, c.DefaultQuery("date", recurrence.DateKey(now)), now.Location())
	if err != nil {
		badRequest(c, fmt.Errorf("invalid date: %w", err))
		return
	}
	at, err := recurrence.ParseClock(c.Query("time"))
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, availabilityResponse{
		Result: s.deps.Availability.ExplainAt(date, at),
		At:     at.On(date),
	})
}

func (s *Server) listBlocks(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Blocks.List())
}

func (s *Server) createBlock(c *gin.Context) {
	var b careblock.CareBlock
	if err := c.ShouldBindJSON(&b); err != nil {
		badRequest(c, err)
		return
	}
	if err := b.Validate(); err != nil {
		s.fail(c, err)
		return
	}
	b.ID = ""
	c.JSON(http.StatusCreated, s.deps.Blocks.Add(b))
}

func (s *Server) getBlock(c *gin.Context) {
	b, ok := s.deps.Blocks.Get(c.Param("id")).Get()
	if !ok {
		s.fail(c, fmt.Errorf("%w: %s", careblock.ErrNotFound, c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) updateBlock(c *gin.Context) {
	var b careblock.CareBlock
	if err := c.ShouldBindJSON(&b); err != nil {
		badRequest(c, err)
		return
	}
	b.ID = c.Param("id")
	if err := b.Validate(); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Blocks.Update(b); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) deleteBlock(c *gin.Context) {
	if err := s.deps.Blocks.Remove(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func optionalClock(o mo.Option[recurrence.ClockTime]) *recurrence.ClockTime {
	if v, ok := o.Get(); ok {
		return &v
	}
	return nil
}

type activeBlock struct {
	careblock.CareBlock
	LeaveBy    *recurrence.ClockTime `json:"leave_by,omitempty"`
	ReturnTime *recurrence.ClockTime `json:"return_time,omitempty"`
}

func (s *Server) activeBlocks(c *gin.Context) {
	out := []activeBlock{}
	for _, b := range s.deps.Blocks.ActiveNow() {
		out = append(out, activeBlock{
			CareBlock:  b,
			LeaveBy:    optionalClock(s.deps.Blocks.LeaveByTime(b)),
			ReturnTime: optionalClock(s.deps.Blocks.ReturnTime(b)),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) nextBlockOccurrence(c *gin.Context) {
	id := c.Param("id")
	if s.deps.Blocks.Get(id).IsAbsent() {
		s.fail(c, fmt.Errorf("%w: %s", careblock.ErrNotFound, id))
		return
	}
	next, ok := s.deps.Blocks.NextOccurrence(id, s.deps.Clock.Now()).Get()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"next": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"next": next})
}

func (s *Server) calendar(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.deps.Blocks.ExportICS(&buf, s.deps.Clock.Now()); err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

// child resolves the :id parameter against the household
func (s *Server) child(c *gin.Context) (household.Child, bool) {
	id := c.Param("id")
	child, ok := s.deps.Household.GetChild(id).Get()
	if !ok {
		s.fail(c, fmt.Errorf("%w: %s", errChildNotFound, id))
		return household.Child{}, false
	}
	return child, true
}

// bindOptional decodes a JSON body if one was sent
func bindOptional(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type childStatus struct {
	ChildID      string          `json:"child_id"`
	Name         string          `json:"name"`
	Sleep        *eventlog.Event `json:"sleep"`
	Away         *eventlog.Event `json:"away"`
	LastSleepEnd *time.Time      `json:"last_sleep_end,omitempty"`
}

func optionalEvent(o mo.Option[eventlog.Event]) *eventlog.Event {
	if e, ok := o.Get(); ok {
		return &e
	}
	return nil
}

func (s *Server) childStatus(c *gin.Context) {
	child, ok := s.child(c)
	if !ok {
		return
	}
	status := childStatus{
		ChildID: child.ID,
		Name:    child.Name,
		Sleep:   optionalEvent(s.deps.Sleep.ActiveFor(child.ID)),
		Away:    optionalEvent(s.deps.Away.ActiveFor(child.ID)),
	}
	if end, ok := s.deps.Sleep.LastEndTime(child.ID).Get(); ok {
		status.LastSleepEnd = &end
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) startSleep(c *gin.Context) {
	child, ok := s.child(c)
	if !ok {
		return
	}
	var d eventlog.Details
	if err := bindOptional(c, &d); err != nil {
		badRequest(c, err)
		return
	}
	e, err := s.deps.Sleep.Start(c.Request.Context(), child.ID, d)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) startAway(c *gin.Context) {
	child, ok := s.child(c)
	if !ok {
		return
	}
	var d eventlog.Details
	if err := bindOptional(c, &d); err != nil {
		badRequest(c, err)
		return
	}
	e, err := s.deps.Away.Start(c.Request.Context(), child.ID, eventlog.Details{Label: d.Label})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) endEvent(log *eventlog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		child, ok := s.child(c)
		if !ok {
			return
		}
		e, err := log.End(c.Request.Context(), child.ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

func (s *Server) updateEvent(log *eventlog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p eventlog.Patch
		if err := c.ShouldBindJSON(&p); err != nil {
			badRequest(c, err)
			return
		}
		e, err := log.Update(c.Request.Context(), c.Param("id"), p)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

func (s *Server) deleteEvent(log *eventlog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := log.Delete(c.Request.Context(), c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) listTransitions(c *gin.Context) {
	var out []transition.PendingTransition
	if c.Query("status") == "all" {
		out = s.deps.Detector.List()
	} else {
		out = s.deps.Detector.Pending()
	}
	if out == nil {
		out = []transition.PendingTransition{}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) scan(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Scanner.Scan(c.Request.Context()))
}

func (s *Server) confirmTransition(c *gin.Context) {
	p, err := s.deps.Detector.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) dismissTransition(c *gin.Context) {
	p, err := s.deps.Detector.Dismiss(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
