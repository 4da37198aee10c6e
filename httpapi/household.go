package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cyp0633/libroutine/household"
)

func (s *Server) listChildren(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Household.ListChildren())
}

// putChild creates a child, or replaces the child named by :id
func (s *Server) putChild(c *gin.Context) {
	var child household.Child
	if err := c.ShouldBindJSON(&child); err != nil {
		badRequest(c, err)
		return
	}
	if child.Name == "" {
		badRequest(c, errors.New("name is required"))
		return
	}

	status := http.StatusCreated
	if id := c.Param("id"); id != "" {
		child.ID = id
		if s.deps.Household.GetChild(id).IsPresent() {
			status = http.StatusOK
		}
	}
	c.JSON(status, s.deps.Household.PutChild(child))
}

func (s *Server) deleteChild(c *gin.Context) {
	if err := s.deps.Household.RemoveChild(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listNapSchedules(c *gin.Context) {
	child, ok := s.child(c)
	if !ok {
		return
	}
	naps := s.deps.Household.NapSchedulesFor(child.ID)
	if naps == nil {
		naps = []household.NapSchedule{}
	}
	c.JSON(http.StatusOK, naps)
}

func (s *Server) addNapSchedule(c *gin.Context) {
	child, ok := s.child(c)
	if !ok {
		return
	}
	var nap household.NapSchedule
	if err := c.ShouldBindJSON(&nap); err != nil {
		badRequest(c, err)
		return
	}
	if nap.NapNumber < 1 || nap.TypicalDuration <= 0 {
		badRequest(c, errors.New("nap number and typical duration must be positive"))
		return
	}
	nap.ID = ""
	nap.ChildID = child.ID
	c.JSON(http.StatusCreated, s.deps.Household.PutNapSchedule(nap))
}

func (s *Server) deleteNapSchedule(c *gin.Context) {
	if err := s.deps.Household.RemoveNapSchedule(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
