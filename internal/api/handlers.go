package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"microgrid_simulator/internal/model"
	"microgrid_simulator/internal/simulator"
	"microgrid_simulator/internal/store"
)

// MaxStepCount bounds a single step request.
const MaxStepCount = 1000

const sessionKey = "session"

var errRouteNotFound = errors.New("route not found")

type FieldResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type SessionListResponse struct {
	Sessions []store.Info `json:"sessions"`
}

type SessionResponse struct {
	store.Info
	Snapshot model.Snapshot `json:"snapshot"`
}

type StepRequest struct {
	Count int `json:"count"`
}

// resolveSession loads the :id session into the context.
func (s *Server) resolveSession(c *gin.Context) {
	id := c.Param("id")
	if id == DefaultSessionAlias {
		id = ""
	}
	sess, err := s.sessions.Resolve(id)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func session(c *gin.Context) *store.Session {
	return c.MustGet(sessionKey).(*store.Session)
}

// listFields handles GET /api/fields
func (s *Server) listFields(c *gin.Context) {
	fields := make([]FieldResponse, 0, len(model.FieldOrder))
	for _, f := range model.FieldOrder {
		info := model.FieldCatalog[f]
		fields = append(fields, FieldResponse{ID: string(f), Name: info.Name, Unit: info.Unit})
	}
	c.JSON(http.StatusOK, fields)
}

// listSessions handles GET /api/sessions
func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, SessionListResponse{Sessions: s.sessions.List()})
}

// createSession handles POST /api/sessions
func (s *Server) createSession(c *gin.Context) {
	sess, err := s.sessions.Create()
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	s.log.Infof("session %s created", sess.ID)
	c.JSON(http.StatusCreated, s.describe(sess))
}

// getSession handles GET /api/sessions/:id
func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.describe(session(c)))
}

// deleteSession handles DELETE /api/sessions/:id
func (s *Server) deleteSession(c *gin.Context) {
	sess := session(c)
	if err := s.sessions.Delete(sess.ID); err != nil {
		abortWithDomainError(c, err)
		return
	}
	s.log.Infof("session %s deleted", sess.ID)
	c.Status(http.StatusNoContent)
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, session(c).Engine.State())
}

func (s *Server) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, session(c).Engine.Snapshot())
}

func (s *Server) getHistory(c *gin.Context) {
	c.JSON(http.StatusOK, session(c).Engine.History())
}

func (s *Server) getSummary(c *gin.Context) {
	c.JSON(http.StatusOK, session(c).Engine.Summary())
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, session(c).Engine.Stats())
}

func (s *Server) start(c *gin.Context) {
	e := session(c).Engine
	e.Start()
	c.JSON(http.StatusOK, e.State())
}

func (s *Server) pause(c *gin.Context) {
	e := session(c).Engine
	e.Pause()
	c.JSON(http.StatusOK, e.State())
}

func (s *Server) reset(c *gin.Context) {
	e := session(c).Engine
	e.Reset()
	c.JSON(http.StatusOK, e.State())
}

// step handles POST /api/sessions/:id/step. An empty body steps once.
func (s *Server) step(c *gin.Context) {
	req := StepRequest{Count: 1}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}
	if req.Count < 1 || req.Count > MaxStepCount {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest,
			fmt.Errorf("count must be within [1, %d], got %d", MaxStepCount, req.Count))
		return
	}
	c.JSON(http.StatusOK, session(c).Engine.StepN(req.Count))
}

// evaluate handles POST /api/sessions/:id/evaluate
func (s *Server) evaluate(c *gin.Context) {
	var in simulator.Inputs
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}
	d, err := session(c).Engine.Evaluate(in)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) describe(sess *store.Session) SessionResponse {
	return SessionResponse{
		Info:     s.sessions.Describe(sess),
		Snapshot: sess.Engine.Snapshot(),
	}
}
