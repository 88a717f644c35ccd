package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/service"
)

type policyRepoStub struct {
	policies map[string]*models.PostponementPolicy
}

func (s *policyRepoStub) FindByCourse(ctx context.Context, courseID string) (*models.PostponementPolicy, error) {
	p, ok := s.policies[courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (s *policyRepoStub) List(ctx context.Context) ([]models.PostponementPolicy, error) {
	var out []models.PostponementPolicy
	for _, p := range s.policies {
		out = append(out, *p)
	}
	return out, nil
}

func (s *policyRepoStub) Upsert(ctx context.Context, pol *models.PostponementPolicy) error {
	s.policies[pol.CourseID] = pol
	return nil
}

func (s *policyRepoStub) Delete(ctx context.Context, courseID string) error {
	delete(s.policies, courseID)
	return nil
}

type courseLookupStub struct {
	courses map[string]*models.Course
}

func (s *courseLookupStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func buildPolicyRouter(repo *policyRepoStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	courses := &courseLookupStub{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Title: "Working at Heights"},
	}}
	h := NewPolicyHandler(service.NewPolicyService(repo, courses, nil, nil))

	router := gin.New()
	router.GET("/policies", h.List)
	router.GET("/policies/:courseId", h.Get)
	router.GET("/policies/:courseId/effective", h.Effective)
	router.PUT("/policies/:courseId", h.Upsert)
	router.DELETE("/policies/:courseId", h.Delete)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestPolicyRoutes(t *testing.T) {
	t.Run("effective falls back to defaults", func(t *testing.T) {
		router := buildPolicyRouter(&policyRepoStub{policies: map[string]*models.PostponementPolicy{}})

		req, _ := http.NewRequest(http.MethodGet, "/policies/course-1/effective", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"minimum_required":6`)
		require.Contains(t, resp.Body.String(), `"deadline_days":2`)
	})

	t.Run("get without explicit policy is 404", func(t *testing.T) {
		router := buildPolicyRouter(&policyRepoStub{policies: map[string]*models.PostponementPolicy{}})

		req, _ := http.NewRequest(http.MethodGet, "/policies/course-1", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("upsert stores the policy", func(t *testing.T) {
		repo := &policyRepoStub{policies: map[string]*models.PostponementPolicy{}}
		router := buildPolicyRouter(repo)

		payload := `{"minimum_required":8,"deadline_days":3,"enable_auto_postponement":true}`
		req, _ := http.NewRequest(http.MethodPut, "/policies/course-1", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.NotNil(t, repo.policies["course-1"])
		require.Equal(t, 8, repo.policies["course-1"].MinimumRequired)
	})

	t.Run("upsert for an unknown course is 404", func(t *testing.T) {
		router := buildPolicyRouter(&policyRepoStub{policies: map[string]*models.PostponementPolicy{}})

		payload := `{"minimum_required":8,"deadline_days":3}`
		req, _ := http.NewRequest(http.MethodPut, "/policies/ghost", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("upsert validation failure is 400", func(t *testing.T) {
		router := buildPolicyRouter(&policyRepoStub{policies: map[string]*models.PostponementPolicy{}})

		payload := `{"minimum_required":0,"deadline_days":3}`
		req, _ := http.NewRequest(http.MethodPut, "/policies/course-1", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("delete is 204", func(t *testing.T) {
		repo := &policyRepoStub{policies: map[string]*models.PostponementPolicy{
			"course-1": {CourseID: "course-1", MinimumRequired: 8, DeadlineDays: 3},
		}}
		router := buildPolicyRouter(repo)

		req, _ := http.NewRequest(http.MethodDelete, "/policies/course-1", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNoContent, resp.Code)
		require.Empty(t, repo.policies)
	})
}
