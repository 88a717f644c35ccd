package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

type policyRepoStub struct {
	policies map[string]*models.PostponementPolicy
	deleted  []string
}

func newPolicyRepoStub(policies ...*models.PostponementPolicy) *policyRepoStub {
	s := &policyRepoStub{policies: map[string]*models.PostponementPolicy{}}
	for _, p := range policies {
		s.policies[p.CourseID] = p
	}
	return s
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
	s.deleted = append(s.deleted, courseID)
	return nil
}

func intPtr(n int) *int { return &n }

func TestPolicyEffective(t *testing.T) {
	courses := &courseCatalogStub{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Title: "Working at Heights"},
		"course-2": {
			ID:                     "course-2",
			Title:                  "Confined Spaces",
			DefaultMinimumRequired: intPtr(10),
			DefaultDeadlineDays:    intPtr(5),
			PolicyMessage:          "minimum 10 por normativa",
		},
	}}

	t.Run("explicit row wins", func(t *testing.T) {
		repo := newPolicyRepoStub(&models.PostponementPolicy{
			CourseID:        "course-1",
			MinimumRequired: 8,
			DeadlineDays:    3,
		})
		svc := NewPolicyService(repo, courses, nil, nil)

		pol, err := svc.Effective(context.Background(), "course-1")
		require.NoError(t, err)
		assert.Equal(t, 8, pol.MinimumRequired)
		assert.Equal(t, 3, pol.DeadlineDays)
	})

	t.Run("course defaults override package defaults", func(t *testing.T) {
		svc := NewPolicyService(newPolicyRepoStub(), courses, nil, nil)

		pol, err := svc.Effective(context.Background(), "course-2")
		require.NoError(t, err)
		assert.Equal(t, 10, pol.MinimumRequired)
		assert.Equal(t, 5, pol.DeadlineDays)
		assert.Equal(t, "minimum 10 por normativa", pol.CustomMessage)
	})

	t.Run("package defaults for a plain course", func(t *testing.T) {
		svc := NewPolicyService(newPolicyRepoStub(), courses, nil, nil)

		pol, err := svc.Effective(context.Background(), "course-1")
		require.NoError(t, err)
		assert.Equal(t, models.DefaultMinimumRequired, pol.MinimumRequired)
		assert.Equal(t, models.DefaultDeadlineDays, pol.DeadlineDays)
		assert.True(t, pol.NotifyUsers)
		assert.False(t, pol.EnableAutoPostponement)
	})

	t.Run("unknown course still resolves to defaults", func(t *testing.T) {
		svc := NewPolicyService(newPolicyRepoStub(), courses, nil, nil)

		pol, err := svc.Effective(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Equal(t, models.DefaultMinimumRequired, pol.MinimumRequired)
	})
}

func TestPolicyUpsert(t *testing.T) {
	courses := &courseCatalogStub{courses: map[string]*models.Course{
		"course-1": {ID: "course-1"},
	}}

	t.Run("saves the policy", func(t *testing.T) {
		repo := newPolicyRepoStub()
		svc := NewPolicyService(repo, courses, nil, nil)

		pol, err := svc.Upsert(context.Background(), "course-1", UpsertPolicyRequest{
			MinimumRequired:        8,
			DeadlineDays:           3,
			EnableAutoPostponement: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "course-1", pol.CourseID)
		require.NotNil(t, repo.policies["course-1"])
		assert.True(t, repo.policies["course-1"].EnableAutoPostponement)
	})

	t.Run("unknown course", func(t *testing.T) {
		svc := NewPolicyService(newPolicyRepoStub(), courses, nil, nil)

		_, err := svc.Upsert(context.Background(), "ghost", UpsertPolicyRequest{
			MinimumRequired: 8,
			DeadlineDays:    3,
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	})

	t.Run("minimum must be at least one", func(t *testing.T) {
		svc := NewPolicyService(newPolicyRepoStub(), courses, nil, nil)

		_, err := svc.Upsert(context.Background(), "course-1", UpsertPolicyRequest{
			MinimumRequired: 0,
			DeadlineDays:    3,
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})
}

func TestPolicyGetAndDelete(t *testing.T) {
	courses := &courseCatalogStub{courses: map[string]*models.Course{"course-1": {ID: "course-1"}}}
	repo := newPolicyRepoStub(&models.PostponementPolicy{CourseID: "course-1", MinimumRequired: 8, DeadlineDays: 3})
	svc := NewPolicyService(repo, courses, nil, nil)

	pol, err := svc.Get(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, 8, pol.MinimumRequired)

	require.NoError(t, svc.Delete(context.Background(), "course-1"))
	assert.Equal(t, []string{"course-1"}, repo.deleted)

	_, err = svc.Get(context.Background(), "course-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
