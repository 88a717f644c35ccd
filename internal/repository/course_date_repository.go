package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
)

const courseDateColumns = `id, course_id, start_date, end_date, capacity, enrolled_count, minimum_required,
        instructor, location, meeting_url, zoom_meeting_id, zoom_password, status, enrolled_user_ids,
        notes, metadata, version, created_at, updated_at`

// CourseDateRepository handles persistence of scheduled sessions.
type CourseDateRepository struct {
	db *sqlx.DB
}

// NewCourseDateRepository constructs the repository.
func NewCourseDateRepository(db *sqlx.DB) *CourseDateRepository {
	return &CourseDateRepository{db: db}
}

// Create persists a new course date.
func (r *CourseDateRepository) Create(ctx context.Context, cd *models.CourseDate) error {
	if cd.ID == "" {
		cd.ID = uuid.NewString()
	}
	if cd.Status == "" {
		cd.Status = models.CourseDateStatusScheduled
	}
	if cd.Metadata == nil {
		cd.Metadata = models.Metadata{}
	}
	now := time.Now().UTC()
	cd.CreatedAt = now
	cd.UpdatedAt = now

	const query = `INSERT INTO course_dates (id, course_id, start_date, end_date, capacity, enrolled_count,
        minimum_required, instructor, location, meeting_url, zoom_meeting_id, zoom_password, status,
        enrolled_user_ids, notes, metadata, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $18)`
	_, err := r.db.ExecContext(ctx, query,
		cd.ID, cd.CourseID, cd.StartDate, cd.EndDate, cd.Capacity, cd.EnrolledCount,
		cd.MinimumRequired, cd.Instructor, cd.Location, cd.MeetingURL, cd.ZoomMeetingID,
		cd.ZoomPassword, cd.Status, cd.EnrolledUserIDs, cd.Notes, cd.Metadata, cd.CreatedAt, cd.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create course date: %w", err)
	}
	cd.Version = 1
	return nil
}

// FindByID returns a course date by its ID.
func (r *CourseDateRepository) FindByID(ctx context.Context, id string) (*models.CourseDate, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_dates WHERE id = $1`, courseDateColumns)
	var cd models.CourseDate
	if err := r.db.GetContext(ctx, &cd, query, id); err != nil {
		return nil, err
	}
	return &cd, nil
}

// FindDetailByID returns a course date joined with its course.
func (r *CourseDateRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDateDetail, error) {
	const query = `SELECT cd.*, c.title AS course_title, c.category AS course_category
        FROM course_dates cd
        JOIN courses c ON c.id = cd.course_id
        WHERE cd.id = $1`
	var detail models.CourseDateDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns course dates filtered by the provided criteria.
func (r *CourseDateRepository) List(ctx context.Context, filter models.CourseDateFilter) ([]models.CourseDateDetail, int, error) {
	base := `FROM course_dates cd JOIN courses c ON c.id = cd.course_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("cd.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("cd.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.StartDateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("cd.start_date >= $%d", len(args)+1))
		args = append(args, *filter.StartDateFrom)
	}
	if filter.StartDateTo != nil {
		conditions = append(conditions, fmt.Sprintf("cd.start_date <= $%d", len(args)+1))
		args = append(args, *filter.StartDateTo)
	}
	if filter.Featured != nil {
		conditions = append(conditions, fmt.Sprintf("c.featured = $%d", len(args)+1))
		args = append(args, *filter.Featured)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT cd.*, c.title AS course_title, c.category AS course_category
        %s ORDER BY cd.start_date ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var dates []models.CourseDateDetail
	if err := r.db.SelectContext(ctx, &dates, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list course dates: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count course dates: %w", err)
	}
	return dates, total, nil
}

// ListUpcoming returns scheduled or confirmed sessions starting after now.
func (r *CourseDateRepository) ListUpcoming(ctx context.Context, limit int) ([]models.CourseDateDetail, error) {
	query := `SELECT cd.*, c.title AS course_title, c.category AS course_category
        FROM course_dates cd
        JOIN courses c ON c.id = cd.course_id
        WHERE cd.start_date > NOW() AND cd.status IN ($1, $2)
        ORDER BY cd.start_date ASC`
	args := []interface{}{models.CourseDateStatusScheduled, models.CourseDateStatusConfirmed}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var dates []models.CourseDateDetail
	if err := r.db.SelectContext(ctx, &dates, query, args...); err != nil {
		return nil, fmt.Errorf("list upcoming course dates: %w", err)
	}
	return dates, nil
}

// ListScheduledBetween returns scheduled sessions starting inside (from, to].
// This is the sweep's selection query.
func (r *CourseDateRepository) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]models.CourseDate, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_dates
        WHERE status = $1 AND start_date > $2 AND start_date <= $3
        ORDER BY start_date ASC`, courseDateColumns)
	var dates []models.CourseDate
	if err := r.db.SelectContext(ctx, &dates, query, models.CourseDateStatusScheduled, from, to); err != nil {
		return nil, fmt.Errorf("list scheduled course dates: %w", err)
	}
	return dates, nil
}

// ListConfirmedStartingBetween returns confirmed sessions starting inside
// [from, to]. Used by the reminder task.
func (r *CourseDateRepository) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]models.CourseDate, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_dates
        WHERE status = $1 AND start_date >= $2 AND start_date <= $3
        ORDER BY start_date ASC`, courseDateColumns)
	var dates []models.CourseDate
	if err := r.db.SelectContext(ctx, &dates, query, models.CourseDateStatusConfirmed, from, to); err != nil {
		return nil, fmt.Errorf("list confirmed course dates: %w", err)
	}
	return dates, nil
}

// FindByCourseAndDay returns the earliest open session of a course starting
// on the given calendar day. Company purchases reference dates by day, not ID.
func (r *CourseDateRepository) FindByCourseAndDay(ctx context.Context, courseID string, day time.Time) (*models.CourseDate, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := fmt.Sprintf(`SELECT %s FROM course_dates
        WHERE course_id = $1 AND start_date >= $2 AND start_date < $3 AND status IN ($4, $5)
        ORDER BY start_date ASC LIMIT 1`, courseDateColumns)
	var cd models.CourseDate
	err := r.db.GetContext(ctx, &cd, query, courseID, dayStart, dayEnd,
		models.CourseDateStatusScheduled, models.CourseDateStatusConfirmed)
	if err != nil {
		return nil, err
	}
	return &cd, nil
}

// UpdateSeats writes back enrolled_count, status and roster under optimistic
// locking. ErrVersionConflict means another writer got there first; the caller
// must re-read and retry. Every seat mutation in the system goes through here.
func (r *CourseDateRepository) UpdateSeats(ctx context.Context, cd *models.CourseDate) error {
	const query = `UPDATE course_dates
        SET enrolled_count = $1, status = $2, enrolled_user_ids = $3, version = version + 1, updated_at = NOW()
        WHERE id = $4 AND version = $5`
	res, err := r.db.ExecContext(ctx, query, cd.EnrolledCount, cd.Status, cd.EnrolledUserIDs, cd.ID, cd.Version)
	if err != nil {
		return fmt.Errorf("update course date seats: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course date seats: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	cd.Version++
	return nil
}

// UpdateDetails patches the schedule fields an admin may edit. Seat counts
// and status are out of bounds here.
func (r *CourseDateRepository) UpdateDetails(ctx context.Context, cd *models.CourseDate) error {
	const query = `UPDATE course_dates
        SET start_date = $1, end_date = $2, capacity = $3, minimum_required = $4, instructor = $5,
            location = $6, meeting_url = $7, zoom_meeting_id = $8, zoom_password = $9, notes = $10,
            version = version + 1, updated_at = NOW()
        WHERE id = $11`
	res, err := r.db.ExecContext(ctx, query, cd.StartDate, cd.EndDate, cd.Capacity, cd.MinimumRequired,
		cd.Instructor, cd.Location, cd.MeetingURL, cd.ZoomMeetingID, cd.ZoomPassword, cd.Notes, cd.ID)
	if err != nil {
		return fmt.Errorf("update course date: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetStatus transitions the lifecycle status. The version bump makes any
// in-flight seat update retry against the new state.
func (r *CourseDateRepository) SetStatus(ctx context.Context, id string, status models.CourseDateStatus) error {
	const query = `UPDATE course_dates SET status = $1, version = version + 1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("set course date status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetStatusAndMetadata transitions status and replaces metadata atomically,
// used by the postpone and cancel transitions.
func (r *CourseDateRepository) SetStatusAndMetadata(ctx context.Context, id string, status models.CourseDateStatus, meta models.Metadata) error {
	const query = `UPDATE course_dates SET status = $1, metadata = $2, version = version + 1, updated_at = NOW() WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, meta, id)
	if err != nil {
		return fmt.Errorf("set course date status and metadata: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
