// Course resource client
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/shared"
)

const coursesPath = "/api/courses"

// CourseService binds the course endpoints used by the scan monitor and the CLI.
type CourseService struct {
	api *APIService
}

// NewCourseService creates a course client on top of api.
func NewCourseService(api *APIService) *CourseService {
	return &CourseService{api: api}
}

// GetCourse fetches a single course.
//
// Calls GET /api/courses/{id}. A 404 maps to [shared.ErrCourseNotFound].
func (c *CourseService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: course id", shared.ErrMissingArgument)
	}

	var course models.Course
	err := c.api.doJSON(ctx, http.MethodGet, coursesPath+"/"+url.PathEscape(id), nil, &course)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %w", shared.ErrCourseNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// ListCourses fetches one page of courses.
//
// Calls GET /api/courses?page={page}&perPage={perPage}. Non-positive values are left to the server default.
func (c *CourseService) ListCourses(ctx context.Context, page, perPage int) (*models.CourseList, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("perPage", strconv.Itoa(perPage))
	}

	path := coursesPath
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list models.CourseList
	if err := c.api.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
