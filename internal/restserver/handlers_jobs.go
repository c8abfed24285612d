package restserver

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kiwibes/kiwibesd/internal/catalog"
	"github.com/kiwibes/kiwibesd/internal/kerrors"
)

// jobDefinitionRequest is the decoded body of create/edit calls.
// Program arrives either as a repeated form field or as a single
// JSON-encoded array string, per the request contract in §6.
type jobDefinitionRequest struct {
	Program    []string `form:"program" json:"program" validate:"required,min=1,dive,required"`
	Schedule   string   `form:"schedule" json:"schedule"`
	MaxRuntime int64    `form:"max-runtime" json:"max-runtime" validate:"min=0"`
}

// jobDetailResponse is every field listed in §3's data model, the
// shape job detail responses must include.
type jobDetailResponse struct {
	Name         string   `json:"name"`
	Program      []string `json:"program"`
	Schedule     string   `json:"schedule"`
	MaxRuntime   int64    `json:"max-runtime"`
	Status       string   `json:"status"`
	StartTime    int64    `json:"start-time"`
	NbrRuns      int64    `json:"nbr-runs"`
	AvgRuntime   float64  `json:"avg-runtime"`
	VarRuntime   float64  `json:"var-runtime"`
	PendingStart int64    `json:"pending-start"`
}

func toDetailResponse(j *catalog.Job) jobDetailResponse {
	return jobDetailResponse{
		Name:         j.Name,
		Program:      j.Program,
		Schedule:     j.Schedule,
		MaxRuntime:   j.MaxRuntime,
		Status:       string(j.Status),
		StartTime:    j.StartTime,
		NbrRuns:      j.NbrRuns,
		AvgRuntime:   j.AvgRuntime,
		VarRuntime:   j.VarRuntime,
		PendingStart: j.PendingStart,
	}
}

// handleJobsList answers GET /rest/jobs/list (no auth required).
func (s *Server) handleJobsList(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalog.List())
}

// handleJobsScheduled answers GET /rest/jobs/scheduled (no auth
// required).
func (s *Server) handleJobsScheduled(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalog.Scheduled())
}

// handleJobDetails answers GET /rest/job/details/:name.
func (s *Server) handleJobDetails(c echo.Context) error {
	name := c.Param("name")

	job, err := s.catalog.Details(name)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDetailResponse(job))
}

// handleJobCreate answers POST /rest/job/create/:name.
func (s *Server) handleJobCreate(c echo.Context) error {
	name := c.Param("name")

	req, err := decodeJobDefinition(c)
	if err != nil {
		return writeError(c, kerrors.New(kerrors.JobDescriptionInvalid, err.Error()))
	}

	def := catalog.Definition{Program: req.Program, Schedule: req.Schedule, MaxRuntime: req.MaxRuntime}
	if err := s.catalog.Create(name, def); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{})
}

// handleJobEdit answers POST /rest/job/edit/:name.
func (s *Server) handleJobEdit(c echo.Context) error {
	name := c.Param("name")

	req, err := decodeJobDefinition(c)
	if err != nil {
		return writeError(c, kerrors.New(kerrors.JobDescriptionInvalid, err.Error()))
	}

	def := catalog.Definition{Program: req.Program, Schedule: req.Schedule, MaxRuntime: req.MaxRuntime}
	if err := s.catalog.Edit(name, def); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{})
}

// handleJobStart answers POST /rest/job/start/:name.
func (s *Server) handleJobStart(c echo.Context) error {
	name := c.Param("name")
	if err := s.executor.Start(name); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{})
}

// handleJobStop answers POST /rest/job/stop/:name.
func (s *Server) handleJobStop(c echo.Context) error {
	name := c.Param("name")
	if err := s.executor.Stop(name); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{})
}

// handleJobDelete answers POST /rest/job/delete/:name.
func (s *Server) handleJobDelete(c echo.Context) error {
	name := c.Param("name")
	if err := s.catalog.Delete(name); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{})
}

// handleJobClearPending answers POST /rest/job/clear_pending/:name.
func (s *Server) handleJobClearPending(c echo.Context) error {
	name := c.Param("name")
	if err := s.executor.ClearPending(name); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{})
}

// decodeJobDefinition accepts program either as a repeated form field
// ("program=a&program=b") or as a single JSON-encoded array value
// ("program=[\"a\",\"b\"]"), per the request contract in §6.
func decodeJobDefinition(c echo.Context) (*jobDefinitionRequest, error) {
	req := &jobDefinitionRequest{}

	if err := c.Bind(req); err != nil {
		return nil, err
	}

	// echo's form binder already fills req.Program if "program" was
	// repeated. If it instead arrived as a single JSON-array-shaped
	// value, req.Program will contain one element that looks like
	// "[...]" — detect and re-decode it.
	if len(req.Program) == 1 && looksLikeJSONArray(req.Program[0]) {
		var arr []string
		if err := json.Unmarshal([]byte(req.Program[0]), &arr); err == nil {
			req.Program = arr
		}
	}

	if err := c.Validate(req); err != nil {
		return nil, err
	}

	return req, nil
}

func looksLikeJSONArray(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '\t' {
			continue
		}
		return r == '['
	}
	return false
}
