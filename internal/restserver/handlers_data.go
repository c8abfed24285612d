package restserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kiwibes/kiwibesd/internal/kerrors"
)

type dataWriteRequest struct {
	Value string `form:"value" json:"value"`
}

// handleDataRead answers GET /rest/data/read/:key.
func (s *Server) handleDataRead(c echo.Context) error {
	key := c.Param("key")

	value, err := s.datastore.Read(key)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"value": value})
}

// handleDataWrite answers POST /rest/data/write/:key.
func (s *Server) handleDataWrite(c echo.Context) error {
	key := c.Param("key")

	req := &dataWriteRequest{}
	if err := c.Bind(req); err != nil {
		return writeError(c, kerrors.New(kerrors.JSONParseFail, err.Error()))
	}

	if err := s.datastore.Write(key, req.Value); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{})
}

// handleDataClear answers POST /rest/data/clear/:key.
func (s *Server) handleDataClear(c echo.Context) error {
	key := c.Param("key")
	if err := s.datastore.Clear(key); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{})
}

// handleDataClearAll answers POST /rest/data/clear_all.
func (s *Server) handleDataClearAll(c echo.Context) error {
	count := s.datastore.ClearAll()
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

// handleDataKeys answers GET /rest/data/keys.
func (s *Server) handleDataKeys(c echo.Context) error {
	return c.JSON(http.StatusOK, s.datastore.Keys())
}
