// Package trackingapi serves a tracking.Tracker over HTTP and provides the
// matching client, so steps on separate machines share one store.
package trackingapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/labstack/echo/v4"
)

const apiRoot = "/api/v1"

// maxArtifactBytes bounds uploaded artifact bodies.
const maxArtifactBytes = 64 << 20

type nameBody struct {
	Name string `json:"name"`
}

type statusBody struct {
	Status tracking.RunStatus `json:"status"`
}

type kvBody struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metricBody struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

type registerBody struct {
	Source string `json:"source"`
	RunID  string `json:"run_id"`
}

// #region server
// NewServer returns an echo instance routing the tracking API onto t.
func NewServer(t tracking.Tracker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	log := logging.New("trackingapi")
	e.Use(logRequests(log))

	api := e.Group(apiRoot)
	api.POST("/experiments", createExperiment(t))
	api.GET("/experiments", listExperiments(t))
	api.GET("/experiments/by-name/:name", getExperimentByName(t))
	api.POST("/experiments/:experimentId/runs", startRun(t))
	api.GET("/experiments/:experimentId/runs", searchRuns(t))

	api.GET("/runs/:runId", getRun(t))
	api.PUT("/runs/:runId/status", endRun(t))
	api.POST("/runs/:runId/params", logParam(t))
	api.POST("/runs/:runId/metrics", logMetric(t))
	api.POST("/runs/:runId/tags", setTag(t))
	api.PUT("/runs/:runId/artifact", putArtifact(t))
	api.GET("/runs/:runId/artifact", getArtifact(t))

	api.POST("/models/:name/versions", registerModel(t))
	api.GET("/models/:name/versions", listModelVersions(t))
	return e
}

// #endregion server

func logRequests(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			begin := time.Now()
			err := next(c)
			log.Debug("request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"elapsed", time.Since(begin),
				"error", err,
			)
			return err
		}
	}
}

// pathParam returns an unescaped path parameter.
func pathParam(c echo.Context, name string) string {
	raw := c.Param(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// #region handlers
func createExperiment(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body nameBody
		if err := c.Bind(&body); err != nil || body.Name == "" {
			return badRequest("experiment name is required", err)
		}
		exp, err := t.CreateExperiment(c.Request().Context(), body.Name)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, exp)
	}
}

func listExperiments(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		exps, err := t.ListExperiments(c.Request().Context())
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, exps)
	}
}

func getExperimentByName(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		exp, err := t.GetExperimentByName(c.Request().Context(), pathParam(c, "name"))
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, exp)
	}
}

func startRun(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body nameBody
		if err := c.Bind(&body); err != nil {
			return badRequest("can not understand the requested json", err)
		}
		run, err := t.StartRun(c.Request().Context(), pathParam(c, "experimentId"), body.Name)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusCreated, run)
	}
}

func searchRuns(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		max := 0
		if raw := c.QueryParam("max_results"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return badRequest("max_results must be an integer", err)
			}
			max = n
		}
		runs, err := t.SearchRuns(c.Request().Context(), pathParam(c, "experimentId"), max)
		if err != nil {
			return storeError(err)
		}
		if runs == nil {
			runs = []tracking.Run{}
		}
		return c.JSON(http.StatusOK, runs)
	}
}

func getRun(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		run, err := t.GetRun(c.Request().Context(), pathParam(c, "runId"))
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, run)
	}
}

func endRun(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body statusBody
		if err := c.Bind(&body); err != nil || body.Status == "" {
			return badRequest("status is required", err)
		}
		if err := t.EndRun(c.Request().Context(), pathParam(c, "runId"), body.Status); err != nil {
			return storeError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func logParam(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body kvBody
		if err := c.Bind(&body); err != nil || body.Key == "" {
			return badRequest("param key is required", err)
		}
		if err := t.LogParam(c.Request().Context(), pathParam(c, "runId"), body.Key, body.Value); err != nil {
			return storeError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func logMetric(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body metricBody
		if err := c.Bind(&body); err != nil || body.Key == "" {
			return badRequest("metric key is required", err)
		}
		if err := t.LogMetric(c.Request().Context(), pathParam(c, "runId"), body.Key, body.Value); err != nil {
			return storeError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func setTag(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body kvBody
		if err := c.Bind(&body); err != nil || body.Key == "" {
			return badRequest("tag key is required", err)
		}
		if err := t.SetTag(c.Request().Context(), pathParam(c, "runId"), body.Key, body.Value); err != nil {
			return storeError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func putArtifact(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.QueryParam("path")
		if path == "" {
			return badRequest("artifact path is required", nil)
		}
		data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxArtifactBytes+1))
		if err != nil {
			return badRequest("can not read artifact body", err)
		}
		if len(data) > maxArtifactBytes {
			return newError(http.StatusRequestEntityTooLarge, "artifact too large", nil)
		}
		if err := t.LogArtifact(c.Request().Context(), pathParam(c, "runId"), path, data); err != nil {
			return storeError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getArtifact(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.QueryParam("path")
		if path == "" {
			return badRequest("artifact path is required", nil)
		}
		data, err := t.GetArtifact(c.Request().Context(), pathParam(c, "runId"), path)
		if err != nil {
			return storeError(err)
		}
		return c.Blob(http.StatusOK, echo.MIMEOctetStream, data)
	}
}

func registerModel(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body registerBody
		if err := c.Bind(&body); err != nil || body.RunID == "" {
			return badRequest("run_id is required", err)
		}
		if body.Source == "" {
			body.Source = tracking.ModelURI(body.RunID)
		}
		mv, err := t.RegisterModel(c.Request().Context(), pathParam(c, "name"), body.Source, body.RunID)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusCreated, mv)
	}
}

func listModelVersions(t tracking.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		versions, err := t.ListModelVersions(c.Request().Context(), pathParam(c, "name"))
		if err != nil {
			return storeError(err)
		}
		if versions == nil {
			versions = []tracking.ModelVersion{}
		}
		return c.JSON(http.StatusOK, versions)
	}
}

// #endregion handlers
