package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/DjordjeVuckovic/etl-runner/internal/apperr"
	"github.com/DjordjeVuckovic/etl-runner/internal/output"
	"github.com/DjordjeVuckovic/etl-runner/internal/task"
	"github.com/labstack/echo/v4"
)

type TaskRunner interface {
	List() []task.Definition
	Get(name string) (task.Definition, bool)
	Validate(name string) error
	Run(ctx context.Context, out output.Writer, name string) (bool, error)
}

type TaskResponse struct {
	Name        string `json:"name" example:"customer_import"`
	Description string `json:"description,omitempty" example:"Nightly customer import"`
	Batch       bool   `json:"batch"`
	Extractor   string `json:"extractor" example:"csv"`
	Transformer string `json:"transformer" example:"mapping"`
	Loader      string `json:"loader" example:"pg"`
}

func newTaskResponse(d task.Definition) TaskResponse {
	return TaskResponse{
		Name:        d.Name,
		Description: d.Description,
		Batch:       d.Batch,
		Extractor:   d.Extractor.Name,
		Transformer: d.Transformer.Name,
		Loader:      d.Loader.Name,
	}
}

type TaskRouter struct {
	e      *echo.Echo
	runner TaskRunner
}

func NewTaskRouter(e *echo.Echo, runner TaskRunner) *TaskRouter {
	return &TaskRouter{
		e:      e,
		runner: runner,
	}
}

func (r *TaskRouter) Bind() {
	g := r.e.Group("/tasks")
	g.GET("", r.listHandler)
	g.GET("/:name", r.getHandler)
	g.GET("/:name/run", r.runHandler)
}

// listHandler godoc
// @Summary List tasks
// @Description Lists the ETL tasks loaded from TASKS_PATH, sorted by name
// @Tags tasks
// @Produce json
// @Success 200 {array} TaskResponse
// @Router /tasks [get]
func (r *TaskRouter) listHandler(c echo.Context) error {
	defs := r.runner.List()
	res := make([]TaskResponse, 0, len(defs))
	for _, d := range defs {
		res = append(res, newTaskResponse(d))
	}
	return c.JSON(http.StatusOK, res)
}

// getHandler godoc
// @Summary Get task
// @Tags tasks
// @Produce json
// @Param name path string true "Task name"
// @Success 200 {object} TaskResponse
// @Failure 404 {object} map[string]string
// @Router /tasks/{name} [get]
func (r *TaskRouter) getHandler(c echo.Context) error {
	d, ok := r.runner.Get(c.Param("name"))
	if !ok {
		return apperr.NewNotFound("task", c.Param("name"))
	}
	return c.JSON(http.StatusOK, newTaskResponse(d))
}

// runHandler godoc
// @Summary Run task
// @Description Runs the task and streams its output as server-sent events
// @Tags tasks
// @Produce text/event-stream
// @Param name path string true "Task name"
// @Success 200 {string} string "event stream"
// @Failure 404 {object} map[string]string
// @Router /tasks/{name}/run [get]
func (r *TaskRouter) runHandler(c echo.Context) error {
	name := c.Param("name")
	if _, ok := r.runner.Get(name); !ok {
		return apperr.NewNotFound("task", name)
	}
	if err := r.runner.Validate(name); err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	out := output.NewEventSource(res)
	ok, err := r.runner.Run(c.Request().Context(), out, name)
	if err != nil {
		slog.Error("Task run failed", "task", name, "error", err)
		out.Tagged(output.TagError, err.Error())
		return nil
	}
	if !ok {
		out.Tagged(output.TagError, fmt.Sprintf("Task [%s] failed.", name))
	}
	return nil
}
