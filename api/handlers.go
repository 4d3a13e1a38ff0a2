package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Takmim00/Task-Managements-server/domain"
)

const putTaskMaxSize = 64 * 1024 // 64 KiB

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, eng Engine, users Users, logger *log.Logger) {
	e.GET("/", root)
	e.GET("/healthz", healthz)

	e.POST("/tasks", postTask(eng))
	e.GET("/tasks", getTasks(eng))
	e.GET("/messages/:category", getMessages(eng))
	e.PUT("/tasks/:id", putTask(eng))
	e.DELETE("/tasks/:id", deleteTask(eng))

	e.POST("/users", postUser(users))
	e.GET("/users", getUsers(users))

	e.GET("/ws", serveWS(eng, logger))
	e.GET("/stream/:category", streamCategory(eng, logger))
}

func root(c echo.Context) error {
	return c.String(http.StatusOK, "task management is running")
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

type createTaskRequest struct {
	Category string `json:"category"`
	Title    string `json:"title"`
}

func postTask(eng Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createTaskRequest
		if err := c.Bind(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, err := eng.Create(c.Request().Context(), req.Category, req.Title)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func getTasks(eng Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks, err := eng.List(c.Request().Context())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, tasks)
	}
}

func getMessages(eng Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks, err := eng.Messages(c.Request().Context(), c.Param("category"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, tasks)
	}
}

func putTask(eng Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		lr := io.LimitReader(c.Request().Body, putTaskMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var patch domain.TaskPatch
		if err := dec.Decode(&patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, err := eng.Edit(c.Request().Context(), c.Param("id"), patch)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(eng Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := eng.Delete(c.Request().Context(), c.Param("id")); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Photo string `json:"photo"`
}

type userResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    *domain.User `json:"user,omitempty"`
}

func postUser(users Users) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createUserRequest
		if err := c.Bind(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Email == "" {
			return c.String(http.StatusBadRequest, "email is required")
		}
		u, created, err := users.CreateUser(c.Request().Context(), domain.User{
			Name:  req.Name,
			Email: req.Email,
			Photo: req.Photo,
		})
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if !created {
			return c.JSON(http.StatusOK, userResponse{Success: false, Message: "User already exists."})
		}
		return c.JSON(http.StatusOK, userResponse{Success: true, Message: "User added successfully.", User: &u})
	}
}

func getUsers(users Users) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := users.ListUsers(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, list)
	}
}

func writeError(c echo.Context, err error) error {
	var verr domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.String(http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, "task not found")
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}
