package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/user-registry/internal/handler"
	"github.com/deppfellow/user-registry/internal/model/user"
)

func registerUserRoutes(r *echo.Echo, h *handler.Handlers) {
	users := r.Group("/users")

	users.GET("", handler.Handle(h.User.Handler, h.User.GetUsers, http.StatusOK, &handler.ListUsersRequest{}))
	users.GET("/:id", handler.Handle(h.User.Handler, h.User.GetUser, http.StatusOK, &handler.GetUserRequest{}))
	users.POST("", handler.Handle(h.User.Handler, h.User.CreateUser, http.StatusCreated, &user.Payload{}))
}
