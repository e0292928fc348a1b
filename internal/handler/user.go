package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/user-registry/internal/model/user"
	"github.com/deppfellow/user-registry/internal/server"
	"github.com/deppfellow/user-registry/internal/service"
)

type UserHandler struct {
	Handler
	userService *service.UserService
}

func NewUserHandler(s *server.Server, userService *service.UserService) *UserHandler {
	return &UserHandler{
		Handler:     NewHandler(s),
		userService: userService,
	}
}

// GetUserRequest carries the :id path parameter. A non-integer id fails
// binding and is answered with a 422.
type GetUserRequest struct {
	ID int64 `param:"id"`
}

func (r *GetUserRequest) Validate() error {
	return nil
}

// ListUsersRequest has no parameters.
type ListUsersRequest struct{}

func (r *ListUsersRequest) Validate() error {
	return nil
}

func (h *UserHandler) CreateUser(c echo.Context, payload *user.Payload) (*user.Payload, error) {
	return h.userService.CreateUser(c, payload)
}

func (h *UserHandler) GetUser(c echo.Context, req *GetUserRequest) (*user.Payload, error) {
	return h.userService.GetUser(c, req.ID)
}

func (h *UserHandler) GetUsers(c echo.Context, _ *ListUsersRequest) ([]user.Payload, error) {
	return h.userService.ListUsers(c)
}
