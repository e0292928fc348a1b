package service

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/user-registry/internal/errs"
	"github.com/deppfellow/user-registry/internal/middleware"
	"github.com/deppfellow/user-registry/internal/model/user"
	"github.com/deppfellow/user-registry/internal/repository"
	"github.com/deppfellow/user-registry/internal/server"
)

const (
	codeUserAlreadyExists = "USER_ALREADY_EXISTS"
	codeUserNotFound      = "USER_NOT_FOUND"
)

// UserStore is the storage the user service needs.
// *repository.UserRepository implements it.
type UserStore interface {
	Insert(ctx context.Context, u user.User) error
	FindByID(ctx context.Context, id int64) (user.User, bool, error)
	FindAll(ctx context.Context) ([]user.User, error)
}

// UserService validates payloads, talks to the store and translates its
// errors into errs.HTTPError values.
type UserService struct {
	server *server.Server
	store  UserStore
}

func NewUserService(s *server.Server, store UserStore) *UserService {
	return &UserService{
		server: s,
		store:  store,
	}
}

// CreateUser validates p, stores it and returns the stored record as read
// back from the database. Nothing is written when validation fails.
func (s *UserService) CreateUser(c echo.Context, p *user.Payload) (*user.Payload, error) {
	logger := middleware.GetLogger(c)
	ctx := c.Request().Context()

	u, err := user.FromExternal(*p)
	if err != nil {
		logger.Warn().Err(err).Msg("rejected user payload")
		return nil, validationHTTPError(err)
	}

	if err := s.store.Insert(ctx, u); err != nil {
		if repository.IsDuplicateKey(err) {
			code := codeUserAlreadyExists
			return nil, errs.NewBadRequestError(err.Error(), true, &code, []errs.FieldError{
				{Field: "id", Error: "already exists"},
			})
		}

		logger.Error().Stack().Err(err).Int64("user_id", u.ID).Msg("failed to insert user")
		return nil, errs.NewInternalServerError()
	}

	stored, found, err := s.store.FindByID(ctx, u.ID)
	if err != nil {
		logger.Error().Stack().Err(err).Int64("user_id", u.ID).Msg("failed to read back created user")
		return nil, errs.NewInternalServerError()
	}
	if !found {
		logger.Error().Int64("user_id", u.ID).Msg("created user not found on read back")
		return nil, errs.NewInternalServerError()
	}

	logger.Info().Int64("user_id", stored.ID).Msg("user created")

	out := stored.ToExternal()
	return &out, nil
}

// GetUser returns the user with the given ID, or a 404 error.
func (s *UserService) GetUser(c echo.Context, id int64) (*user.Payload, error) {
	logger := middleware.GetLogger(c)

	u, found, err := s.store.FindByID(c.Request().Context(), id)
	if err != nil {
		logger.Error().Stack().Err(err).Int64("user_id", id).Msg("failed to fetch user")
		return nil, errs.NewInternalServerError()
	}

	if !found {
		code := codeUserNotFound
		return nil, errs.NewNotFoundError("user not found", true, &code)
	}

	out := u.ToExternal()
	return &out, nil
}

// ListUsers returns every stored user, in no particular order.
func (s *UserService) ListUsers(c echo.Context) ([]user.Payload, error) {
	users, err := s.store.FindAll(c.Request().Context())
	if err != nil {
		middleware.GetLogger(c).Error().Stack().Err(err).Msg("failed to list users")
		return nil, errs.NewInternalServerError()
	}

	return user.ToExternalList(users), nil
}

// validationHTTPError maps a payload error to a 422 for structural problems
// and a 400 for rejected values.
func validationHTTPError(err error) error {
	var vErr *user.ValidationError
	if !errors.As(err, &vErr) {
		return errs.NewBadRequestError(err.Error(), true, nil, nil)
	}

	if errors.Is(err, user.ErrMissingField) {
		return errs.NewUnprocessableEntityError("Validation failed: "+vErr.Error(), []errs.FieldError{
			{Field: vErr.Field, Error: vErr.Reason},
		})
	}

	return errs.ValidationError(vErr.Field, vErr.Reason)
}
