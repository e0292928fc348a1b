// Package service holds the business rules between the handlers and the
// repositories: payload validation, storage calls and the mapping of
// storage outcomes to HTTP errors.
package service

import (
	"github.com/deppfellow/user-registry/internal/repository"
	"github.com/deppfellow/user-registry/internal/server"
)

type Services struct {
	User *UserService
}

func NewServices(s *server.Server, repos *repository.Repositories) (*Services, error) {
	return &Services{
		User: NewUserService(s, repos.User),
	}, nil
}
