// Package repository holds the SQL that reads and writes application data,
// keeping it out of the service layer.
package repository

import (
	"github.com/deppfellow/user-registry/internal/server"
)

// Repositories is a container for all repository instances.
type Repositories struct {
	User *UserRepository
}

// NewRepositories builds the repositories on top of the server's database.
func NewRepositories(s *server.Server) *Repositories {
	return &Repositories{
		User: NewUserRepository(s.DB),
	}
}
