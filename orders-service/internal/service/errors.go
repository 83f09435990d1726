package service

import (
	"errors"

	"github.com/fjod/mood_store/orders-service/internal/repository"
)

var (
	ErrOrderNotFound   = repository.ErrOrderNotFound
	ErrProfileNotFound = repository.ErrProfileNotFound
	ErrUnauthenticated = errors.New("no authenticated user")
)
