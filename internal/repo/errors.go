package repo

import "errors"

// Ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись с таким ID уже есть.
	ErrAlreadyExists = errors.New("already exists")
)
