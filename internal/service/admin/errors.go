package admin

import "errors"

var ErrClosureNotFound = errors.New("closure not found")
