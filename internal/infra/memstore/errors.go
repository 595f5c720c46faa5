package memstore

import "errors"

var errNotFound = errors.New("memstore: not found")
