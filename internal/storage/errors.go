// Package storage provides durable persistence for bot settings and
// tracked orders.
package storage

import "errors"

// ErrOrderNotFound is returned when an operation references an order_id
// that does not exist in the store.
var ErrOrderNotFound = errors.New("storage: order not found")
