package concurrency

import "errors"

var ErrLimiterClosed = errors.New("limiter has been closed")
var ErrInvalidSize = errors.New("cannot create a Limiter with less than 1 slot")
