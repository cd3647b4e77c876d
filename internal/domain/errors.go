package domain

import "errors"

var (
	ErrQueueFull       = errors.New("order queue full")
	ErrQueueClosed     = errors.New("queue closed")
	ErrCacheMiss       = errors.New("cache miss")
	ErrInvalidSymbol   = errors.New("invalid symbol format")
	ErrInvalidExpiry   = errors.New("unrecognized expiry format")
	ErrAdapterInactive = errors.New("adapter inactive")
)
