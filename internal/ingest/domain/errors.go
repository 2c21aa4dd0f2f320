package domain

import "errors"

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrInvalidConfig    = errors.New("invalid adapter config")

	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("stale webhook timestamp")

	ErrInvalidPayload = errors.New("invalid webhook payload")
	ErrInvalidEvent   = errors.New("invalid webhook event")
	ErrEventIgnored   = errors.New("event ignored")
)
