package services

import "errors"

var (
	ErrInvalidDimension   = errors.New("dimension must be points or health")
	ErrRewardNotFound     = errors.New("reward not found for user")
	ErrRewardNotClaimable = errors.New("reward is not complete")
	ErrUserNotFound       = errors.New("user not found")
	ErrContention         = errors.New("reward progress changed concurrently too many times")
	ErrInvalidLevelResult = errors.New("invalid level result")
	ErrInvalidCatalogItem = errors.New("invalid reward definition")
	ErrInvalidTrackerKind = errors.New("unknown tracker kind")
	ErrStateContention    = errors.New("state changed concurrently too many times")
)
