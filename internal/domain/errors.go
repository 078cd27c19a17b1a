package domain

import "errors"

var (
	// ErrDecode marks a single item that could not be read or decoded.
	// It is absorbed by the ingestion pipeline.
	ErrDecode = errors.New("decode failed")

	// ErrEncode marks a model failure for a whole encode call.
	ErrEncode = errors.New("encode failed")

	// ErrStore marks a store that could not serve a read or write.
	ErrStore = errors.New("store unavailable")

	// ErrDimensionMismatch marks a vector whose length differs from the
	// store dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidConfig marks rejected parameters (k, cap, batch size,
	// dimension) detected before any work starts.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotProvisioned is returned when opening a store whose schema has
	// not been created.
	ErrNotProvisioned = errors.New("store not provisioned")
)
