package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownRetailer is returned when a retailer id is not in the registry.
	ErrUnknownRetailer = errors.New("unknown retailer")

	// ErrRunInProgress is returned when a scrape is triggered while another run is active.
	ErrRunInProgress = errors.New("scrape already in progress")

	// ErrInvalidRetailerConfig wraps registry validation failures.
	ErrInvalidRetailerConfig = errors.New("invalid retailer config")
)
