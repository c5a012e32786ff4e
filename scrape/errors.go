package scrape

import "errors"

var (
	// ErrRenderDisabled indicates a page needed rendering but no renderer is configured.
	ErrRenderDisabled = errors.New("render fallback disabled")

	// ErrBrowserClosed indicates the headless browser was already shut down.
	ErrBrowserClosed = errors.New("browser closed")

	// ErrFetchPanicked indicates a fetch tier panicked.
	ErrFetchPanicked = errors.New("fetch panicked")

	// ErrInvalidConcurrency indicates a non-positive concurrency limit.
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
)
