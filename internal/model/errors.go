package model

import "fmt"

// ModelLoadError is returned when the model assets could not be fetched or
// the runtime could not be constructed. The adapter stays Failed until the
// next call retries the load.
type ModelLoadError struct {
	Err error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("model load failed: %v", e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// GenerationError is returned when a loaded model fails to synthesize. The
// model remains usable.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("speech generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
