package qa

import "errors"

// ErrGenerationFailure is returned when the model's output for a chunk stays
// malformed after every retry, or the provider fails outright.
var ErrGenerationFailure = errors.New("qa generation failed")

// errMalformed marks a response that could not be parsed into valid pairs.
var errMalformed = errors.New("malformed model output")
