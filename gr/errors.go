package gr

import (
	"errors"
	"fmt"

	"github.com/sarchlab/grengine/falcon"
	"github.com/sarchlab/grengine/poll"
	"github.com/sarchlab/grengine/vidmem"
)

// Error taxonomy of the engine. Callers test with errors.Is.
var (
	ErrHardwareTimeout       = errors.New("gr: hardware timeout")
	ErrHardwareNotResponding = errors.New("gr: hardware not responding")
	ErrResourceExhausted     = errors.New("gr: resource exhausted")
	ErrProtocolViolation     = errors.New("gr: protocol violation")
	ErrInvalidArgument       = errors.New("gr: invalid argument")
	ErrTableFull             = errors.New("gr: zbc table full")
	ErrFormatMismatch        = errors.New("gr: zbc format mismatch")
	ErrNoAddressSpace        = errors.New("gr: channel has no address space")
	ErrNoGoldenImage         = errors.New("gr: golden image not captured")
	ErrPatchFull             = fmt.Errorf("%w: patch buffer full", ErrResourceExhausted)
)

// classify wraps err with the engine sentinel matching its cause. Errors
// that already carry an engine sentinel are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrHardwareTimeout),
		errors.Is(err, ErrHardwareNotResponding),
		errors.Is(err, ErrResourceExhausted),
		errors.Is(err, ErrProtocolViolation),
		errors.Is(err, ErrInvalidArgument):
		return err
	case errors.Is(err, falcon.ErrTimeout), errors.Is(err, poll.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrHardwareTimeout, err)
	case errors.Is(err, falcon.ErrFailed):
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	case errors.Is(err, vidmem.ErrOutOfMemory),
		errors.Is(err, vidmem.ErrVAExhausted),
		errors.Is(err, vidmem.ErrNoProtectedRegion):
		return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	default:
		return err
	}
}
