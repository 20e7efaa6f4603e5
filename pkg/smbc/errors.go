package smbc

import (
	"fmt"

	"github.com/marmos91/smbc/pkg/bridge"
	"github.com/marmos91/smbc/pkg/smberr"
)

// Usage errors. All of them match smberr.ErrValidation and are returned
// synchronously, never through a Future.
var (
	ErrAsyncEnabled  = fmt.Errorf("%w: async calls already enabled", smberr.ErrValidation)
	ErrAsyncDisabled = fmt.Errorf("%w: async calls not enabled", smberr.ErrValidation)
	ErrContextClosed = fmt.Errorf("%w: context closed", smberr.ErrValidation)
	ErrClosed        = fmt.Errorf("%w: handle closed", smberr.ErrValidation)
)

// ErrBridgeUnavailable is reported by async operations queued or submitted
// after the worker stopped.
var ErrBridgeUnavailable = bridge.ErrTerminated
