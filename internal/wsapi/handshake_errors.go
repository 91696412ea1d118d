package wsapi

import (
	"errors"
	"time"
)

var (
	errMissingToken      = errors.New("auth.token is required")
	errInvalidToken      = errors.New("invalid or unrecognized token")
	errMissingSessionID  = errors.New("auth.sessionId is required for session-scoped connections")
	errMissingMachineID  = errors.New("auth.machineId is required for machine-scoped connections")
	errUnknownSession    = errors.New("session not found")
	errUnknownClientType = errors.New("unknown auth.clientType")
)

func timeNow() time.Time { return time.Now() }

func nowMs() int64 { return time.Now().UnixMilli() }
