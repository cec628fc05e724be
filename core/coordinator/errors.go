package coordinator

import "errors"

var (
	// ErrSameStation rejects dispatches where source and destination match.
	ErrSameStation = errors.New("source and destination station are the same")
	// ErrUnknownStation rejects dispatches involving a station that is not
	// registered and alive.
	ErrUnknownStation = errors.New("station is not registered")
	// ErrPodUnavailable rejects dispatches from a station without a pod in
	// its bay.
	ErrPodUnavailable = errors.New("no pod available at source station")
	// ErrNoTaskInFlight is returned by abort when nothing is running.
	ErrNoTaskInFlight = errors.New("no dispatch in flight")
	// ErrUnknownOperation rejects scripts naming an operation stations do
	// not run.
	ErrUnknownOperation = errors.New("unknown script operation")
)
