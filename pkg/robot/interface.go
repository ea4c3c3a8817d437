// Package robot defines the robot-side data types exchanged with the arm
// controller and the small interfaces the teleoperation and observation layers
// depend on.
//
// Interfaces are kept narrow so consumers depend only on what they use: the
// teleoperator needs an Actuator and a StateReader, the observation env adds
// StateQuerier and SensorQuerier.
package robot

import "context"

// StateReader polls the robot-state stream. Poll blocks until a state arrives.
type StateReader interface {
	Poll(ctx context.Context) (State, error)
}

// Actuator sends one action and waits for its reply. Implementations must allow
// at most one outstanding request.
type Actuator interface {
	Send(ctx context.Context, action Action) (Reply, error)
}

// StateQuerier asks the robot for its current state without commanding motion.
type StateQuerier interface {
	GetState(ctx context.Context) (State, error)
}

// SensorQuerier asks the robot host for a fresh raw tactile reading.
// Used to build sensor baselines.
type SensorQuerier interface {
	SensorSnapshot(ctx context.Context) ([]float64, error)
}

// Channel is the full request/reply control channel to the robot host.
type Channel interface {
	Actuator
	StateQuerier
	SensorQuerier
	Close() error
}
