package pool

import (
	"errors"
	"fmt"
	"time"
)

// FaultPolicy decides what a worker does after an internal fault or a
// timeout left its context in an unknown state.
type FaultPolicy string

const (
	// FaultReset discards the context and builds a fresh one. Script
	// globals accumulated on that worker are lost.
	FaultReset FaultPolicy = "reset"

	// FaultStop retires the worker permanently, shrinking pool capacity.
	FaultStop FaultPolicy = "stop"
)

// ParseFaultPolicy parses "reset" or "stop". The empty string selects
// FaultReset.
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch FaultPolicy(s) {
	case "", FaultReset:
		return FaultReset, nil
	case FaultStop:
		return FaultStop, nil
	default:
		return "", fmt.Errorf("unknown fault policy %q (want reset or stop)", s)
	}
}

// Config is fixed at pool construction.
type Config struct {
	// Workers is the number of workers and the hard ceiling on concurrent
	// script executions.
	Workers int

	// QueueSize bounds how many jobs may wait for a worker. Zero means a
	// job is only admitted when a worker is idle and receiving.
	QueueSize int

	// Timeout limits a single execution. Zero disables the watchdog.
	Timeout time.Duration

	FaultPolicy FaultPolicy
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue size must not be negative, got %d", c.QueueSize))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %v", c.Timeout))
	}
	if _, err := ParseFaultPolicy(string(c.FaultPolicy)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
