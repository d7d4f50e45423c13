// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"fmt"
)

// Status is the raw result of a device call, values follow VkResult.
type Status int32

// Device statuses.
const (
	Success                   Status = 0
	NotReady                  Status = 1
	Timeout                   Status = 2
	Incomplete                Status = 5
	Suboptimal                Status = 1000001003
	ErrorOutOfHostMemory      Status = -1
	ErrorOutOfDeviceMemory    Status = -2
	ErrorInitializationFailed Status = -3
	ErrorDeviceLost           Status = -4
	ErrorSurfaceLost          Status = -1000000000
	ErrorOutOfDate            Status = -1000001004
)

var statusNames = map[Status]string{
	Success:                   "success",
	NotReady:                  "not ready",
	Timeout:                   "timeout",
	Incomplete:                "incomplete",
	Suboptimal:                "suboptimal",
	ErrorOutOfHostMemory:      "out of host memory",
	ErrorOutOfDeviceMemory:    "out of device memory",
	ErrorInitializationFailed: "initialization failed",
	ErrorDeviceLost:           "device lost",
	ErrorSurfaceLost:          "surface lost",
	ErrorOutOfDate:            "out of date",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Stale reports whether the status says the presentation target
// no longer matches the surface and has to be recreated.
func (s Status) Stale() bool {
	return s == Suboptimal || s == ErrorOutOfDate
}

// Outcome classifies a Status.
type Outcome int

// Outcomes of a device call.
const (
	// OutcomeSuccess means the call did what was asked.
	OutcomeSuccess Outcome = iota

	// OutcomeSuboptimal means the call may have worked but the
	// swapchain has to be recreated.
	OutcomeSuboptimal

	// OutcomeFailed aborts the operation.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSuboptimal:
		return "suboptimal"
	}
	return "failed"
}

// StatusError is a failed device call.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return e.Op + "(): " + e.Status.String()
}

// Is matches other StatusErrors by status, so callers can test
// errors.Is(err, &gfx.StatusError{Status: gfx.ErrorDeviceLost}).
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return t.Status == e.Status && (t.Op == "" || t.Op == e.Op)
}

// Check classifies the status returned by op. Only OutcomeFailed carries an error.
func Check(op string, status Status) (Outcome, error) {
	switch {
	case status.Stale():
		return OutcomeSuboptimal, nil
	case status >= 0:
		return OutcomeSuccess, nil
	}
	return OutcomeFailed, &StatusError{Op: op, Status: status}
}

// Failed returns a StatusError when status is a failure, nil otherwise.
func Failed(op string, status Status) error {
	_, err := Check(op, status)
	return err
}
