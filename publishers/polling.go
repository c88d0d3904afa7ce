package publishers

import (
	"fmt"
	"time"

	"PostPilotAPI/utils"
)

// ProcessingState is the lifecycle of a platform's asynchronous media
// processing job.
type ProcessingState string

const (
	ProcessingPending    ProcessingState = "pending"
	ProcessingInProgress ProcessingState = "in_progress"
	ProcessingSucceeded  ProcessingState = "succeeded"
	ProcessingFailed     ProcessingState = "failed"
)

// ProcessingStatus is one status-poll observation. CheckAfterSecs is the
// platform's hint for when to look again; zero means use the poller default.
type ProcessingStatus struct {
	State          ProcessingState
	CheckAfterSecs int
	Detail         string
}

// StatusPoller polls an asynchronous media-processing endpoint until the job
// reaches a terminal state or the attempt ceiling is hit.
//
// Hitting the ceiling is non-fatal: the poller logs a warning and reports the
// media as ready so the publish proceeds. Publishing against a container that
// never confirmed readiness is a known risk the product accepts; the ceiling
// and default wait are configurable for callers that want a tighter window.
type StatusPoller struct {
	MaxAttempts int
	DefaultWait time.Duration

	sleep func(time.Duration)
}

func NewStatusPoller(maxAttempts int, defaultWait time.Duration) *StatusPoller {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if defaultWait <= 0 {
		defaultWait = 5 * time.Second
	}
	return &StatusPoller{
		MaxAttempts: maxAttempts,
		DefaultWait: defaultWait,
		sleep:       time.Sleep,
	}
}

// WaitForReady polls fetch until the job succeeds (true, nil), fails
// (false, error, with no further polling), or the attempt ceiling is
// reached (true, nil, with a warning).
func (p *StatusPoller) WaitForReady(describe string, fetch func() (ProcessingStatus, error)) (bool, error) {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		status, err := fetch()
		if err != nil {
			return false, err
		}

		switch status.State {
		case ProcessingSucceeded:
			utils.Debugf("processing ready %s attempts=%d", describe, attempt)
			return true, nil
		case ProcessingFailed:
			detail := status.Detail
			if detail == "" {
				detail = "media processing failed"
			}
			return false, fmt.Errorf("%s: %s", describe, detail)
		}

		if attempt == p.MaxAttempts {
			break
		}

		wait := p.DefaultWait
		if status.CheckAfterSecs > 0 {
			wait = time.Duration(status.CheckAfterSecs) * time.Second
		}
		p.sleep(wait)
	}

	utils.Warnf("processing status still not terminal after %d attempts, proceeding anyway %s", p.MaxAttempts, describe)
	return true, nil
}
