// Copyright 2025 The wuzhou-kg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// FailureKind classifies an extraction failure for the scheduler.
type FailureKind int

const (
	// FailureRateLimited means the service throttled the request. Retryable;
	// the error may carry a suggested backoff.
	FailureRateLimited FailureKind = iota + 1

	// FailureTransient covers timeouts and 5xx-equivalent service errors.
	// Retryable.
	FailureTransient

	// FailureMalformed means the service answered but the content does not
	// parse into the required payload shape. Retried once, then permanent.
	FailureMalformed

	// FailurePermanent means the request itself is unacceptable to the
	// service. Never retried.
	FailurePermanent
)

// String returns the ledger-facing name of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureTransient:
		return "transient"
	case FailureMalformed:
		return "malformed_response"
	case FailurePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Retryable reports whether the scheduler may attempt the segment again.
func (k FailureKind) Retryable() bool {
	return k == FailureRateLimited || k == FailureTransient || k == FailureMalformed
}

// ServiceError is a typed extraction failure.
type ServiceError struct {
	Kind FailureKind

	// RetryAfter is a backoff hint from the service, if it supplied one.
	// Zero means no hint.
	RetryAfter time.Duration

	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain.
// Errors that are not ServiceError are treated as transient: the model call is
// the only thing that fails here, and an unclassified failure is more likely a
// network hiccup than bad input.
func KindOf(err error) FailureKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return FailureTransient
}

// RetryAfterHint extracts a backoff hint from an error chain, if present.
func RetryAfterHint(err error) time.Duration {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// classify maps a transport-level error from the model client to a typed
// failure. The OpenAI-compatible client surfaces HTTP status classes in the
// error text, so classification falls back to substring checks.
func classify(err error) *ServiceError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ServiceError{Kind: FailureTransient, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ServiceError{Kind: FailureTransient, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"):
		return &ServiceError{Kind: FailureRateLimited, Err: err}
	case strings.Contains(msg, "400"),
		strings.Contains(msg, "invalid request"),
		strings.Contains(msg, "context length"),
		strings.Contains(msg, "maximum context"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return &ServiceError{Kind: FailurePermanent, Err: err}
	default:
		return &ServiceError{Kind: FailureTransient, Err: err}
	}
}

func malformed(err error) *ServiceError {
	return &ServiceError{Kind: FailureMalformed, Err: err}
}
