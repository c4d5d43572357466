// Package oracle defines the local-search ranking oracle the scanner queries
// once per grid cell, plus a Google Maps implementation and a caching wrapper.
package oracle

import (
	"context"
	"errors"
	"fmt"
)

// Query asks where TargetID ranks for Keyword when searching from (Lat, Lng).
type Query struct {
	Keyword  string
	Lat      float64
	Lng      float64
	TargetID string
}

// Ranking is a successful oracle answer. Rank is 1-based and 0 when the target
// is outside the result window.
type Ranking struct {
	Rank        int      `json:"rank"`
	Competitors []string `json:"competitors"`
}

// Oracle resolves a Query into a Ranking. Failures are returned as *Error.
type Oracle interface {
	CheckRank(ctx context.Context, q Query) (Ranking, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, q Query) (Ranking, error)

func (f Func) CheckRank(ctx context.Context, q Query) (Ranking, error) {
	return f(ctx, q)
}

// ErrorKind classifies oracle failures.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindMalformed   ErrorKind = "malformed"
	KindUpstream    ErrorKind = "upstream"
)

// Error is the failure variant of an oracle call.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("oracle %s error", e.Kind)
	}
	return fmt.Sprintf("oracle %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the ErrorKind carried by err. Context deadline errors map to
// KindTimeout; anything else without an *Error in its chain is KindUpstream.
func KindOf(err error) ErrorKind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUpstream
}
