// Package lookup talks to the remote athlete database.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"goflare.io/stride/pace"
	"goflare.io/stride/selection"
)

// Service is the remote athlete database.
type Service interface {
	SearchAthletes(ctx context.Context, query string) ([]selection.Athlete, error)
	FetchRecords(ctx context.Context, id string) (pace.Records, error)
	DatabaseStatus(ctx context.Context) (Status, error)
}

// Status describes the remote database.
type Status struct {
	NumAthletes int    `json:"num_athletes"`
	LastUpdate  string `json:"last_update"`
}

// ErrUnavailable is returned while the circuit breaker rejects calls.
var ErrUnavailable = errors.New("lookup service unavailable")

// StatusError is a non-2xx response.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.Endpoint, e.Code, http.StatusText(e.Code))
}

// Temporary reports whether the server side failed and a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}
