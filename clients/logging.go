package clients

import (
	"context"
	"net/http"

	"github.com/c360/devicesdk/config"
	sdkerr "github.com/c360/devicesdk/errors"
)

// LogEntry is one record shipped to support-logging.
type LogEntry struct {
	Origin        string `json:"originService"`
	Level         string `json:"logLevel"`
	Message       string `json:"message"`
	CreatedMillis int64  `json:"created"`
}

// Logging is the contract the remote log sink consumes.
type Logging interface {
	AddLogEntry(ctx context.Context, entry LogEntry) error
}

// loggingClient ships log entries to support-logging over REST.
type loggingClient struct {
	*rest
	endpoint func() config.Endpoint
}

// NewLogging creates a support-logging client.
func NewLogging(endpoint func() config.Endpoint) Logging {
	return &loggingClient{rest: newREST(), endpoint: endpoint}
}

func (l *loggingClient) AddLogEntry(ctx context.Context, entry LogEntry) error {
	url := baseURL(l.endpoint()) + apiV1 + "/logs"
	_, err := l.do(ctx, http.MethodPost, url, entry)
	return sdkerr.WrapOp(err, sdkerr.CodeDataError, "add_log_entry")
}
