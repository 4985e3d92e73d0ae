package clients

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/devicesdk/config"
	sdkerr "github.com/c360/devicesdk/errors"
	"github.com/c360/devicesdk/pkg/retry"
)

// PingPath is the readiness endpoint every platform service exposes.
const PingPath = apiV1 + "/ping"

// PingEndpoint probes a service's ping endpoint until it answers. The
// probe makes retries+1 attempts with a fixed delay between them; the
// first HTTP success wins. A missing host or port fails immediately with
// BAD_CONFIG; exhausting the attempts fails with REMOTE_SERVER_DOWN.
// Bring-up is sequential, so a long probe deliberately blocks the
// caller.
func PingEndpoint(ctx context.Context, log *slog.Logger, name string, ep config.Endpoint, retries int, delay time.Duration) error {
	if ep.Host == "" || ep.Port == 0 {
		log.Error("Missing endpoint", "service", name)
		return sdkerr.Newf(sdkerr.CodeBadConfig, "missing endpoint for %s service", name)
	}

	url := baseURL(ep) + PingPath
	client := &http.Client{Timeout: httpTimeout}

	err := retry.DoFixed(ctx, retries+1, delay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.NonRetryable(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &statusError{Status: resp.StatusCode}
		}
		return nil
	})
	if err != nil {
		log.Error("Can't connect to service", "service", name, "host", ep.Host, "port", ep.Port)
		return sdkerr.Newf(sdkerr.CodeRemoteServerDown, "can't connect to %s service at %s:%d", name, ep.Host, ep.Port)
	}

	log.Info("Found service", "service", name, "host", ep.Host, "port", ep.Port)
	return nil
}
