package clients

import (
	"context"
	"net/http"

	"github.com/c360/devicesdk/config"
	sdkerr "github.com/c360/devicesdk/errors"
	"github.com/c360/devicesdk/models"
)

// Data is the contract the core consumes from the event sink. The core
// treats cooked events as opaque payloads.
type Data interface {
	AddEvent(ctx context.Context, ev *models.CookedEvent) error
}

// dataClient posts events to core-data over REST.
type dataClient struct {
	*rest
	endpoint func() config.Endpoint
}

// NewData creates a core-data client.
func NewData(endpoint func() config.Endpoint) Data {
	return &dataClient{rest: newREST(), endpoint: endpoint}
}

func (d *dataClient) AddEvent(ctx context.Context, ev *models.CookedEvent) error {
	url := baseURL(d.endpoint()) + apiV1 + "/event"
	_, err := d.doRaw(ctx, http.MethodPost, url, ev.ContentType, ev.Payload)
	return sdkerr.WrapOp(err, sdkerr.CodeDataError, "add_event")
}
