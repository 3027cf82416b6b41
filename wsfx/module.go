// Package wsfx plugs a ws.Client into an fx application. The client is
// shut down with the application, and the session middleware is provided
// for host servers that want per-request connection release.
package wsfx

import (
	"context"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/wesleyorama2/ws/ws"
)

// Middleware wraps a handler so that every response executed with the
// request context is released when the handler returns.
type Middleware func(http.Handler) http.Handler

type ClientParams struct {
	fx.In

	Config  *ws.Config        `optional:"true"`
	Options []ws.ClientOption `group:"ws_options"`
	Logger  *zap.Logger       `optional:"true"`
}

// Module provides *ws.Client and Middleware.
func Module() fx.Option {
	return fx.Module("ws",
		fx.Provide(NewLifecycleClient),
		fx.Provide(NewMiddleware),
	)
}

// NewClient builds the client from the optional config, logger and
// grouped options.
func NewClient(params ClientParams) (*ws.Client, error) {
	var options []ws.ClientOption
	if params.Config != nil {
		options = append(options, ws.WithConfig(*params.Config))
	}
	if params.Logger != nil {
		options = append(options, ws.WithLogger(params.Logger))
	}
	options = append(options, params.Options...)

	return ws.NewClient(options...)
}

// NewLifecycleClient is NewClient bound to the application lifecycle.
func NewLifecycleClient(params ClientParams, lc fx.Lifecycle) (*ws.Client, error) {
	client, err := NewClient(params)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Shutdown(ctx)
		},
	})

	return client, nil
}

func NewMiddleware(client *ws.Client) Middleware {
	return client.Middleware
}

// AsOption registers a client option with the "ws_options" group.
func AsOption(option ws.ClientOption) fx.Option {
	return fx.Provide(fx.Annotate(
		func() ws.ClientOption { return option },
		fx.ResultTags(`group:"ws_options"`),
	))
}
