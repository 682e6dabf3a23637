// Package ucs reaches connectors through the unified connector service over
// gRPC and translates its results into envelopes.
package ucs

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"payswitch/internal/config"
)

// Full gRPC method names of the payment service.
const (
	MethodAuthorize = "/ucs.v2.PaymentService/Authorize"
	MethodRepeat    = "/ucs.v2.PaymentService/RepeatEverything"
	MethodGet       = "/ucs.v2.PaymentService/Get"
	MethodRegister  = "/ucs.v2.PaymentService/Register"
	MethodComplete  = "/ucs.v2.PaymentService/PostAuthenticate"
)

// Invoker is the transport the bridge calls through.
type Invoker interface {
	Invoke(ctx context.Context, method string, req *structpb.Struct, md metadata.MD) (*structpb.Struct, error)
}

// Client is a thin wrapper over a gRPC connection using dynamic struct
// messages.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout}
}

// Dial connects to the unified service and waits until the channel is
// ready, retrying with exponential backoff for at most maxWait.
func Dial(ctx context.Context, cfg config.UCSCfg, maxWait time.Duration) (*Client, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("ucs client: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		conn.Connect()
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		wctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		conn.WaitForStateChange(wctx, state)
		if state = conn.GetState(); state != connectivity.Ready {
			log.Warn().Str("addr", cfg.Addr).Int("attempt", attempt).Str("state", state.String()).Msg("ucs not ready")
			return fmt.Errorf("ucs at %s is %s", cfg.Addr, state)
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Info().Str("addr", cfg.Addr).Msg("connected to unified connector service")
	return NewClient(conn, cfg.Timeout), nil
}

// Available reports whether calls can be attempted. A nil client is never
// available.
func (c *Client) Available() bool {
	if c == nil || c.conn == nil {
		return false
	}
	return c.conn.GetState() != connectivity.Shutdown
}

// Invoke performs one unary call.
func (c *Client) Invoke(ctx context.Context, method string, req *structpb.Struct, md metadata.MD) (*structpb.Struct, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx = metadata.NewOutgoingContext(ctx, md)
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
