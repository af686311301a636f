package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

// #region client-struct

// Client wraps a gRPC connection to a composer server.
type Client struct {
	conn *grpc.ClientConn
}

// #endregion client-struct

// #region constructor

// Dial connects to addr. Without options the connection is plaintext.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// #endregion constructor

// #region close

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// #endregion close

// #region compose

// Compose requests a stateless composition of d.
func (c *Client) Compose(ctx context.Context, d decision.Decision, debug bool) (ComposeResponse, error) {
	var resp ComposeResponse
	if err := c.invoke(ctx, ComposeMethod, ComposeRequest{Decision: d, Debug: debug}, &resp); err != nil {
		return ComposeResponse{}, fmt.Errorf("compose rpc: %w", err)
	}
	return resp, nil
}

// #endregion compose

// #region analyze

// Analyze extracts the bias signals of text. A zero at uses the server clock.
func (c *Client) Analyze(ctx context.Context, text string, at time.Time) (map[string]signals.BiasSignalState, error) {
	var resp AnalyzeResponse
	if err := c.invoke(ctx, AnalyzeMethod, AnalyzeRequest{Text: text, At: at}, &resp); err != nil {
		return nil, fmt.Errorf("analyze rpc: %w", err)
	}
	return resp.Signals, nil
}

// #endregion analyze

// #region turn

// Turn runs one session turn on the server.
func (c *Client) Turn(ctx context.Context, in orchestrator.TurnInput, debug bool) (TurnResponse, error) {
	var resp TurnResponse
	if err := c.invoke(ctx, TurnMethod, TurnRequest{TurnInput: in, Debug: debug}, &resp); err != nil {
		return TurnResponse{}, fmt.Errorf("turn rpc: %w", err)
	}
	return resp, nil
}

// #endregion turn

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}
