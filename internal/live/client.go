package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"stockmind/internal/domain"
)

// Client connects to a WatchUnits gRPC server and populates a local Board,
// providing an automatic mirror of the server-side board.
type Client struct {
	addr  string
	kind  domain.UnitKind
	board *Board
	log   *slog.Logger
	opts  []grpc.DialOption
}

// NewClient creates a client targeting the given gRPC address. Extra dial
// options are appended after insecure transport credentials.
func NewClient(addr string, board *Board, log *slog.Logger, opts ...grpc.DialOption) *Client {
	return &Client{addr: addr, board: board, log: log, opts: opts}
}

// OnlyKind restricts the mirror to one unit kind.
func (c *Client) OnlyKind(kind domain.UnitKind) *Client {
	c.kind = kind
	return c
}

// Sync connects to the gRPC server and streams unit updates into the local
// board. It blocks until ctx is cancelled or the stream ends.
func (c *Client) Sync(ctx context.Context) error {
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.opts...)
	conn, err := grpc.NewClient(c.addr, opts...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.addr, err)
	}
	defer conn.Close()

	stream, err := conn.NewStream(ctx, &unitsServiceDesc.Streams[0], watchUnitsMethod)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	req, err := structpb.NewStruct(map[string]any{"kind": string(c.kind)})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("closing send: %w", err)
	}

	c.log.Info("connected to unit stream", "addr", c.addr)

	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving unit: %w", err)
		}

		u, err := StructToUnit(msg)
		if err != nil {
			c.log.Warn("skipping malformed unit", "error", err)
			continue
		}
		c.board.Publish(u)
	}
}
