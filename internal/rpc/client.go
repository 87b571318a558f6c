package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/progress"
)

// #region client-struct

// ErrNoAnswer is returned when the stream ends before an answer arrives.
var ErrNoAnswer = errors.New("stream ended without an answer")

// Client calls a remote Reasoner.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor

// NewClient connects to a Reasoner at addr without transport security.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn uses an existing connection. Close leaves it open.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down a connection opened by NewClient.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region run

// Run sends one prompt and feeds every progress event to sink until the
// answer arrives. sink may be nil.
func (c *Client) Run(ctx context.Context, prompt string, history []orchestrator.Message, mode orchestrator.Mode, sink progress.Sink) (string, error) {
	if sink == nil {
		sink = progress.Discard
	}
	req, err := toStruct(RunRequest{Prompt: prompt, History: history, Mode: mode})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], runMethod)
	if err != nil {
		return "", fmt.Errorf("run rpc: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return "", fmt.Errorf("run rpc send: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return "", fmt.Errorf("run rpc close send: %w", err)
	}

	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			return "", ErrNoAnswer
		}
		if err != nil {
			return "", fmt.Errorf("run rpc: %w", err)
		}
		var item streamItem
		if err := fromStruct(msg, &item); err != nil {
			return "", fmt.Errorf("decode stream item: %w", err)
		}
		switch item.Kind {
		case KindProgress:
			if item.Event != nil {
				sink(*item.Event)
			}
		case KindAnswer:
			return item.Answer, nil
		default:
			return "", fmt.Errorf("unexpected stream item kind %q", item.Kind)
		}
	}
}

// #endregion run
