package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mtlsbridge/internal/plugin"
	"github.com/mtlsbridge/pkg/protocol"
)

// IsRunning checks if a daemon is listening on socketPath.
func IsRunning(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// SendCommand sends a command to the running daemon
func SendCommand(ctx context.Context, socketPath string, cmd Command) (*Response, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("daemon not running: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	encoder := json.NewEncoder(conn)
	decoder := json.NewDecoder(conn)

	if err := encoder.Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &resp, nil
}

// Send dispatches req through the daemon's plugin and returns the response
// or the error message the plugin produced.
func Send(ctx context.Context, socketPath, clientName string, req *protocol.Request) (*protocol.Response, error) {
	args, err := json.Marshal(plugin.SendArgs{ClientName: clientName, Request: req})
	if err != nil {
		return nil, err
	}

	resp, err := SendCommand(ctx, socketPath, Command{Type: plugin.CommandID(plugin.CommandSend), Data: args})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New(resp.Message)
	}

	// Keep numbers exact when the body is re-encoded by the caller.
	dec := json.NewDecoder(bytes.NewReader(resp.Data))
	dec.UseNumber()

	var out protocol.Response
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// FetchStatus asks the daemon for its status.
func FetchStatus(ctx context.Context, socketPath string) (*Status, error) {
	resp, err := SendCommand(ctx, socketPath, Command{Type: CmdStatus})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New(resp.Message)
	}

	var status Status
	if err := resp.Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}
