package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// jsonrpcRequest is a JSON-RPC 2.0 request frame.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response frame.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonrpcError) Error() string {
	return fmt.Sprintf("backend rpc error %d: %s", e.Code, e.Message)
}

// toolCallParams is the params shape of a tools/call invocation.
type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// toolCallResult is the result shape of a tools/call invocation: a list of
// content blocks of which we consume the first text block.
type toolCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// resourceReadResult is the result shape of a resources/read invocation.
type resourceReadResult struct {
	Contents []struct {
		URI  string `json:"uri"`
		Text string `json:"text"`
	} `json:"contents"`
}

// StdioClient runs the backend as a subprocess and speaks newline-delimited
// JSON-RPC over its stdin/stdout. Responses are matched to requests by id, so
// any number of calls may be in flight at once.
type StdioClient struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	log    *zap.Logger

	writeMu sync.Mutex
	nextID  uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan jsonrpcResponse
	closed    bool

	// breaker guards execute_query: a dead backend fails fast instead of
	// stalling every fan-out worker for a full timeout each.
	breaker *gobreaker.CircuitBreaker

	callTimeout time.Duration
}

// StdioOptions configures the subprocess channel.
type StdioOptions struct {
	Command     string
	Args        []string
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// NewStdioClient starts the backend subprocess and the response dispatcher.
func NewStdioClient(opts StdioOptions) (*StdioClient, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("%w: no backend command configured", ErrBackendUnavailable)
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	c := &StdioClient{
		cmd:         cmd,
		stdin:       stdin,
		stdout:      bufio.NewReaderSize(stdout, 1<<20),
		log:         opts.Logger,
		pending:     make(map[uint64]chan jsonrpcResponse),
		callTimeout: opts.CallTimeout,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "backend-query",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	go c.dispatch()
	return c, nil
}

// newPipeClient wires a client over arbitrary reader/writer pairs. Tests use
// it to talk to an in-process fake without spawning a subprocess.
func newPipeClient(r io.Reader, w io.WriteCloser, timeout time.Duration) *StdioClient {
	c := &StdioClient{
		stdin:       w,
		stdout:      bufio.NewReader(r),
		log:         zap.NewNop(),
		pending:     make(map[uint64]chan jsonrpcResponse),
		callTimeout: timeout,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "backend-query"})
	go c.dispatch()
	return c
}

// dispatch reads response frames and routes them to waiting callers.
func (c *StdioClient) dispatch() {
	for {
		line, err := c.stdout.ReadBytes('\n')
		if len(line) > 0 {
			var resp jsonrpcResponse
			if uerr := json.Unmarshal(line, &resp); uerr != nil {
				c.log.Warn("backend sent unparseable frame", zap.Error(uerr))
			} else {
				c.deliver(resp)
			}
		}
		if err != nil {
			c.failAll(err)
			return
		}
	}
}

func (c *StdioClient) deliver(resp jsonrpcResponse) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- resp
	}
}

// failAll unblocks every waiter when the channel dies. Closing stdin also
// releases any caller blocked mid-write on a pipe nobody drains anymore.
func (c *StdioClient) failAll(err error) {
	c.pendingMu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.pendingMu.Unlock()

	_ = c.stdin.Close()
	if err != io.EOF {
		c.log.Warn("backend channel closed", zap.Error(err))
	}
}

// call performs one JSON-RPC round trip with the per-call deadline.
func (c *StdioClient) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	respCh := make(chan jsonrpcResponse, 1)

	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("%w: channel closed", ErrBackendUnavailable)
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	frame, err := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		c.abandon(id)
		return nil, err
	}
	frame = append(frame, '\n')

	// The write runs in its own goroutine so a backend that stops draining
	// its pipe cannot hold the caller past its deadline. A write stranded
	// here is released by failAll closing stdin.
	writeDone := make(chan error, 1)
	go func() {
		c.writeMu.Lock()
		_, werr := c.stdin.Write(frame)
		c.writeMu.Unlock()
		writeDone <- werr
	}()
	select {
	case werr := <-writeDone:
		if werr != nil {
			c.abandon(id)
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, werr)
		}
	case <-ctx.Done():
		c.abandon(id)
		return nil, ctx.Err()
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("%w: channel closed", ErrBackendUnavailable)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.abandon(id)
		return nil, ctx.Err()
	}
}

func (c *StdioClient) abandon(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// callTool invokes a named tool and returns its first text content block.
func (c *StdioClient) callTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	raw, err := c.call(ctx, "tools/call", toolCallParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}
	var result toolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("tool %s returned unparseable result: %w", name, err)
	}
	for _, block := range result.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("tool %s returned no text content", name)
}

// HealthCheck implements Client.
func (c *StdioClient) HealthCheck(ctx context.Context) (string, error) {
	return c.callTool(ctx, "health_check", nil)
}

// GetTargets implements Client.
func (c *StdioClient) GetTargets(ctx context.Context) ([]Target, error) {
	text, err := c.callTool(ctx, "get_targets", nil)
	if err != nil {
		return nil, err
	}
	return ParseTargets(text)
}

// ExecuteQuery implements Client. Calls go through the circuit breaker;
// individual failures are local to the caller's task.
func (c *StdioClient) ExecuteQuery(ctx context.Context, query string) (string, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callTool(ctx, "execute_query", map[string]interface{}{"query": query})
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// ReadResource implements Client.
func (c *StdioClient) ReadResource(ctx context.Context, uri string) (string, error) {
	raw, err := c.call(ctx, "resources/read", map[string]interface{}{"uri": uri})
	if err != nil {
		return "", err
	}
	var result resourceReadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("resource %s returned unparseable result: %w", uri, err)
	}
	if len(result.Contents) == 0 {
		return "", fmt.Errorf("%w: resource %s is empty", ErrKBMissing, uri)
	}
	return result.Contents[0].Text, nil
}

// Close implements Client.
func (c *StdioClient) Close() error {
	c.pendingMu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.pendingMu.Unlock()
	if alreadyClosed {
		return nil
	}

	_ = c.stdin.Close()
	if c.cmd != nil {
		done := make(chan error, 1)
		go func() { done <- c.cmd.Wait() }()
		select {
		case err := <-done:
			return err
		case <-time.After(3 * time.Second):
			_ = c.cmd.Process.Kill()
			return <-done
		}
	}
	return nil
}
