package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/sat20-labs/walletd/internal/config"
)

// callRequest is a JSON-Lines request written to the engine subprocess.
type callRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Args   []any  `json:"args,omitempty"`
}

// callResponse is a JSON-Lines response read from the subprocess.
type callResponse struct {
	ID string `json:"id"`
	Result
}

// ProcessEngine runs the backing engine as a subprocess and speaks the
// call contract over JSON lines on stdin/stdout.
type ProcessEngine struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendMu  sync.Mutex
	pending map[string]chan Result

	done     chan struct{}
	doneOnce sync.Once
}

// LoadProcess launches the engine subprocess and sends it the init call
// for the configured network. It is the production Loader.
func LoadProcess(logger *slog.Logger) Loader {
	return func(ctx context.Context, cfg config.EngineConfig) (Engine, error) {
		return newProcessEngine(ctx, cfg, logger)
	}
}

func newProcessEngine(ctx context.Context, cfg config.EngineConfig, logger *slog.Logger) (*ProcessEngine, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	e := &ProcessEngine{
		cmd:     cmd,
		stdin:   stdin,
		logger:  logger.With("component", "engine", "pid", cmd.Process.Pid),
		pending: make(map[string]chan Result),
		done:    make(chan struct{}),
	}
	go e.readLoop(stdout)

	// The engine refuses wallet calls until initialized for a network.
	if _, err := e.Call(ctx, "init", cfg.Network, cfg.Env); err != nil {
		_ = e.Release()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	e.logger.Info("engine ready", "network", cfg.Network)
	return e, nil
}

// Call invokes a method on the engine and waits for its correlated
// response or context cancellation.
func (e *ProcessEngine) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	id := fmt.Sprintf("%d", e.nextID.Add(1))

	ch := make(chan Result, 1)
	e.pendMu.Lock()
	e.pending[id] = ch
	e.pendMu.Unlock()

	defer func() {
		e.pendMu.Lock()
		delete(e.pending, id)
		e.pendMu.Unlock()
	}()

	line, err := json.Marshal(callRequest{ID: id, Method: method, Args: args})
	if err != nil {
		return nil, err
	}
	line = append(line, '\n')

	e.writeMu.Lock()
	_, err = e.stdin.Write(line)
	e.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write engine call: %w", err)
	}

	select {
	case res := <-ch:
		return resultToData(res)
	case <-e.done:
		return nil, fmt.Errorf("engine exited")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release shuts the subprocess down.
func (e *ProcessEngine) Release() error {
	e.doneOnce.Do(func() { close(e.done) })
	_ = e.stdin.Close()
	if e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	return e.cmd.Wait()
}

func (e *ProcessEngine) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp callResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			e.logger.Warn("invalid engine response", "error", err)
			continue
		}

		e.pendMu.Lock()
		ch, ok := e.pending[resp.ID]
		e.pendMu.Unlock()
		if ok {
			ch <- resp.Result
		}
	}

	e.doneOnce.Do(func() { close(e.done) })
}
