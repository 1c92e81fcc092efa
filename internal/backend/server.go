package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ServerManager manages engine server processes.
type ServerManager struct {
	servers map[string]*ServerProcess
	logger  *slog.Logger
	mu      sync.Mutex
}

// ServerProcess represents a server running process.
type ServerProcess struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
}

// ServerConfig defines how to start and check a backend server.
type ServerConfig struct {
	Env          map[string]string
	Output       io.Writer
	Name         string
	BinPath      string
	HealthPath   string
	Args         []string
	Port         int
	ReadyTimeout time.Duration
}

// NewServerManager initializes a ServerManager.
func NewServerManager(logger *slog.Logger) *ServerManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ServerManager{
		servers: map[string]*ServerProcess{},
		logger:  logger,
	}
}

// StartServer starts a backend server and blocks until its health endpoint
// answers 200 or the ready timeout elapses.
func (sm *ServerManager) StartServer(ctx context.Context, cfg ServerConfig) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	key := serverKey(cfg.Name, cfg.Port)
	if _, exists := sm.servers[key]; exists {
		return nil // Already running
	}

	binPath, err := exec.LookPath(cfg.BinPath)
	if err != nil {
		return fmt.Errorf("manager: failed to start %s server: %w", cfg.Name, err)
	}
	if info, err := os.Stat(binPath); err != nil || info.IsDir() {
		return fmt.Errorf("manager: failed to start %s server: %s is not an executable file", cfg.Name, binPath)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, binPath, cfg.Args...)
	cmd.Stdout = cfg.Output
	cmd.Stderr = cfg.Output

	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("manager: failed to start %s server: %w", cfg.Name, err)
	}

	done := make(chan struct{})
	go func() {
		if err := cmd.Wait(); err != nil && procCtx.Err() == nil {
			sm.logger.Error("Engine server exited", "name", cfg.Name, "port", cfg.Port, "error", err)
		}
		close(done)
	}()

	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	timeout := cfg.ReadyTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	url := fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Port, healthPath)
	if err := WaitForServer(ctx, url, timeout, done); err != nil {
		cancel()
		<-done
		return fmt.Errorf("manager: %s server did not become ready: %w", cfg.Name, err)
	}

	sm.servers[key] = &ServerProcess{
		cmd:    cmd,
		cancel: cancel,
		done:   done,
	}

	sm.logger.Info("Server started", "name", cfg.Name, "port", cfg.Port, "pid", cmd.Process.Pid)
	return nil
}

// StopServer terminates a backend server.
func (sm *ServerManager) StopServer(name string, port int) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	key := serverKey(name, port)
	srv, exists := sm.servers[key]
	if !exists {
		return fmt.Errorf("server %s not found", key)
	}

	srv.stop()
	delete(sm.servers, key)

	sm.logger.Info("Server stopped", "name", name, "port", port)
	return nil
}

func (p *ServerProcess) stop() {
	p.cancel()
	<-p.done
}

// WaitForServer polls url until it answers 200, the timeout elapses, ctx is
// done, or exited is closed.
func WaitForServer(ctx context.Context, url string, timeout time.Duration, exited <-chan struct{}) error {
	client := &http.Client{Timeout: 1 * time.Second}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return fmt.Errorf("manager: server process exited before becoming ready")
		case <-ticker.C:
		}
	}

	return fmt.Errorf("manager: server failed to respond at %s within %v", url, timeout)
}

func serverKey(name string, port int) string {
	return fmt.Sprintf("%s-%d", name, port)
}
