package kernel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"chemagent/internal/logging"
)

const readyBanner = "Jupyter Kernel Gateway"

// DefaultGatewayCommand launches a kernel gateway; {port} is substituted.
var DefaultGatewayCommand = []string{
	"jupyter", "kernelgateway",
	"--KernelGatewayApp.ip=0.0.0.0",
	"--KernelGatewayApp.port={port}",
}

// LocalGateway runs a kernel gateway as a child process on a free port.
type LocalGateway struct {
	Command      []string
	ReadyTimeout time.Duration
	Logger       logging.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	addr string
	done chan struct{}
}

// Start launches the gateway and waits until it reports readiness or
// ReadyTimeout elapses. It returns the gateway base URL.
func (g *LocalGateway) Start(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cmd != nil {
		return "http://" + g.addr, nil
	}
	logger := logging.OrNop(g.Logger)

	port, err := freePort()
	if err != nil {
		return "", fmt.Errorf("find free port: %w", err)
	}
	command := g.Command
	if len(command) == 0 {
		command = DefaultGatewayCommand
	}
	args := make([]string, len(command))
	for i, arg := range command {
		args[i] = strings.ReplaceAll(arg, "{port}", strconv.Itoa(port))
	}

	cmd := exec.Command(args[0], args[1:]...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("attach gateway stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start kernel gateway: %w", err)
	}

	ready := make(chan struct{})
	go func() {
		signalled := false
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			logger.Info("%s", line)
			if !signalled && strings.Contains(line, readyBanner) && strings.Contains(line, "is available at") {
				signalled = true
				close(ready)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	timeout := g.ReadyTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		logger.Info("Jupyter server started.")
	case <-timer.C:
		logger.Warn("Timeout reached while waiting for kernel gateway to be ready.")
	case <-done:
		return "", errors.New("kernel gateway exited before becoming ready")
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return "", ctx.Err()
	}

	g.cmd = cmd
	g.done = done
	g.addr = fmt.Sprintf("localhost:%d", port)
	return "http://" + g.addr, nil
}

// Stop terminates the gateway process and waits for it to exit.
func (g *LocalGateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cmd == nil {
		return nil
	}
	if err := g.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = g.cmd.Process.Kill()
	}
	select {
	case <-g.done:
	case <-time.After(10 * time.Second):
		_ = g.cmd.Process.Kill()
		<-g.done
	}
	g.cmd = nil
	return nil
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
