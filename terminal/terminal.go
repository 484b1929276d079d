// Package terminal is a debug TCP server for operators: it exposes the
// same command-registry pattern used for interactive robot debugging,
// wired here to occupancy, robot state, daily stats, and the two ingress
// bus handlers instead of robot connections directly.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"smartfarm/internal/devicebus"
	"smartfarm/internal/graph"
	"smartfarm/internal/operatorbus"
	"smartfarm/internal/robotstate"
	"smartfarm/internal/stats"
	"smartfarm/shared"
)

// Deps bundles every component the terminal's commands touch.
type Deps struct {
	Graph       *graph.Graph
	Robots      *robotstate.Manager
	Stats       *stats.Accumulator
	DeviceBus   *devicebus.Handler
	OperatorBus *operatorbus.Handler
}

// Start listens on TERMINAL_PORT (default 9001) and serves the command
// registry over plain TCP until ctx is cancelled.
func Start(ctx context.Context, deps Deps, cancel context.CancelFunc) error {
	port := os.Getenv("TERMINAL_PORT")
	if port == "" {
		shared.DebugPrint("TERMINAL_PORT not set, using default port 9001")
		port = "9001"
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		return fmt.Errorf("starting terminal server: %w", err)
	}
	defer listener.Close()

	shared.DebugPrint("Terminal server listening on port %s", port)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					shared.DebugPrint("error accepting terminal connection: %v", err)
					continue
				}
			}
			shared.DebugPrint("accepted terminal connection from %s", conn.RemoteAddr())
			go handleConnection(ctx, conn, deps, cancel)
		}
	}()

	<-ctx.Done()
	shared.DebugPrint("shutting down terminal server...")
	return listener.Close()
}

func handleConnection(ctx context.Context, conn net.Conn, deps Deps, cancel context.CancelFunc) {
	defer conn.Close()

	cmdCtx := &CommandContext{
		Conn:        conn,
		Graph:       deps.Graph,
		Robots:      deps.Robots,
		Stats:       deps.Stats,
		DeviceBus:   deps.DeviceBus,
		OperatorBus: deps.OperatorBus,
		Cancel:      cancel,
	}

	conn.Write([]byte("=== Farm Controller Terminal ===\n"))
	conn.Write([]byte("Type 'help' for available commands.\n> "))

	scanner := bufio.NewScanner(conn)
	for {
		select {
		case <-ctx.Done():
			conn.Write([]byte("\nTerminal session ended.\n"))
			return
		default:
		}

		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			conn.Write([]byte("> "))
			continue
		}

		fields := strings.Fields(line)
		command, commandArgs := fields[0], fields[1:]

		if err := DefaultRegistry.ExecuteCommand(cmdCtx, command, commandArgs); err != nil {
			if err.Error() == "exit" {
				return
			}
			fmt.Fprintf(conn, "Error: %v\n", err)
		}
		conn.Write([]byte("> "))
	}
}
