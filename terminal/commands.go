// terminal/commands.go
package terminal

import (
	"context"
	"fmt"
	"net"

	"smartfarm/internal/devicebus"
	"smartfarm/internal/graph"
	"smartfarm/internal/operatorbus"
	"smartfarm/internal/robotstate"
	"smartfarm/internal/stats"
)

// CommandFunc represents a terminal command function.
type CommandFunc func(ctx *CommandContext, args []string) error

// CommandInfo holds metadata about a command.
type CommandInfo struct {
	Name        string
	Description string
	Usage       string
	Handler     CommandFunc
}

// CommandContext is threaded through every command invocation on a
// connection, giving operators direct access to the same components the
// live buses use -- so a simulated command exercises the real dispatch
// logic, not a terminal-only copy of it.
type CommandContext struct {
	Conn        net.Conn
	Graph       *graph.Graph
	Robots      *robotstate.Manager
	Stats       *stats.Accumulator
	DeviceBus   *devicebus.Handler
	OperatorBus *operatorbus.Handler
	Cancel      context.CancelFunc
}

func (c *CommandContext) writeln(format string, args ...interface{}) {
	fmt.Fprintf(c.Conn, format+"\n", args...)
}

// CommandRegistry holds all registered commands.
type CommandRegistry struct {
	commands map[string]*CommandInfo
}

// DefaultRegistry is populated by each command file's init().
var DefaultRegistry = &CommandRegistry{
	commands: make(map[string]*CommandInfo),
}

// RegisterCommand registers a new command against DefaultRegistry.
func RegisterCommand(name, description, usage string, handler CommandFunc) {
	DefaultRegistry.commands[name] = &CommandInfo{
		Name:        name,
		Description: description,
		Usage:       usage,
		Handler:     handler,
	}
}

// GetCommand retrieves a command by name.
func (r *CommandRegistry) GetCommand(name string) (*CommandInfo, bool) {
	cmd, exists := r.commands[name]
	return cmd, exists
}

// ListCommands returns all registered commands.
func (r *CommandRegistry) ListCommands() []*CommandInfo {
	commands := make([]*CommandInfo, 0, len(r.commands))
	for _, cmd := range r.commands {
		commands = append(commands, cmd)
	}
	return commands
}

// ExecuteCommand executes a command by name.
func (r *CommandRegistry) ExecuteCommand(ctx *CommandContext, name string, args []string) error {
	cmd, exists := r.GetCommand(name)
	if !exists {
		return fmt.Errorf("unknown command: %s", name)
	}
	return cmd.Handler(ctx, args)
}
