// terminal/fleet_commands.go
package terminal

import (
	"context"
	"fmt"
	"time"
)

func listRobotsCommand(ctx *CommandContext, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: list <map_name>")
	}
	mapName := args[0]

	robots, err := ctx.Robots.ListRobots(context.Background(), mapName)
	if err != nil {
		return err
	}
	if len(robots) == 0 {
		ctx.writeln("No robots on file for %s.", mapName)
		return nil
	}
	ctx.writeln("Robots on %s:", mapName)
	for _, r := range robots {
		ctx.writeln("  %s  current=%s final=%v status=%s battery=%.0f%% node_count=%d",
			r.RobotID, r.CurrentNode.String(), r.FinalNode, r.Status, r.BatteryState, r.NodeCount)
	}
	return nil
}

func statusCommand(ctx *CommandContext, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: status <map_name> <robot_id>")
	}
	robot := ctx.Robots.GetRobot(context.Background(), args[0], args[1])
	ctx.writeln("robot=%s current=%s final=%v status=%s battery=%.0f%% charging=%d node_count=%d",
		robot.RobotID, robot.CurrentNode.String(), robot.FinalNode, robot.Status,
		robot.BatteryState, robot.ChargingState, robot.NodeCount)
	return nil
}

func occupiedCommand(ctx *CommandContext, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: occupied <map_name>")
	}
	occupied, err := ctx.Graph.ListOccupied(context.Background(), args[0])
	if err != nil {
		return err
	}
	if len(occupied) == 0 {
		ctx.writeln("No nodes occupied on %s.", args[0])
		return nil
	}
	for id, robot := range occupied {
		ctx.writeln("  node %d -> %s", id, robot)
	}
	return nil
}

func releaseAllCommand(ctx *CommandContext, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: release_all <map_name> <robot_id>")
	}
	count := ctx.Graph.ReleaseAll(context.Background(), args[0], args[1])
	ctx.writeln("Released %d node(s) held by %s.", count, args[1])
	return nil
}

func statsCommand(ctx *CommandContext, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: stats <map_name> <robot_id> [date]")
	}
	date := time.Now().Format("2006-01-02")
	if len(args) >= 3 {
		date = args[2]
	}
	rows := ctx.Stats.GetDailyStatsFormatted(context.Background(), args[0], args[1], date, time.Now())
	ctx.writeln("Daily stats for %s/%s on %s:", args[0], args[1], date)
	for _, row := range rows {
		ctx.writeln("  %-16s %8.0fs  %5.1f%%", row.State, row.Seconds, row.Percentage)
	}
	return nil
}

// simulateOperatorCommand feeds a hand-typed JSON operator-bus payload
// through the exact same decode/dispatch path the broker subscription
// uses, so it exercises real behaviour rather than a terminal-only stub.
func simulateOperatorCommand(ctx *CommandContext, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: simulate_operator <json_payload>")
	}
	raw := []byte(joinRest(args))
	ctx.OperatorBus.HandleMessage(context.Background(), raw)
	ctx.writeln("Dispatched operator payload.")
	return nil
}

// simulateDeviceCommand feeds a hand-typed JSON device-bus payload
// through Handler.HandleMessage for a given map/robot/command.
func simulateDeviceCommand(ctx *CommandContext, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: simulate_device <map_name> <robot_id> <command> <json_payload>")
	}
	mapName, robotID, command := args[0], args[1], args[2]
	raw := []byte(joinRest(args[3:]))
	ctx.DeviceBus.HandleMessage(context.Background(), mapName, robotID, command, raw)
	ctx.writeln("Dispatched device payload.")
	return nil
}

func joinRest(args []string) string {
	joined := ""
	for i, a := range args {
		if i > 0 {
			joined += " "
		}
		joined += a
	}
	return joined
}

func exitCommand(ctx *CommandContext, args []string) error {
	return fmt.Errorf("exit")
}

func stopCommand(ctx *CommandContext, args []string) error {
	if len(args) < 1 || args[0] != "program" {
		return fmt.Errorf("usage: stop program")
	}
	ctx.writeln("Stopping program...")
	ctx.Cancel()
	return nil
}

func helpCommand(ctx *CommandContext, args []string) error {
	if len(args) == 0 {
		ctx.writeln("Available commands:")
		for _, cmd := range DefaultRegistry.ListCommands() {
			ctx.writeln("  %-18s %s", cmd.Name, cmd.Description)
		}
		ctx.writeln("\nUse 'help <command>' for detailed usage.")
		return nil
	}
	cmd, ok := DefaultRegistry.GetCommand(args[0])
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	ctx.writeln("%s - %s\nUsage: %s", cmd.Name, cmd.Description, cmd.Usage)
	return nil
}
