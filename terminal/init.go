package terminal

// Auto-register commands using init().
func init() {
	RegisterCommand("list", "List robots on a map", "list <map_name>", listRobotsCommand)
	RegisterCommand("status", "Show one robot's state", "status <map_name> <robot_id>", statusCommand)
	RegisterCommand("occupied", "List occupied nodes on a map", "occupied <map_name>", occupiedCommand)
	RegisterCommand("release_all", "Release every node held by a robot", "release_all <map_name> <robot_id>", releaseAllCommand)
	RegisterCommand("stats", "Show a robot's daily stats", "stats <map_name> <robot_id> [date]", statsCommand)
	RegisterCommand("simulate_operator", "Feed a JSON payload through the operator-bus handler", "simulate_operator <json_payload>", simulateOperatorCommand)
	RegisterCommand("simulate_device", "Feed a JSON payload through the device-bus handler", "simulate_device <map_name> <robot_id> <command> <json_payload>", simulateDeviceCommand)
	RegisterCommand("stop", "Stop the program", "stop program", stopCommand)
	RegisterCommand("help", "Show available commands", "help [command]", helpCommand)
	RegisterCommand("exit", "Exit terminal session", "exit", exitCommand)
	RegisterCommand("quit", "Exit terminal session", "quit", exitCommand)
}
