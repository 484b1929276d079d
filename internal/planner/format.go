package planner

import (
	"fmt"
	"strconv"
	"strings"

	"smartfarm/internal/model"
)

// FormatPath encodes a plain node-to-node path as
// "{end}!{nodes[0]},{dirs[0]}/{nodes[1]},{dirs[1]}/.../{nodes[-2]},{dirs[-1]}/".
// The final node (nodes[len(nodes)-1]) is intentionally never emitted in
// the body -- the device infers arrival from the "{end}!" prefix. nodes[0]
// must equal the start node; the loop only ever walks len(dirs) entries,
// which structurally excludes the final node from the body.
func FormatPath(end int, nodes []int, dirs []model.Direction) string {
	displays := make([]string, len(nodes))
	for i, n := range nodes {
		displays[i] = strconv.Itoa(n)
	}
	return formatSequence(strconv.Itoa(end), displays, dirs)
}

// Sentinel is the "no route" response: face down, stay at start.
func Sentinel(end, start int) string {
	return fmt.Sprintf("%d!/d~%d", end, start)
}

func formatSequence(endDisplay string, waypoints []string, dirs []model.Direction) string {
	var b strings.Builder
	b.WriteString(endDisplay)
	b.WriteString("!")
	for i, dir := range dirs {
		b.WriteString(waypoints[i])
		b.WriteString(",")
		b.WriteString(string(dir))
		b.WriteString("/")
	}
	return b.String()
}

// FormatSubPath encodes a fine-grained sub-position sequence per the SUB
// grammar: "{final}/{last_dir}~{end}!{start},{first_dir}/{node-s,dir}*/".
// positions holds every waypoint display ("node-sub") including start and
// the final stop; dirs[i] is the direction travelled from positions[i] to
// positions[i+1], so len(dirs) == len(positions)-1.
func FormatSubPath(positions []string, dirs []model.Direction) string {
	final := positions[len(positions)-1]
	lastDir := dirs[len(dirs)-1]
	body := formatSequence(final, positions, dirs)
	return final + "/" + string(lastDir) + "~" + body
}

// NextStepPath encodes the single-step form the `next` device command
// emits: "{next}/{d}~{next}-{s}!{cur}-{s0},{d}/".
func NextStepPath(nextNode, nextSub int, dir model.Direction, curNode, curSub int) string {
	next := fmt.Sprintf("%d-%d", nextNode, nextSub)
	cur := fmt.Sprintf("%d-%d", curNode, curSub)
	return next + "/" + string(dir) + "~" + next + "!" + cur + "," + string(dir) + "/"
}
