// Command smartfarm-controller is the entry point for the farm robot
// controller: graph/occupancy/planning, robot state, daily stats, the
// device-bus and operator-bus message handlers, the daily reset
// scheduler, connection tracking, the admin HTTP surface, and the debug
// terminal all start from here and share one cancellable context for
// coordinated shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"smartfarm/internal/admin"
	"smartfarm/internal/bus"
	"smartfarm/internal/devicebus"
	"smartfarm/internal/dispatch"
	"smartfarm/internal/graph"
	"smartfarm/internal/operatorbus"
	"smartfarm/internal/planner"
	"smartfarm/internal/presence"
	"smartfarm/internal/robotstate"
	"smartfarm/internal/scheduler"
	"smartfarm/internal/stats"
	"smartfarm/internal/store"
	"smartfarm/shared"
	"smartfarm/terminal"
)

// main wires every component and blocks until a termination signal or an
// unrecoverable component failure cancels the shared context, then waits
// (bounded) for graceful shutdown.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(".env"); err != nil {
		shared.DebugPrint("no .env file loaded: %v", err)
	}
	shared.InitConfig()

	var wg sync.WaitGroup

	dataStore, err := newStore(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize store: %v", err))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if closer, ok := dataStore.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				shared.DebugError(fmt.Errorf("closing store: %w", err))
			}
		}
	}()

	g := graph.New(dataStore)
	pl := planner.New(g)
	statsAcc := stats.New(dataStore)
	robots := robotstate.New(dataStore, statsAcc)
	tracker := presence.New(dataStore)
	sched := scheduler.New(statsAcc)

	brokerClient, err := bus.NewClient(shared.AppConfig.MQTTBrokerURL, shared.AppConfig.MQTTClientID)
	if err != nil {
		panic(fmt.Sprintf("failed to connect to broker: %v", err))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		brokerClient.Close()
	}()

	deviceBus := devicebus.New(g, pl, robots, dataStore, brokerClient)
	operatorBus := operatorbus.New(g, robots, brokerClient)

	queue := dispatch.New(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		queue.Shutdown()
	}()

	if err := subscribeDeviceBus(brokerClient, queue, deviceBus); err != nil {
		panic(fmt.Sprintf("failed to subscribe device bus: %v", err))
	}
	if err := subscribeOperatorBus(brokerClient, queue, operatorBus); err != nil {
		panic(fmt.Sprintf("failed to subscribe operator bus: %v", err))
	}
	if err := subscribePresence(brokerClient, tracker); err != nil {
		panic(fmt.Sprintf("failed to subscribe presence events: %v", err))
	}

	if err := sched.Start(ctx); err != nil {
		panic(fmt.Sprintf("failed to start daily reset scheduler: %v", err))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		sched.Stop()
	}()

	adminServer := admin.New(g, pl, robots, statsAcc, sched, dataStore)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", shared.AppConfig.HTTPPort),
		Handler: adminServer.Handler(),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		shared.DebugPrint("admin HTTP surface listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shared.DebugError(fmt.Errorf("admin HTTP server: %w", err))
			cancel()
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			shared.DebugError(fmt.Errorf("shutting down admin HTTP server: %w", err))
		}
	}()

	termDeps := terminal.Deps{
		Graph:       g,
		Robots:      robots,
		Stats:       statsAcc,
		DeviceBus:   deviceBus,
		OperatorBus: operatorBus,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := terminal.Start(ctx, termDeps, cancel); err != nil {
			shared.DebugError(err)
			cancel()
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		shared.DebugPrint("context cancelled, shutting down...")
	case <-sigs:
		shared.DebugPrint("received termination signal, shutting down...")
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		shared.DebugPrint("all components shut down gracefully.")
	case <-time.After(60 * time.Second):
		shared.DebugPrint("timeout waiting for shutdown, forcing exit.")
	}
}

// newStore picks a RedisStore for a real deployment, falling back to the
// in-process MemoryStore when STORE_BACKEND=memory (local runs without a
// Redis instance available).
func newStore(ctx context.Context) (store.Store, error) {
	if os.Getenv("STORE_BACKEND") == "memory" {
		shared.DebugPrint("using in-memory store (STORE_BACKEND=memory)")
		return store.NewMemoryStore(), nil
	}
	return store.NewRedisStore(ctx)
}

// subscribeDeviceBus wires the wildcard robot-to-server topic to the
// device-bus handler, serializing same-robot messages through the
// dispatch queue so arrival/path-plan ordering per robot is preserved.
func subscribeDeviceBus(sub bus.Subscriber, queue *dispatch.Dispatcher, handler *devicebus.Handler) error {
	return sub.Subscribe(bus.DeviceTopicPattern(), func(topic string, payload []byte) {
		mapName, robotID, command, ok := parseDeviceTopic(topic)
		if !ok {
			shared.DebugPrint("dropping device-bus message on malformed topic %q", topic)
			return
		}
		queue.Submit(mapName, robotID, func(ctx context.Context) {
			handler.HandleMessage(ctx, mapName, robotID, command, payload)
		})
	})
}

// parseDeviceTopic splits a "{map}/{robot}/robot/{command}" topic into
// its four segments.
func parseDeviceTopic(topic string) (mapName, robotID, command string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[2] != "robot" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[3], true
}

// subscribeOperatorBus wires the shared operator channel, and the legacy
// compat channel, to the operator-bus handler. Operator commands carry
// their own map name in the payload, so a single shared dispatch queue
// key is enough to keep them ordered relative to one another. The
// compat channel is subscribed unconditionally -- the handler itself
// drops anything whose map hasn't opted in via CompatRobotCommand --
// since the broker delivers one shared "robot:command" channel across
// every map, not a per-map topic this process could gate at subscribe
// time.
func subscribeOperatorBus(sub bus.Subscriber, queue *dispatch.Dispatcher, handler *operatorbus.Handler) error {
	if err := sub.Subscribe(shared.OperatorChannel, func(_ string, payload []byte) {
		queue.Submit("operator", "broadcast", func(ctx context.Context) {
			handler.HandleMessage(ctx, payload)
		})
	}); err != nil {
		return err
	}
	return sub.Subscribe(shared.CompatRobotCommandChannel, func(_ string, payload []byte) {
		queue.Submit("operator", "broadcast", func(ctx context.Context) {
			handler.HandleCompatMessage(ctx, payload)
		})
	})
}

// subscribePresence wires the broker's own client connect/disconnect
// events to the connection tracker.
func subscribePresence(sub bus.Subscriber, tracker *presence.Tracker) error {
	if err := sub.Subscribe("events/client/connected", func(_ string, payload []byte) {
		tracker.HandleConnected(context.Background(), payload, time.Now())
	}); err != nil {
		return err
	}
	return sub.Subscribe("events/client/disconnected", func(_ string, payload []byte) {
		tracker.HandleDisconnected(context.Background(), payload)
	})
}
