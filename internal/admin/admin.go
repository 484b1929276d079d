// Package admin exposes the read/operate HTTP surface over the core:
// occupancy, robot snapshots, daily stats, a path-plan preview mirror,
// and a websocket feed of live state changes. Routing follows the
// shape of a typical chi.Mux admin server plus a thin JSON-response
// helper; the websocket upgrade path and the bulk-stats gzip/aggregate
// endpoint fill in functionality that was only stubbed out before.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	mstats "github.com/montanaflynn/stats"

	"smartfarm/internal/graph"
	"smartfarm/internal/model"
	"smartfarm/internal/planner"
	"smartfarm/internal/robotstate"
	"smartfarm/internal/scheduler"
	"smartfarm/internal/stats"
	"smartfarm/internal/store"
	"smartfarm/shared"
)

// Server wires the core components to an HTTP router. One Server is
// shared across every admitted map.
type Server struct {
	graph     *graph.Graph
	planner   *planner.Planner
	robots    *robotstate.Manager
	statsAcc  *stats.Accumulator
	scheduler *scheduler.Scheduler
	store     store.Store
	router    *chi.Mux
}

// New constructs a Server and registers its routes.
func New(g *graph.Graph, p *planner.Planner, robots *robotstate.Manager, statsAcc *stats.Accumulator, sch *scheduler.Scheduler, s store.Store) *Server {
	srv := &Server{
		graph:     g,
		planner:   p,
		robots:    robots,
		statsAcc:  statsAcc,
		scheduler: sch,
		store:     s,
		router:    chi.NewRouter(),
	}
	srv.router.Use(middleware.Compress(5))
	srv.routes()
	return srv
}

// Handler returns the underlying http.Handler for a caller-owned
// http.Server, keeping transport lifecycle (listen/shutdown) in the
// composition root rather than here.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Route("/maps/{map}", func(r chi.Router) {
		r.Use(s.requireAdmittedMap)

		r.Get("/occupied", s.getOccupied)
		r.Post("/nodes/{id}/occupy", s.postOccupy)
		r.Post("/nodes/{id}/release", s.postRelease)

		r.Get("/robots", s.getRobots)
		r.Get("/robots/{robot}", s.getRobot)
		r.Post("/robots/{robot}/release", s.postReleaseAll)
		r.Get("/robots/{robot}/stats", s.getRobotStats)
		r.Post("/robots/{robot}/path", s.postPathPreview)
		r.Get("/robots/{robot}/ws", s.getRobotStateStream)

		r.Get("/stats", s.getMapStats)
	})

	s.router.Post("/admin/daily-reset", s.postRunDailyReset)
}

type mapConfigKey struct{}

// requireAdmittedMap enforces the admission prefix and resolves the
// map's MapConfig before any route handler runs.
func (s *Server) requireAdmittedMap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mapName := chi.URLParam(r, "map")
		if err := shared.ValidateMapName(mapName); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cfg, ok := shared.GetMapConfig(mapName)
		if !ok {
			http.Error(w, shared.ErrMapNotFound.Error(), http.StatusNotFound)
			return
		}
		ctx := context.WithValue(r.Context(), mapConfigKey{}, cfg)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func mapConfigFrom(r *http.Request) *shared.MapConfig {
	cfg, _ := r.Context().Value(mapConfigKey{}).(*shared.MapConfig)
	return cfg
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		shared.DebugError(err)
	}
}

func nodeIDParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil
}

func (s *Server) getOccupied(w http.ResponseWriter, r *http.Request) {
	mapName := chi.URLParam(r, "map")
	occupied, err := s.graph.ListOccupied(r.Context(), mapName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, occupied)
}

func (s *Server) postOccupy(w http.ResponseWriter, r *http.Request) {
	mapName := chi.URLParam(r, "map")
	id, ok := nodeIDParam(r)
	if !ok {
		http.Error(w, "invalid node id", http.StatusBadRequest)
		return
	}
	robotID := r.URL.Query().Get("robot")
	if robotID == "" {
		http.Error(w, "missing robot query parameter", http.StatusBadRequest)
		return
	}

	ok, err := s.graph.Occupy(r.Context(), mapName, id, robotID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"occupied": ok})
}

func (s *Server) postRelease(w http.ResponseWriter, r *http.Request) {
	mapName := chi.URLParam(r, "map")
	id, ok := nodeIDParam(r)
	if !ok {
		http.Error(w, "invalid node id", http.StatusBadRequest)
		return
	}
	robotID := r.URL.Query().Get("robot")

	released := s.graph.Release(r.Context(), mapName, id, robotID)
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

func (s *Server) postReleaseAll(w http.ResponseWriter, r *http.Request) {
	mapName := chi.URLParam(r, "map")
	robotID := chi.URLParam(r, "robot")

	count := s.graph.ReleaseAll(r.Context(), mapName, robotID)
	writeJSON(w, http.StatusOK, map[string]int{"released": count})
}

func (s *Server) getRobots(w http.ResponseWriter, r *http.Request) {
	mapName := chi.URLParam(r, "map")
	robots, err := s.robots.ListRobots(r.Context(), mapName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, robots)
}

func (s *Server) getRobot(w http.ResponseWriter, r *http.Request) {
	mapName := chi.URLParam(r, "map")
	robotID := chi.URLParam(r, "robot")
	robot := s.robots.GetRobot(r.Context(), mapName, robotID)
	writeJSON(w, http.StatusOK, robot)
}

func (s *Server) getRobotStats(w http.ResponseWriter, r *http.Request) {
	mapName := chi.URLParam(r, "map")
	robotID := chi.URLParam(r, "robot")
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	rows := s.statsAcc.GetDailyStatsFormatted(r.Context(), mapName, robotID, date, time.Now())
	writeJSON(w, http.StatusOK, rows)
}

type pathPreviewRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// postPathPreview mirrors the device-bus plain path_plan computation over
// HTTP for operators debugging a route, without publishing anything or
// mutating robot state.
func (s *Server) postPathPreview(w http.ResponseWriter, r *http.Request) {
	mapName := chi.URLParam(r, "map")
	robotID := chi.URLParam(r, "robot")

	var req pathPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, shared.ErrMalformedPayload.Error(), http.StatusBadRequest)
		return
	}

	plan, err := s.planner.PlanPath(r.Context(), mapName, req.Start, req.End, robotID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type robotStatsSummary struct {
	RobotID string                                `json:"robot_id"`
	Seconds map[model.RobotOperationState]float64 `json:"seconds"`
}

type mapStatsResponse struct {
	Robots        []robotStatsSummary `json:"robots"`
	MeanWorking   float64             `json:"mean_working_seconds"`
	MedianWorking float64             `json:"median_working_seconds"`
}

// getMapStats aggregates the daily stats of the robots named by the
// repeated "robot" query parameter into one response (compressed by the
// router-wide middleware.Compress wrapper when the client accepts it),
// with mean/median working-time computed across those robots.
func (s *Server) getMapStats(w http.ResponseWriter, r *http.Request) {
	mapName := chi.URLParam(r, "map")
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	robotIDs := r.URL.Query()["robot"]
	if len(robotIDs) == 0 {
		http.Error(w, "at least one robot query parameter is required", http.StatusBadRequest)
		return
	}

	resp := mapStatsResponse{Robots: make([]robotStatsSummary, 0, len(robotIDs))}
	working := make([]float64, 0, len(robotIDs))
	now := time.Now()

	for _, robotID := range robotIDs {
		seconds := s.statsAcc.GetDailyStats(r.Context(), mapName, robotID, date, now)
		resp.Robots = append(resp.Robots, robotStatsSummary{RobotID: robotID, Seconds: seconds})
		working = append(working, seconds[model.OpWorking])
	}

	data := mstats.Float64Data(working)
	if mean, err := data.Mean(); err == nil {
		resp.MeanWorking = mean
	}
	if median, err := data.Median(); err == nil {
		resp.MedianWorking = median
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) postRunDailyReset(w http.ResponseWriter, r *http.Request) {
	swept, err := s.scheduler.RunOnce(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"swept": swept})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// getRobotStateStream upgrades to a websocket and relays every snapshot
// published on the robot's store change-channel until the client
// disconnects or the request context is cancelled.
func (s *Server) getRobotStateStream(w http.ResponseWriter, r *http.Request) {
	mapName := chi.URLParam(r, "map")
	robotID := chi.URLParam(r, "robot")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		shared.DebugError(err)
		return
	}
	defer conn.Close()

	channel := changeChannelFor(mapName, robotID)
	messages := make(chan string, 16)
	unsubscribe, err := s.store.Subscribe(r.Context(), channel, func(_, message string) {
		select {
		case messages <- message:
		default:
			shared.DebugPrint("dropping state stream message for %s/%s: client too slow", mapName, robotID)
		}
	})
	if err != nil {
		shared.DebugError(err)
		return
	}
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-messages:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
	}
}

func changeChannelFor(mapName, robotID string) string {
	return mapName + "/robot/" + robotID + "/state"
}
