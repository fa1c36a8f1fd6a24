// Package api serves the task engine over HTTP and WebSocket.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/pomodoro"
	"github.com/harrisonrobin/pomodo/pkg/store"
	"github.com/harrisonrobin/pomodo/pkg/view"
)

type Options struct {
	Timer pomodoro.Options
	// JWTSecret enables bearer auth on /api and /ws when set.
	JWTSecret string
	// AllowedOrigin restricts WebSocket upgrades; empty allows any.
	AllowedOrigin string
	Now           func() time.Time
}

type Server struct {
	store  *store.Store
	hub    *Hub
	timers *timerSlot
	now    func() time.Time
	engine *gin.Engine

	unsubscribe func()
	upgrader    websocket.Upgrader
}

func New(st *store.Store, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	hub := NewHub(st.ListAll)
	s := &Server{
		store:  st,
		hub:    hub,
		timers: &timerSlot{counter: st, opts: opts.Timer, hub: hub},
		now:    opts.Now,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return opts.AllowedOrigin == "" || r.Header.Get("Origin") == opts.AllowedOrigin
			},
		},
	}
	s.unsubscribe = st.Subscribe(hub.OnChange)
	s.engine = s.routes([]byte(opts.JWTSecret))
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Hub() *Hub { return s.hub }

// Close stops the timer, the change feed and every WebSocket client.
func (s *Server) Close() error {
	s.unsubscribe()
	if err := s.timers.close(); err != nil && !errors.Is(err, errNoTimer) {
		logger.Warn("closing timer", "error", err)
	}
	return s.hub.Close()
}

func (s *Server) routes(secret []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Observe())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	protected := r.Group("/")
	if len(secret) > 0 {
		protected.Use(RequireToken(secret))
	} else {
		logger.Warn("api: no JWT secret configured, endpoints are unauthenticated")
	}
	protected.GET("/ws", s.serveWS)

	api := protected.Group("/api")
	api.GET("/tasks", s.listTasks)
	api.POST("/tasks", s.createTask)
	api.GET("/tasks/:id", s.getTask)
	api.PATCH("/tasks/:id", s.updateTask)
	api.DELETE("/tasks/:id", s.deleteTask)
	api.POST("/tasks/:id/toggle", s.toggleTask)
	api.GET("/due", s.dueTasks)

	api.GET("/timer", s.timerState)
	api.POST("/timer", s.openTimer)
	api.POST("/timer/start", s.startTimer)
	api.POST("/timer/pause", s.timerAction((*pomodoro.Timer).Pause))
	api.POST("/timer/reset", s.timerAction((*pomodoro.Timer).Reset))
	api.DELETE("/timer", s.closeTimer)
	return r
}

// listTasks accepts ?tag=WORK,URGENT and ?all=true.
func (s *Server) listTasks(c *gin.Context) {
	var f view.Filter
	if raw := c.Query("tag"); raw != "" {
		tags, err := model.ParseTags(raw)
		if err != nil {
			abort(c, &model.ValidationError{Field: "tag", Reason: err.Error()})
			return
		}
		f.Tags = tags
	}
	f.ShowCompleted, _ = strconv.ParseBool(c.Query("all"))

	tasks, err := s.store.ListAll(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, view.Apply(tasks, f))
}

func (s *Server) createTask(c *gin.Context) {
	var d model.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		abort(c, &model.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	id, err := s.store.Create(c.Request.Context(), d)
	if err != nil {
		abort(c, err)
		return
	}
	task, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) updateTask(c *gin.Context) {
	var p model.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		abort(c, &model.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	id := c.Param("id")
	if err := s.store.Update(c.Request.Context(), id, p); err != nil {
		abort(c, err)
		return
	}
	s.getTask(c)
}

func (s *Server) deleteTask(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleTask(c *gin.Context) {
	completed, err := s.store.ToggleCompleted(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "completed": completed})
}

// dueTasks accepts ?range=today|week or ?from=N&to=M day offsets.
func (s *Server) dueTasks(c *gin.Context) {
	from, to := 0, 1
	switch c.DefaultQuery("range", "today") {
	case "today":
	case "week":
		to = 7
	default:
		abort(c, &model.ValidationError{Field: "range", Reason: "must be today or week"})
		return
	}
	if raw, ok := c.GetQuery("from"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			abort(c, &model.ValidationError{Field: "from", Reason: err.Error()})
			return
		}
		from = n
	}
	if raw, ok := c.GetQuery("to"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			abort(c, &model.ValidationError{Field: "to", Reason: err.Error()})
			return
		}
		to = n
	}

	tasks, err := s.store.ListAll(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, view.DueWithin(tasks, s.now(), from, to))
}

func (s *Server) timerState(c *gin.Context) {
	t, err := s.timers.current()
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, t.Snapshot())
}

type openTimerRequest struct {
	TaskID string `json:"task_id" binding:"required"`
}

// openTimer replaces any open timer with an idle one for the task.
func (s *Server) openTimer(c *gin.Context) {
	var req openTimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, &model.ValidationError{Field: "task_id", Reason: "required"})
		return
	}
	if _, err := s.store.Get(c.Request.Context(), req.TaskID); err != nil {
		abort(c, err)
		return
	}
	t := s.timers.open(req.TaskID)
	s.publishTimer(t)
	c.JSON(http.StatusCreated, t.Snapshot())
}

func (s *Server) startTimer(c *gin.Context) {
	t, err := s.timers.current()
	if err == nil {
		err = t.Start()
	}
	if err != nil {
		abort(c, err)
		return
	}
	s.publishTimer(t)
	c.JSON(http.StatusOK, t.Snapshot())
}

func (s *Server) timerAction(fn func(*pomodoro.Timer)) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := s.timers.current()
		if err != nil {
			abort(c, err)
			return
		}
		fn(t)
		s.publishTimer(t)
		c.JSON(http.StatusOK, t.Snapshot())
	}
}

func (s *Server) closeTimer(c *gin.Context) {
	if err := s.timers.close(); err != nil {
		abort(c, err)
		return
	}
	s.hub.Broadcast(Message{Type: MsgTimer, Data: nil})
	c.Status(http.StatusNoContent)
}

func (s *Server) publishTimer(t *pomodoro.Timer) {
	s.hub.Broadcast(Message{Type: MsgTimer, Data: t.Snapshot()})
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "error", err)
		return
	}
	s.hub.Serve(conn)
}
