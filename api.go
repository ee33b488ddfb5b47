package main

import (
	"LocalTranslator/ai"
	"LocalTranslator/cleanup"
	"LocalTranslator/config"
	"LocalTranslator/discord"
	"LocalTranslator/translation"
	"LocalTranslator/utils"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"
)

var scheduler = gocron.NewScheduler(time.Now().Location())
var wss sync.Map // map[string]*Room
var e *echo.Echo

const (
	HealthOK          = "ok"
	HealthUnreachable = "unreachable"
)

type HealthStatus struct {
	Status    string `json:"status"`
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	Error     string `json:"error,omitempty"`
	CheckedAt int64  `json:"checkedAt"`
}

type healthResponse struct {
	HealthStatus
	TotalJobs   int `json:"totalJobs"`
	RunningJobs int `json:"runningJobs"`
}

var healthCache *Cache[HealthStatus]
var lastHealth string

// fetchHealth always returns a status, never an error: unreachable is a
// cacheable answer, not a fetch failure.
func fetchHealth() (HealthStatus, error) {
	status := HealthStatus{
		Status:    HealthUnreachable,
		Provider:  config.TheConfig.AiProvider,
		CheckedAt: time.Now().UnixMilli(),
	}
	backend, err := ai.New()
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	model, err := backend.Health(context.Background())
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Status = HealthOK
	status.Model = model
	return status, nil
}

func pollHealth() {
	status, _ := healthCache.Get()
	if status.Status == lastHealth {
		return
	}
	switch status.Status {
	case HealthOK:
		discord.Infof("Backend %s healthy: %s", status.Provider, status.Model)
	case HealthUnreachable:
		discord.Warnf("Backend %s unreachable: %s", status.Provider, status.Error)
	}
	lastHealth = status.Status
}

// Room fans job events out to every websocket watching one job.
type Room struct {
	mutex    sync.RWMutex
	id       string
	watchers map[string]*Watcher
}

type Watcher struct {
	ws *websocket.Conn
	id string
}

func (w *Watcher) Send(message interface{}) {
	messageStr := ""
	switch m := message.(type) {
	case string:
		messageStr = m
	case []byte:
		messageStr = string(m)
	default:
		b, err := json.Marshal(message)
		if err != nil {
			discord.Errorf("error marshalling message: %v", err)
			return
		}
		messageStr = string(b)
	}
	if err := websocket.Message.Send(w.ws, messageStr); err != nil {
		log.Debugf("error sending to watcher %s: %v", w.id, err)
	}
}

func roomBroadcast(id string, message interface{}) {
	roomI, ok := wss.Load(id)
	if !ok {
		return
	}
	room := roomI.(*Room)
	b, err := json.Marshal(message)
	if err != nil {
		discord.Errorf("error marshalling broadcast: %v", err)
		return
	}
	room.mutex.RLock()
	defer room.mutex.RUnlock()
	for _, watcher := range room.watchers {
		watcher.Send(b)
	}
}

type SnapshotPayload struct {
	Type string  `json:"type"`
	Job  JobView `json:"job"`
}

// CreateJobRequest is the POST /jobs body. Language and batching fields are
// optional per-job overrides of the configured defaults.
type CreateJobRequest struct {
	Content      string `json:"content"`
	Mode         string `json:"mode"`
	FileName     string `json:"fileName"`
	SourceLang   string `json:"sourceLang"`
	TargetLang   string `json:"targetLang"`
	BatchSize    int    `json:"batchSize"`
	DelaySeconds int    `json:"delaySeconds"`
}

func REST() {
	if err := os.MkdirAll(config.TheConfig.Output, 0755); err != nil {
		log.Fatalf("error creating output directory: %v", err)
	}
	healthCache = CreateCache[HealthStatus](config.TheConfig.HealthPollInterval/2, true, fetchHealth)
	_, err := jobsCache.Get()
	if err != nil {
		discord.Errorf("error initializing jobs: %v", err)
	}
	scheduler.Every(int(config.TheConfig.HealthPollInterval.Seconds())).Seconds().Do(pollHealth)
	scheduler.Every(1).Hour().Do(sweepJobs)
	scheduler.StartAsync()
	cleanup.AddOnStopFunc(cleanup.Scheduler, func(_ os.Signal) {
		scheduler.Stop()
	})
	cleanup.AddOnStopFunc(cleanup.Jobs, func(_ os.Signal) {
		jobs.Range(func(_, value interface{}) bool {
			job := value.(*Job)
			if !terminal(job.Snapshot().State) {
				job.worker.Abort()
			}
			return true
		})
	})
	e = echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
	}), middleware.GzipWithConfig(middleware.DefaultGzipConfig), middleware.Logger(), middleware.Recover())
	routes()
	cleanup.AddOnStopFunc(cleanup.Echo, func(_ os.Signal) {
		if err := e.Close(); err != nil {
			discord.Errorf("error closing server: %v", err)
		}
	})
	e.Logger.Fatal(e.Start(config.TheConfig.Bind))
}

func routes() {
	e.Static("/static", config.TheConfig.Output)
	e.GET("/health", func(c echo.Context) error {
		status, _ := healthCache.Get()
		total, running := countJobs()
		code := http.StatusOK
		if status.Status != HealthOK {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, healthResponse{HealthStatus: status, TotalJobs: total, RunningJobs: running})
	})
	e.GET("/jobs", func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(jobsCache.GetMarshalled()))
	})
	e.POST("/jobs", createJobHandler)
	e.GET("/jobs/:id", func(c echo.Context) error {
		id := c.Param("id")
		if job := getJob(id); job != nil {
			return c.JSON(http.StatusOK, job.Snapshot())
		}
		if data := populate(id); data != nil {
			return c.JSON(http.StatusOK, data)
		}
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	})
	e.GET("/jobs/:id/result", func(c echo.Context) error {
		id := c.Param("id")
		data, name, err := resultFor(id)
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=%q", name))
		return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(data))
	})
	e.POST("/jobs/:id/abort", func(c echo.Context) error {
		id := c.Param("id")
		job := getJob(id)
		if job == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
		}
		job.worker.Abort()
		return c.JSON(http.StatusOK, job.Snapshot())
	})
	e.GET("/ws/:id", func(c echo.Context) error {
		id := c.Param("id")
		if getJob(id) == nil && populate(id) == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
		}
		websocket.Handler(func(ws *websocket.Conn) {
			watcher := &Watcher{ws: ws, id: utils.RandomString(8)}
			roomI, _ := wss.LoadOrStore(id, &Room{id: id, watchers: make(map[string]*Watcher)})
			room := roomI.(*Room)
			room.mutex.Lock()
			room.watchers[watcher.id] = watcher
			room.mutex.Unlock()
			log.Infof("[%s] watcher %s connected", id, watcher.id)
			defer func() {
				room.mutex.Lock()
				delete(room.watchers, watcher.id)
				room.mutex.Unlock()
				log.Infof("[%s] watcher %s disconnected", id, watcher.id)
			}()
			if job := getJob(id); job != nil {
				watcher.Send(SnapshotPayload{Type: "snapshot", Job: job.Snapshot()})
			} else if data := populate(id); data != nil {
				watcher.Send(map[string]interface{}{"type": "snapshot", "job": data})
			}
			for {
				msg := ""
				if err := websocket.Message.Receive(ws, &msg); err != nil {
					return
				}
				// watchers only listen, inbound frames are dropped
			}
		}).ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

func createJobHandler(c echo.Context) error {
	status, _ := healthCache.Get()
	if status.Status != HealthOK {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "backend unreachable, refusing job"})
	}
	req := &CreateJobRequest{}
	if file, err := c.FormFile("file"); err == nil {
		src, err := file.Open()
		if err != nil {
			return err
		}
		defer func() {
			if err := src.Close(); err != nil {
				discord.Errorf("error closing upload: %v", err)
			}
		}()
		b, err := io.ReadAll(src)
		if err != nil {
			return err
		}
		req.Content = string(b)
		req.FileName = file.Filename
		req.Mode = c.FormValue("mode")
		req.SourceLang = c.FormValue("sourceLang")
		req.TargetLang = c.FormValue("targetLang")
		if n, err := strconv.Atoi(c.FormValue("batchSize")); err == nil {
			req.BatchSize = n
		}
		if n, err := strconv.Atoi(c.FormValue("delaySeconds")); err == nil {
			req.DelaySeconds = n
		}
	} else if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is empty"})
	}
	if req.Mode == "" {
		req.Mode = translation.ModeSubtitles
	}
	params := translation.ParamsFromConfig()
	sourceName, _ := config.ParseLanguage(req.SourceLang)
	targetName, _ := config.ParseLanguage(req.TargetLang)
	params.Instruction = config.GetInstruction(sourceName, targetName)
	if req.BatchSize > 0 {
		params.BatchSize = req.BatchSize
	}
	if req.DelaySeconds > 0 {
		params.BatchDelay = time.Duration(req.DelaySeconds) * time.Second
	}
	var job *Job
	var err error
	switch req.Mode {
	case translation.ModeSubtitles:
		job, err = newSubtitleJob(req.Content, req.FileName, req.SourceLang, req.TargetLang, params)
	case translation.ModeText:
		job, err = newTextJob(req.Content, req.SourceLang, req.TargetLang, params)
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown mode: " + req.Mode})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if err := startJob(job); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	view := job.Snapshot()
	log.Infof("Job %s created: mode %s, %d entries, %d batches",
		view.Id, view.Mode, view.TotalEntries, view.TotalBatches)
	return c.JSON(http.StatusAccepted, view)
}
