package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dougsko/specand/pkg/logging"
	"github.com/dougsko/specand/pkg/status"
)

const (
	defaultTraceCapacity = 1001
	minStreamInterval    = 50 * time.Millisecond
	defaultInterval      = 500 * time.Millisecond
	writeWait            = 5 * time.Second
)

// httpStatus maps a gateway status kind onto an HTTP status code
func httpStatus(err error) int {
	switch status.KindOf(err) {
	case status.KindRange, status.KindInvalidParameter, status.KindInvalidParameterValue:
		return http.StatusBadRequest
	case status.KindInvalidSession:
		return http.StatusNotFound
	case status.KindNotSupported:
		return http.StatusNotImplemented
	case status.KindDeviceRejected:
		return http.StatusUnprocessableEntity
	case status.KindTransportFailure, status.KindNoData:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if se, ok := status.As(err); ok {
		body["kind"] = se.Kind.String()
		if se.ParamIndex != 0 {
			body["param_index"] = se.ParamIndex
			body["param_name"] = se.ParamName
		}
		if se.Code != 0 {
			body["code"] = se.Code
		}
	}
	c.JSON(httpStatus(err), body)
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	text := c.Query(name)
	if text == "" {
		return def, true
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + ": invalid number " + strconv.Quote(text)})
		return 0, false
	}
	return n, true
}

// handleGetStatus returns daemon status via socket
func (d *Daemon) handleGetStatus(c *gin.Context) {
	st, err := d.socketClient.GetStatus()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (d *Daemon) handleGetSessions(c *gin.Context) {
	sessions, err := d.socketClient.Sessions()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (d *Daemon) handleGetAttribute(c *gin.Context) {
	v, err := d.socketClient.GetAttribute(c.Param("name"), c.Param("attr"), c.Query("selector"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (d *Daemon) handleSetAttribute(c *gin.Context) {
	var req struct {
		Selector string `json:"selector"`
		Value    string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.socketClient.SetAttribute(c.Param("name"), c.Param("attr"), req.Selector, req.Value); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"attribute": c.Param("attr"),
		"selector":  req.Selector,
		"value":     req.Value,
	})
}

func (d *Daemon) handleWrite(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.socketClient.Write(c.Param("name"), req.Command); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (d *Daemon) handleQuery(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := d.socketClient.Query(c.Param("name"), req.Command)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (d *Daemon) handleReadTrace(c *gin.Context) {
	cmd := c.Query("command")
	if cmd == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}
	capacity, ok := queryInt(c, "capacity", defaultTraceCapacity)
	if !ok {
		return
	}

	tr, err := d.socketClient.ReadTrace(c.Param("name"), cmd, capacity, c.Query("label"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (d *Daemon) handleSpectrum(c *gin.Context) {
	capacity, ok := queryInt(c, "capacity", 0)
	if !ok {
		return
	}
	size, ok := queryInt(c, "fft_size", 0)
	if !ok {
		return
	}

	spec, err := d.socketClient.Spectrum(c.Param("name"), capacity, size, c.Query("window"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, spec)
}

func (d *Daemon) handleGetTimeout(c *gin.Context) {
	timeout, err := d.socketClient.Timeout(c.Param("name"), 0)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milliseconds": timeout.Milliseconds()})
}

func (d *Daemon) handleSetTimeout(c *gin.Context) {
	var req struct {
		Milliseconds int `json:"milliseconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Milliseconds <= 0 {
		respondError(c, status.Range(2, "Timeout", "timeout must be positive, got %dms", req.Milliseconds))
		return
	}

	timeout, err := d.socketClient.Timeout(c.Param("name"), req.Milliseconds)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milliseconds": timeout.Milliseconds()})
}

func (d *Daemon) handleGetJournal(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	calls, err := d.socketClient.Journal(limit, c.Query("instrument"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"calls": calls,
		"count": len(calls),
	})
}

func (d *Daemon) handleGetTraces(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	traces, err := d.socketClient.Traces(limit, c.Query("instrument"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"traces": traces,
		"count":  len(traces),
	})
}

func (d *Daemon) handleReloadAttributes(c *gin.Context) {
	n, err := d.socketClient.Reload()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attributes": n})
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// traceFrame is one message of the trace stream
type traceFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Points    []float64 `json:"points,omitempty"`
	Written   int       `json:"written,omitempty"`
	Available int       `json:"available,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// handleTraceStream pushes a float array read to the client at a fixed
// interval until either side closes
func (d *Daemon) handleTraceStream(c *gin.Context) {
	name := c.Param("name")
	cmd := c.Query("command")
	if cmd == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}
	capacity, ok := queryInt(c, "capacity", defaultTraceCapacity)
	if !ok {
		return
	}
	interval := defaultInterval
	if text := c.Query("interval"); text != "" {
		parsed, err := time.ParseDuration(text)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "interval: " + err.Error()})
			return
		}
		interval = max(parsed, minStreamInterval)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("http", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	logging.Infof("http", "Trace stream for %s opened by %s", name, conn.RemoteAddr())

	// the read loop only notices the client going away
	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		frame := traceFrame{Type: "trace", Timestamp: time.Now()}
		tr, readErr := d.socketClient.ReadTrace(name, cmd, capacity, "")
		if readErr != nil {
			frame.Type = "error"
			frame.Error = readErr.Error()
		} else {
			frame.Points = tr.Points
			frame.Written = tr.Written
			frame.Available = tr.Available
			frame.Truncated = tr.Truncated
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			logging.Debugf("http", "Trace stream write error: %v", err)
			return
		}
		// an unknown instrument will not appear later
		if status.Is(readErr, status.KindInvalidSession) {
			return
		}

		select {
		case <-ticker.C:
		case <-quit:
			logging.Infof("http", "Trace stream for %s closed", name)
			return
		}
	}
}
