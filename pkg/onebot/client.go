package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/sipeed/clawbot/pkg/config"
	"github.com/sipeed/clawbot/pkg/logger"
)

const (
	reconnectMin = 1 * time.Second
	reconnectMax = 60 * time.Second
)

// EventSink receives every decoded push event. It must not block; slow
// consumers should hand off to their own goroutines.
type EventSink func(*RawEvent)

type apiRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

// Client maintains a single forward WebSocket connection to a OneBot
// implementation, correlates API calls by echo, and pushes events to a sink.
type Client struct {
	cfg  config.OneBotConfig
	sink EventSink

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	waitMu  sync.Mutex
	waiters map[string]chan gjson.Result

	limiter *rate.Limiter

	frameMu   sync.Mutex
	lastFrame time.Time
	beatEvery time.Duration

	nowFunc func() time.Time
}

func NewClient(cfg config.OneBotConfig, sink EventSink) *Client {
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		cfg:     cfg,
		sink:    sink,
		waiters: make(map[string]chan gjson.Result),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		nowFunc: time.Now,
	}
}

// Start dials and keeps the connection alive until ctx is cancelled.
// Connection failures are retried with exponential backoff, the delay resets
// after every successful dial.
func (c *Client) Start(ctx context.Context) error {
	if c.cfg.WSUrl == "" {
		return fmt.Errorf("onebot ws_url not configured")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	logger.InfoCF("onebot", "Starting OneBot client", map[string]interface{}{
		"ws_url": c.cfg.WSUrl,
	})

	go c.runLoop()
	return nil
}

func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConn()
}

func (c *Client) runLoop() {
	delay := reconnectMin
	for {
		if c.ctx.Err() != nil {
			return
		}

		if err := c.connect(); err != nil {
			logger.WarnCF("onebot", "Connection failed, will retry", map[string]interface{}{
				"error":    err.Error(),
				"retry_in": delay.String(),
			})
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMax {
				delay = reconnectMax
			}
			continue
		}

		delay = reconnectMin
		c.readLoop()
	}
}

func (c *Client) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := make(map[string][]string)
	if c.cfg.AccessToken != "" {
		header["Authorization"] = []string{"Bearer " + c.cfg.AccessToken}
	}

	conn, _, err := dialer.Dial(c.cfg.WSUrl, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.frameMu.Lock()
	c.lastFrame = c.nowFunc()
	c.beatEvery = 0
	c.frameMu.Unlock()

	go c.watchHeartbeat(conn)

	logger.InfoC("onebot", "WebSocket connected")
	return nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				logger.ErrorCF("onebot", "WebSocket read error", map[string]interface{}{
					"error": err.Error(),
				})
			}
			c.closeConn()
			return
		}

		c.frameMu.Lock()
		c.lastFrame = c.nowFunc()
		c.frameMu.Unlock()

		if echo := gjson.GetBytes(payload, "echo").String(); echo != "" {
			c.resolveEcho(echo, gjson.ParseBytes(payload))
			continue
		}

		evt, err := DecodeEvent(payload)
		if err != nil {
			logger.WarnCF("onebot", "Dropping undecodable frame", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if evt.PostType == "meta_event" {
			c.handleMeta(evt)
		}

		if c.sink != nil {
			go c.sink(evt)
		}
	}
}

func (c *Client) handleMeta(evt *RawEvent) {
	if evt.MetaEventType != "heartbeat" {
		return
	}
	if ms := evt.Payload.Get("interval").Int(); ms > 0 {
		c.frameMu.Lock()
		c.beatEvery = time.Duration(ms) * time.Millisecond
		c.frameMu.Unlock()
	}
}

// watchHeartbeat closes the connection when the backend stops sending
// frames for twice its advertised heartbeat interval. The read loop then
// exits and the run loop redials.
func (c *Client) watchHeartbeat(conn *websocket.Conn) {
	grace := time.Duration(c.cfg.HeartbeatGraceSec) * time.Second
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		current := c.conn
		c.mu.Unlock()
		if current != conn {
			return
		}

		c.frameMu.Lock()
		last := c.lastFrame
		beat := c.beatEvery
		c.frameMu.Unlock()

		limit := grace
		if beat > 0 {
			limit = 2 * beat
		}
		if limit <= 0 {
			continue
		}

		if c.nowFunc().Sub(last) > limit {
			logger.WarnCF("onebot", "Heartbeat lost, dropping connection", map[string]interface{}{
				"silent_for": c.nowFunc().Sub(last).String(),
			})
			conn.Close()
			return
		}
	}
}

func (c *Client) resolveEcho(echo string, resp gjson.Result) {
	c.waitMu.Lock()
	waiter := c.waiters[echo]
	c.waitMu.Unlock()
	if waiter == nil {
		logger.DebugCF("onebot", "Response for unknown echo", map[string]interface{}{
			"echo": echo,
		})
		return
	}
	select {
	case waiter <- resp:
	default:
	}
}

// Action sends one API call and waits for the echo-correlated response.
// A non-zero retcode is reported in the result, not as an error; callers
// that care inspect it.
func (c *Client) Action(ctx context.Context, action string, params any) (gjson.Result, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return gjson.Result{}, fmt.Errorf("onebot not connected")
	}

	timeout := time.Duration(c.cfg.ActionTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, fmt.Errorf("rate limit wait: %w", err)
	}

	echo := uuid.NewString()
	waiter := make(chan gjson.Result, 1)
	c.waitMu.Lock()
	c.waiters[echo] = waiter
	c.waitMu.Unlock()
	defer func() {
		c.waitMu.Lock()
		delete(c.waiters, echo)
		c.waitMu.Unlock()
	}()

	payload, err := json.Marshal(apiRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal %s request: %w", action, err)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return gjson.Result{}, fmt.Errorf("write %s request: %w", action, err)
	}

	select {
	case resp := <-waiter:
		if rc := resp.Get("retcode").Int(); rc != 0 {
			logger.DebugCF("onebot", "API call returned non-zero retcode", map[string]interface{}{
				"action":  action,
				"retcode": rc,
			})
		}
		return resp, nil
	case <-ctx.Done():
		return gjson.Result{}, fmt.Errorf("%s: %w", action, ctx.Err())
	}
}
