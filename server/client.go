package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/guseggert/sheetshell/reader"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// streamReadLimit bounds the size of one event message received by the client.
const streamReadLimit = 1 << 24

const clientEventBufferSize = 16

// Client talks to a Server.
type Client struct {
	Logger *zap.SugaredLogger
	// HTTPClient dials the WebSocket streams.
	HTTPClient *http.Client

	baseURL     string
	retryClient *retryablehttp.Client
	retryMax    int
}

type ClientOption func(c *Client)

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.Logger = l.Named("server_client").Sugar()
	}
}

// WithClientRetryMax sets how many times requests other than streams are retried.
func WithClientRetryMax(n int) ClientOption {
	return func(c *Client) {
		c.retryMax = n
	}
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.HTTPClient = h
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

// NewClient returns a client of the server at baseURL, such as "http://127.0.0.1:8080".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		Logger:     defaultLogger.Named("server_client").Sugar(),
		HTTPClient: http.DefaultClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		retryMax:   4,
	}
	for _, o := range opts {
		o(c)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = c.HTTPClient
	retryClient.RetryWaitMin = 10 * time.Millisecond
	retryClient.RetryWaitMax = 500 * time.Millisecond
	retryClient.RetryMax = c.retryMax
	retryClient.Logger = &logAdapter{SugaredLogger: c.Logger}
	c.retryClient = retryClient
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := c.retryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP error: %w", err)
	}
	return resp, nil
}

func (c *Client) Heartbeat(ctx context.Context) (*Heartbeat, error) {
	resp, err := c.do(ctx, http.MethodGet, "/heartbeat", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected heartbeat status code %d", resp.StatusCode)
	}
	var hb Heartbeat
	if err := json.NewDecoder(resp.Body).Decode(&hb); err != nil {
		return nil, fmt.Errorf("decoding heartbeat: %w", err)
	}
	return &hb, nil
}

// Read reads whole workbooks on the server, like reader.Read.
// Errors reported by the server are returned as *RemoteError values, combined with multierr.
func (c *Client) Read(ctx context.Context, req ReadRequest) ([]*reader.Workbook, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/read", b)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			body = []byte(fmt.Errorf("error reading body: %w", err).Error())
		}
		return nil, fmt.Errorf("non-200 HTTP status code %d received when reading: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var readResp ReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&readResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	var errs error
	for _, e := range readResp.Errors {
		errs = multierr.Append(errs, e.err())
	}
	return readResp.Workbooks, errs
}

// Stream reads on the server over a WebSocket, returning the reader events as they arrive.
// The channel always ends with reader.EventClose and callers must drain it.
// Errors reported by the server arrive as *RemoteError values, and a broken stream ends with the error that broke it.
// Cell values are plain JSON: dates are RFC 3339 strings and cell errors are objects.
func (c *Client) Stream(ctx context.Context, req ReadRequest) (<-chan reader.Event, error) {
	u := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/read"
	c.Logger.Debugw("dialing WebSocket for read", "URL", u)
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPClient:      c.HTTPClient,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		c.Logger.Debugf("dial error: %s", err)
		return nil, fmt.Errorf("establishing WebSocket conn to read: %w", err)
	}
	conn.SetReadLimit(streamReadLimit)

	if err := wsjson.Write(ctx, conn, req); err != nil {
		closeConn(c.Logger, conn, websocket.StatusInternalError, fmt.Sprintf("writing request: %s", err))
		return nil, fmt.Errorf("writing request: %w", err)
	}

	events := make(chan reader.Event, clientEventBufferSize)
	go c.readMessages(ctx, conn, events)
	return events, nil
}

func (c *Client) readMessages(ctx context.Context, conn *websocket.Conn, events chan<- reader.Event) {
	defer close(events)

	workbooks := map[string]*reader.Workbook{}
	closed := false
	for {
		var msg Message
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if closed {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					c.Logger.Debugf("error after the end of the stream: %s", err)
				}
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			c.Logger.Debugf("stream broken: %s", err)
			closeConn(c.Logger, conn, websocket.StatusNormalClosure, "")
			events <- reader.Event{Type: reader.EventError, Err: fmt.Errorf("reading stream: %w", err)}
			events <- reader.Event{Type: reader.EventClose}
			return
		}

		switch msg.Type {
		case reader.EventOpen.String():
			if msg.Workbook == nil {
				msg.Workbook = &reader.Workbook{}
			}
			workbooks[msg.Workbook.File] = msg.Workbook
			events <- reader.Event{Type: reader.EventOpen, Workbook: msg.Workbook}
		case reader.EventData.String():
			wb, ok := workbooks[msg.File]
			if !ok {
				wb = &reader.Workbook{File: msg.File}
			}
			events <- reader.Event{Type: reader.EventData, Batch: &reader.Batch{Workbook: wb, Sheet: msg.Sheet, Rows: msg.Rows}}
		case reader.EventError.String():
			var errMsg ErrorMessage
			if msg.Error != nil {
				errMsg = *msg.Error
			}
			events <- reader.Event{Type: reader.EventError, Err: errMsg.err()}
		case reader.EventClose.String():
			closed = true
			events <- reader.Event{Type: reader.EventClose}
		default:
			c.Logger.Debugf("ignoring message of type %q", msg.Type)
		}
	}
}
