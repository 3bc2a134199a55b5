// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocket carries the byte stream in binary messages, one chunk per
// message. A background goroutine owns ReadMessage so a read timeout never
// poisons the underlying connection.
type WebSocket struct {
	conn    *websocket.Conn
	url     string
	chunks  chan []byte
	pongs   chan struct{}
	buf     []byte
	timeout time.Duration

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// DialOptions configures DialWebSocket
type DialOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
	Timeout       time.Duration // handshake timeout, default 15s
}

// DialWebSocket connects to a ws:// or wss:// bridge with optional HTTP Basic auth
func DialWebSocket(ctx context.Context, wsURL string, opts DialOptions) (*WebSocket, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: opts.Timeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return NewWebSocket(conn, wsURL), nil
}

// NewWebSocket wraps an established connection and starts its reader
func NewWebSocket(conn *websocket.Conn, name string) *WebSocket {
	w := &WebSocket{
		conn:   conn,
		url:    name,
		chunks: make(chan []byte, 64),
		pongs:  make(chan struct{}, 1),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		select {
		case w.pongs <- struct{}{}:
		default:
		}
		return nil
	})
	go w.readLoop()
	return w
}

// readLoop exits when the connection fails or Close is called, even if
// nobody is draining chunks
func (w *WebSocket) readLoop() {
	defer close(w.done)
	defer close(w.chunks)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		select {
		case w.chunks <- data:
		case <-w.closed:
			return
		}
	}
}

func (w *WebSocket) Read(p []byte) (int, error) {
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	var timer <-chan time.Time
	if w.timeout > 0 {
		t := time.NewTimer(w.timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case data, ok := <-w.chunks:
		if !ok {
			return 0, w.closeErr()
		}
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	case <-timer:
		return 0, nil
	}
}

func (w *WebSocket) closeErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil || websocket.IsCloseError(w.err, websocket.CloseNormalClosure) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("%w: %v", ErrConnectionClosed, w.err)
}

func (w *WebSocket) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadTimeout bounds the next reads. A non-positive value blocks.
func (w *WebSocket) SetReadTimeout(t time.Duration) error {
	w.timeout = t
	return nil
}

// Ping sends a control ping and waits for the pong.
// Pongs are only observed while the reader goroutine is running.
func (w *WebSocket) Ping(timeout time.Duration) (time.Duration, error) {
	select {
	case <-w.pongs:
	default:
	}

	start := time.Now()
	if err := w.conn.WriteControl(websocket.PingMessage, []byte("cobotlink"), start.Add(timeout)); err != nil {
		return 0, err
	}

	select {
	case <-w.pongs:
		return time.Since(start), nil
	case <-time.After(timeout):
		return 0, fmt.Errorf("no pong within %v", timeout)
	}
}

func (w *WebSocket) Close() error {
	w.closeOnce.Do(func() { close(w.closed) })
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}

// String describes the connection for status output
func (w *WebSocket) String() string {
	return w.url
}
