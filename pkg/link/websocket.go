// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

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

// WebSocket is a serial line tunnelled through binary WebSocket messages.
// A background reader buffers incoming messages so ReadAvailable never blocks.
type WebSocket struct {
	conn *websocket.Conn
	url  string

	mu     sync.Mutex
	buf    []byte
	err    error
	closed bool
}

// OpenWebSocket opens a WebSocket connection with HTTP Basic auth
func OpenWebSocket(wsURL, username, password string, skipSSLVerify bool) (*WebSocket, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	w := &WebSocket{conn: conn, url: wsURL}
	go w.readLoop()
	return w, nil
}

func (w *WebSocket) readLoop() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.err = err
			w.closed = true
			w.mu.Unlock()
			return
		}
		// only binary messages carry serial data
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.mu.Lock()
		w.buf = append(w.buf, data...)
		w.mu.Unlock()
	}
}

// ReadAvailable returns the bytes buffered since the last call
func (w *WebSocket) ReadAvailable() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data := w.buf
	w.buf = nil
	if len(data) == 0 && w.closed {
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, w.err)
	}
	return data, nil
}

func (w *WebSocket) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocket) Close() error {
	return w.conn.Close()
}

func (w *WebSocket) String() string {
	return fmt.Sprintf("WebSocket: %s", w.url)
}
