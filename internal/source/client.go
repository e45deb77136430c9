package source

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client is the TCP implementation of FrameSource. It speaks a small framed
// query protocol against the frame daemon listening on a local port: each
// query is a single text line, each response is a status line ("ok", "ok
// <payload-len>" or "err <message>") optionally followed by a binary payload.
type Client struct {
	logger      *zap.Logger
	dialTimeout time.Duration
	ioTimeout   time.Duration

	// mutex serializes queries on the shared connection
	mutex     sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	connected bool
	capturing bool
}

// ClientConfig holds the daemon client settings
type ClientConfig struct {
	Logger      *zap.Logger
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// NewClient creates a new frame daemon client
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.IOTimeout == 0 {
		config.IOTimeout = 10 * time.Second
	}

	return &Client{
		logger:      config.Logger,
		dialTimeout: config.DialTimeout,
		ioTimeout:   config.IOTimeout,
	}
}

// Dial opens the TCP session to the daemon. The endpoint is either a bare
// port number (daemon on localhost) or a full host:port address.
func (c *Client) Dial(endpoint string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn != nil {
		return fmt.Errorf("session already open")
	}

	addr := endpoint
	if _, err := strconv.Atoi(endpoint); err == nil {
		addr = net.JoinHostPort("127.0.0.1", endpoint)
	}

	conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to dial frame daemon at %s: %w", addr, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)

	c.logger.Debug("frame daemon session opened", zap.String("addr", addr))

	return nil
}

// Close tears the session down
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.connected = false
	c.capturing = false

	return err
}

// Connect attaches to the camera device behind the daemon
func (c *Client) Connect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.roundTrip("connect"); err != nil {
		return err
	}

	c.connected = true
	return nil
}

// Disconnect detaches from the camera device
func (c *Client) Disconnect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.roundTrip("disconnect"); err != nil {
		return err
	}

	c.connected = false
	return nil
}

// QueryInfo returns the daemon's capability description string
func (c *Client) QueryInfo() (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	n, err := c.roundTrip("info")
	if err != nil {
		return "", err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(c.reader, payload); err != nil {
		return "", fmt.Errorf("failed to read info payload: %w", err)
	}

	return string(payload), nil
}

// OpenCapture starts a capture session for the given frame geometry
func (c *Client) OpenCapture(width, height int, pixelFormat uint32) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	cmd := fmt.Sprintf("start %d %d %d", width, height, pixelFormat)
	if _, err := c.roundTrip(cmd); err != nil {
		return err
	}

	c.capturing = true
	return nil
}

// CloseCapture ends the capture session
func (c *Client) CloseCapture() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.roundTrip("stop"); err != nil {
		return err
	}

	c.capturing = false
	return nil
}

// PullFrame synchronously retrieves one frame into the caller's buffers. The
// daemon answers with len(frameBuf)+len(previewBuf) payload bytes, frame
// buffer first.
func (c *Client) PullFrame(frameBuf, previewBuf []byte, whiteBalance [3]float32, exposure float32) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	cmd := fmt.Sprintf("frame %d %d %g %g %g %g",
		len(frameBuf), len(previewBuf),
		whiteBalance[0], whiteBalance[1], whiteBalance[2], exposure)

	n, err := c.roundTrip(cmd)
	if err != nil {
		return err
	}

	want := len(frameBuf) + len(previewBuf)
	if n != want {
		return fmt.Errorf("unexpected frame payload size: got %d, want %d", n, want)
	}

	if _, err := io.ReadFull(c.reader, frameBuf); err != nil {
		return fmt.Errorf("failed to read frame payload: %w", err)
	}
	if _, err := io.ReadFull(c.reader, previewBuf); err != nil {
		return fmt.Errorf("failed to read preview payload: %w", err)
	}

	return nil
}

// IsConnected reports whether the device behind the daemon is attached
func (c *Client) IsConnected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.connected
}

// IsCapturing reports whether a capture session is open
func (c *Client) IsCapturing() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.capturing
}

// roundTrip sends one query line and parses the status line. It returns the
// announced payload length; the payload itself stays in the reader for the
// caller to consume. Must be called with the mutex held.
func (c *Client) roundTrip(cmd string) (int, error) {
	if c.conn == nil {
		return 0, fmt.Errorf("session not open")
	}

	deadline := time.Now().Add(c.ioTimeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return 0, fmt.Errorf("failed to set deadline: %w", err)
	}

	if _, err := fmt.Fprintf(c.conn, "%s\n", cmd); err != nil {
		return 0, fmt.Errorf("failed to send query %q: %w", cmd, err)
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("failed to read response for %q: %w", cmd, err)
	}
	line = strings.TrimRight(line, "\r\n")

	switch {
	case line == "ok":
		return 0, nil
	case strings.HasPrefix(line, "ok "):
		n, err := strconv.Atoi(strings.TrimPrefix(line, "ok "))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("malformed payload length in response %q", line)
		}
		return n, nil
	case strings.HasPrefix(line, "err "):
		return 0, fmt.Errorf("daemon rejected %q: %s", cmd, strings.TrimPrefix(line, "err "))
	default:
		return 0, fmt.Errorf("malformed response %q", line)
	}
}
