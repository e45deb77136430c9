package source

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon is an in-process TCP fixture speaking the daemon protocol
type fakeDaemon struct {
	ln       net.Listener
	infoStr  string
	failCmds map[string]string // command -> error message
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	d := &fakeDaemon{
		ln:       ln,
		infoStr:  "fake camera, formats=RGB4",
		failCmds: make(map[string]string),
	}

	go d.serve()
	t.Cleanup(func() { ln.Close() })

	return d
}

func (d *fakeDaemon) port() string {
	_, port, _ := net.SplitHostPort(d.ln.Addr().String())
	return port
}

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handleConn(conn)
	}
}

func (d *fakeDaemon) handleConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			fmt.Fprintf(conn, "err empty query\n")
			continue
		}

		if msg, fail := d.failCmds[fields[0]]; fail {
			fmt.Fprintf(conn, "err %s\n", msg)
			continue
		}

		switch fields[0] {
		case "connect", "disconnect", "start", "stop":
			fmt.Fprintf(conn, "ok\n")
		case "info":
			fmt.Fprintf(conn, "ok %d\n", len(d.infoStr))
			conn.Write([]byte(d.infoStr))
		case "frame":
			frameLen, _ := strconv.Atoi(fields[1])
			previewLen, _ := strconv.Atoi(fields[2])
			payload := bytes.Repeat([]byte{0xCD}, frameLen+previewLen)
			fmt.Fprintf(conn, "ok %d\n", len(payload))
			conn.Write(payload)
		default:
			fmt.Fprintf(conn, "err unknown query\n")
		}
	}
}

func newTestClient(t *testing.T, d *fakeDaemon) *Client {
	t.Helper()

	client := NewClient(ClientConfig{})
	require.NoError(t, client.Dial(d.port()))
	t.Cleanup(func() { client.Close() })

	return client
}

func TestClientDial(t *testing.T) {
	t.Run("BarePortDialsLocalhost", func(t *testing.T) {
		d := newFakeDaemon(t)

		client := NewClient(ClientConfig{})
		require.NoError(t, client.Dial(d.port()))
		defer client.Close()
	})

	t.Run("HostPortForm", func(t *testing.T) {
		d := newFakeDaemon(t)

		client := NewClient(ClientConfig{})
		require.NoError(t, client.Dial(d.ln.Addr().String()))
		defer client.Close()
	})

	t.Run("ConnectionRefused", func(t *testing.T) {
		client := NewClient(ClientConfig{})
		err := client.Dial("1") // port 1: nothing listening
		assert.Error(t, err)
	})

	t.Run("DoubleDialFails", func(t *testing.T) {
		d := newFakeDaemon(t)

		client := newTestClient(t, d)
		assert.Error(t, client.Dial(d.port()))
	})
}

func TestClientSessionOps(t *testing.T) {
	d := newFakeDaemon(t)
	client := newTestClient(t, d)

	require.NoError(t, client.Connect())
	assert.True(t, client.IsConnected())

	require.NoError(t, client.OpenCapture(640, 480, 0x34424752))
	assert.True(t, client.IsCapturing())

	require.NoError(t, client.CloseCapture())
	assert.False(t, client.IsCapturing())

	require.NoError(t, client.Disconnect())
	assert.False(t, client.IsConnected())
}

func TestClientQueryInfo(t *testing.T) {
	d := newFakeDaemon(t)
	client := newTestClient(t, d)

	info, err := client.QueryInfo()
	require.NoError(t, err)
	assert.Equal(t, d.infoStr, info)
}

func TestClientPullFrame(t *testing.T) {
	d := newFakeDaemon(t)
	client := newTestClient(t, d)

	require.NoError(t, client.Connect())
	require.NoError(t, client.OpenCapture(8, 8, 0x34424752))

	frame := make([]byte, 8*8*4)
	preview := make([]byte, 8*8*4)

	require.NoError(t, client.PullFrame(frame, preview, [3]float32{1, 1, 1}, 1))

	// both buffers are fully populated
	for i := range frame {
		require.Equal(t, byte(0xCD), frame[i])
	}
	for i := range preview {
		require.Equal(t, byte(0xCD), preview[i])
	}
}

func TestClientDaemonRejection(t *testing.T) {
	d := newFakeDaemon(t)
	d.failCmds["connect"] = "device busy"

	client := newTestClient(t, d)

	err := client.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
	assert.False(t, client.IsConnected())
}

func TestClientWithoutSession(t *testing.T) {
	client := NewClient(ClientConfig{})

	assert.Error(t, client.Connect())
	assert.Error(t, client.CloseCapture())
	_, err := client.QueryInfo()
	assert.Error(t, err)

	// Close on a never-opened session is a no-op
	assert.NoError(t, client.Close())
}

func TestClientCloseResetsState(t *testing.T) {
	d := newFakeDaemon(t)
	client := newTestClient(t, d)

	require.NoError(t, client.Connect())
	require.NoError(t, client.OpenCapture(8, 8, 0x34424752))

	require.NoError(t, client.Close())
	assert.False(t, client.IsConnected())
	assert.False(t, client.IsCapturing())

	// a fresh session can be opened again
	require.NoError(t, client.Dial(d.port()))
}
