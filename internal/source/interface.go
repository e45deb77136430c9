package source

// FrameSource is the session contract against the local frame daemon.
// A session moves through its own states (disconnected/connected/capturing)
// in lockstep with the device lifecycle: Dial on Initialize, Connect on
// Connect, OpenCapture on Start, CloseCapture on Stop, Disconnect on
// Disconnect, Close when the device is torn down.
type FrameSource interface {
	// Dial opens the session to the daemon. Endpoint is an opaque local
	// address, e.g. a TCP port on localhost.
	Dial(endpoint string) error

	// Close tears the session down. Safe to call on a session that never
	// connected.
	Close() error

	// Connect attaches to the camera device behind the daemon.
	Connect() error

	// Disconnect detaches from the camera device.
	Disconnect() error

	// QueryInfo returns the daemon's capability description string.
	QueryInfo() (string, error)

	// OpenCapture starts a capture session for the given frame geometry.
	OpenCapture(width, height int, pixelFormat uint32) error

	// CloseCapture ends the capture session.
	CloseCapture() error

	// PullFrame synchronously retrieves one frame. The daemon populates both
	// the current frame buffer and the preview buffer, applying the given
	// white balance channel gains and exposure compensation. Buffer sizes are
	// taken from the slice lengths.
	PullFrame(frameBuf, previewBuf []byte, whiteBalance [3]float32, exposure float32) error
}
