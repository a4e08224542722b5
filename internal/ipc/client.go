package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Stop asks the daemon to stop and exit.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// AddRecording registers an audio file in the catalog.
func (c *Client) AddRecording(path, title string) (*AddRecordingResponse, error) {
	return call[AddRecordingResponse](c, "AddRecording", AddRecordingRequest{Path: path, Title: title})
}

// Transcribe enqueues a transcription task.
func (c *Client) Transcribe(req TranscribeRequest) (*TranscribeResponse, error) {
	return call[TranscribeResponse](c, "Transcribe", req)
}

// Cancel cancels the task for a recording.
func (c *Client) Cancel(recordingID string) (*CancelResponse, error) {
	return call[CancelResponse](c, "Cancel", CancelRequest{RecordingID: recordingID})
}

// CancelAll cancels every queued and running task.
func (c *Client) CancelAll() (*CancelAllResponse, error) {
	return call[CancelAllResponse](c, "CancelAll", CancelAllRequest{})
}

// Resume moves a paused task to the head of the queue.
func (c *Client) Resume(recordingID string) (*ResumeResponse, error) {
	return call[ResumeResponse](c, "Resume", ResumeRequest{RecordingID: recordingID})
}

// QueueList returns the queue in processing order.
func (c *Client) QueueList() (*QueueListResponse, error) {
	return call[QueueListResponse](c, "QueueList", QueueListRequest{})
}

// ShowRecording returns one recording with its transcript.
func (c *Client) ShowRecording(recordingID string) (*ShowRecordingResponse, error) {
	return call[ShowRecordingResponse](c, "ShowRecording", ShowRecordingRequest{RecordingID: recordingID})
}

// RecordingList returns the catalog.
func (c *Client) RecordingList() (*RecordingListResponse, error) {
	return call[RecordingListResponse](c, "RecordingList", RecordingListRequest{})
}

// Lifecycle forwards an app lifecycle event.
func (c *Client) Lifecycle(event string) (*LifecycleResponse, error) {
	return call[LifecycleResponse](c, "Lifecycle", LifecycleRequest{Event: event})
}

// LogTail returns daemon log lines.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}
