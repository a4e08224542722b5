// Package remote talks to the remote transcription service: chunked upload
// followed by job result polling.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resty.dev/v3"

	"scribe/internal/config"
	"scribe/internal/services"
	"scribe/internal/transcription"
)

const component = "remote"

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	ChunkSize int
	Timeout   time.Duration
}

// UploadEvent reports upload progress. The final event carries JobID or Err.
type UploadEvent struct {
	Progress float64
	JobID    string
	Err      error
}

// Result is one poll response.
type Result struct {
	IsDone       bool                    `json:"is_done"`
	Segments     []transcription.Segment `json:"segments,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
}

// API is the subset of Client used by the remote executor.
type API interface {
	UploadFile(ctx context.Context, path string, params transcription.Parameters, model string) <-chan UploadEvent
	GetResult(ctx context.Context, jobID string) (*Result, error)
}

// Client is a resty-backed API client.
type Client struct {
	http      *resty.Client
	chunkSize int
}

// NewFromConfig builds a client from the [remote] section.
func NewFromConfig(cfg *config.Config) *Client {
	return New(Options{
		BaseURL:   cfg.Remote.BaseURL,
		APIKey:    cfg.Remote.APIKey,
		ChunkSize: cfg.Remote.ChunkSizeKiB * 1024,
		Timeout:   cfg.RequestTimeout(),
	})
}

func New(opts Options) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	client.SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = 1 << 20
	}
	return &Client{http: client, chunkSize: chunk}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

type createUploadRequest struct {
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

type createUploadResponse struct {
	UploadID string `json:"upload_id"`
}

type completeRequest struct {
	Model      string                   `json:"model,omitempty"`
	Parameters transcription.Parameters `json:"parameters"`
}

type completeResponse struct {
	JobID string `json:"job_id"`
}

// UploadFile streams path in fixed-size chunks. Progress is the fraction of
// bytes acknowledged; the channel closes after the job id or an error.
func (c *Client) UploadFile(ctx context.Context, path string, params transcription.Parameters, model string) <-chan UploadEvent {
	events := make(chan UploadEvent, 4)
	go func() {
		defer close(events)
		jobID, err := c.upload(ctx, path, params, model, events)
		if err != nil {
			events <- UploadEvent{Err: err}
			return
		}
		events <- UploadEvent{Progress: 1, JobID: jobID}
	}()
	return events
}

func (c *Client) upload(ctx context.Context, path string, params transcription.Parameters, model string, events chan<- UploadEvent) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrResource, component, "open audio", "could not open recording for upload", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", services.Wrap(services.ErrResource, component, "open audio", "could not stat recording", err)
	}
	total := info.Size()

	var created createUploadResponse
	if err := c.call(ctx, http.MethodPost, "/v1/uploads", "create upload",
		createUploadRequest{FileName: filepath.Base(path), Size: total}, &created); err != nil {
		return "", err
	}
	if created.UploadID == "" {
		return "", services.Wrap(services.ErrTransport, component, "create upload", "server returned no upload id", nil)
	}
	events <- UploadEvent{Progress: 0}

	buf := make([]byte, c.chunkSize)
	var sent int64
	for index := 0; sent < total; index++ {
		if err := ctx.Err(); err != nil {
			return "", services.Wrap(services.ErrCanceled, component, "upload chunk", "upload canceled", err)
		}
		n, readErr := io.ReadFull(file, buf)
		if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
			return "", services.Wrap(services.ErrResource, component, "read audio", "could not read recording", readErr)
		}
		if n == 0 {
			break
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/octet-stream").
			SetHeader("Content-Range", fmt.Sprintf("bytes %d-%d/%d", sent, sent+int64(n)-1, total)).
			SetBody(buf[:n]).
			Put(fmt.Sprintf("/v1/uploads/%s/chunks/%d", created.UploadID, index))
		if err := checkResponse(ctx, resp, err, "upload chunk"); err != nil {
			return "", err
		}
		sent += int64(n)
		events <- UploadEvent{Progress: float64(sent) / float64(total)}
	}

	var completed completeResponse
	if err := c.call(ctx, http.MethodPost, fmt.Sprintf("/v1/uploads/%s/complete", created.UploadID), "complete upload",
		completeRequest{Model: model, Parameters: params}, &completed); err != nil {
		return "", err
	}
	if completed.JobID == "" {
		return "", services.Wrap(services.ErrTransport, component, "complete upload", "server returned no job id", nil)
	}
	return completed.JobID, nil
}

// GetResult polls a job once. Poll failures are not retried.
func (c *Client) GetResult(ctx context.Context, jobID string) (*Result, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, services.Wrap(services.ErrValidation, component, "get result", "job id is required", nil)
	}
	var result Result
	if err := c.call(ctx, http.MethodGet, "/v1/jobs/"+jobID, "get result", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method, url, op string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, url)
	if err := checkResponse(ctx, resp, err, op); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(resp.String()), out); err != nil {
		return services.Wrap(services.ErrTransport, component, op, "malformed response payload", err)
	}
	return nil
}

func checkResponse(ctx context.Context, resp *resty.Response, err error, op string) error {
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCanceled, component, op, "request canceled", ctx.Err())
		}
		return services.Wrap(services.ErrTransport, component, op, "request failed", err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return services.Wrap(services.ErrTransport, component, op,
			fmt.Sprintf("unexpected status %d", code), errors.New(truncate(resp.String(), 200)))
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
