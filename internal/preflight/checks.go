package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"scribe/internal/models"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckModel verifies that the named model resolves to a complete export
// under modelsDir.
func CheckModel(ctx context.Context, modelsDir, name string) Result {
	label := "Model " + name
	var final models.LoadEvent
	for event := range models.NewDirLoader(modelsDir).Load(ctx, name) {
		final = event
	}
	if final.Err != nil {
		return Result{Name: label, Detail: summarizeError(final.Err)}
	}
	if final.Model == nil {
		return Result{Name: label, Detail: "model did not load"}
	}
	return Result{
		Name:   label,
		Passed: true,
		Detail: fmt.Sprintf("%s (~%d MiB)", final.Model.Dir, final.Model.FootprintBytes>>20),
	}
}

// CheckRemote verifies the remote service is configured and that its host
// accepts TCP connections. It does not authenticate.
func CheckRemote(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Remote service"

	base := strings.TrimSpace(baseURL)
	if base == "" {
		return Result{Name: name, Detail: "missing base_url"}
	}
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "missing api key"}
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid base_url %q", base)}
	}
	host := parsed.Host
	if parsed.Port() == "" {
		port := "443"
		if parsed.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(parsed.Hostname(), port)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (%s)", host, summarizeError(err))}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", host)}
}

func summarizeError(err error) string {
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.As(err, &opErr) && opErr.Err != nil:
		return opErr.Err.Error()
	default:
		return err.Error()
	}
}
