package utils

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	MirrorEndpoint = "https://hf-mirror.com"
	OriginEndpoint = "https://huggingface.co"

	DefaultWorkers  = 10
	DefaultRevision = "main"
	DefaultTimeout  = 60 * time.Second
	DefaultRetries  = 3
	DefaultBackoff  = 300 * time.Millisecond

	DefaultBufferSize = 1024 * 8        // 8KB chunks
	ProbeLimit        = 1 << 27         // 128MiB
	SafetyMargin      = 1 << 30         // 1GiB
	LogFile           = ".hfmirror.log" // written inside the cache dir
	ToolUserAgent     = "hfmirror/1.0"
)

var (
	ErrLocalLarger  = errors.New("unknown error: local file is larger than remote")
	ErrRangeIgnored = errors.New("server ignored range request")
)

func DefaultRetryableStatus() map[int]bool {
	return map[int]bool{
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusGatewayTimeout:      true,
		http.StatusNotFound:            true,
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxRetries:      DefaultRetries,
		BackoffFactor:   DefaultBackoff,
		RetryableStatus: DefaultRetryableStatus(),
		Timeout:         DefaultTimeout,
		UserAgent:       ToolUserAgent,
	}
}

type FatalKind int

const (
	FatalUnauthorized FatalKind = iota
	FatalLowDisk
	FatalMissingTool
)

// FatalError aborts the whole run. It is never used for recoverable,
// per-target conditions.
type FatalError struct {
	Kind FatalKind
	Err  error
}

func (e *FatalError) Error() string {
	switch e.Kind {
	case FatalUnauthorized:
		return fmt.Sprintf("unauthorized: %v", e.Err)
	case FatalLowDisk:
		return fmt.Sprintf("low disk space: %v", e.Err)
	case FatalMissingTool:
		return fmt.Sprintf("missing tool: %v", e.Err)
	}
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }

// RetryError reports a response whose status stayed retryable for every attempt.
type RetryError struct {
	StatusCode int
	Attempts   int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("status %d after %d attempts", e.StatusCode, e.Attempts)
}
