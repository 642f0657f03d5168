package utils

import (
	"fmt"
	"time"
)

type DownloadTarget struct {
	URL         string
	LocalPath   string
	DisplayName string
}

type SizeKind int

const (
	SizeKnown SizeKind = iota
	SizeUnknown
	SizeUnauthorized
)

// RemoteSize is the outcome of size discovery. Probed is the bounded probe's
// byte count when Kind is SizeUnknown; it is a lower bound, not the real size.
type RemoteSize struct {
	Kind   SizeKind
	Size   int64
	Probed int64
}

func KnownSize(size int64) RemoteSize {
	return RemoteSize{Kind: SizeKnown, Size: size}
}

func (r RemoteSize) String() string {
	switch r.Kind {
	case SizeKnown:
		return fmt.Sprintf("known(%d)", r.Size)
	case SizeUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("unknown(probed %d)", r.Probed)
	}
}

type LocalFileState struct {
	Exists bool
	Size   int64
}

type PlanAction int

const (
	PlanSkip PlanAction = iota
	PlanResume
	PlanFresh
	PlanFailed
)

type TransferPlan struct {
	Action PlanAction
	Offset int64
}

func (p TransferPlan) String() string {
	switch p.Action {
	case PlanSkip:
		return "skip"
	case PlanResume:
		return fmt.Sprintf("resume(%d)", p.Offset)
	case PlanFresh:
		return "fresh"
	default:
		return "failed"
	}
}

type ClientConfig struct {
	MaxRetries      int
	BackoffFactor   time.Duration
	RetryableStatus map[int]bool
	AuthToken       string
	Timeout         time.Duration
	UserAgent       string
	ProxyURL        string
	ProxyUsername   string
	ProxyPassword   string
	Headers         map[string]string
}

// ProgressFunc receives the bytes written so far and the expected total;
// total is -1 when the server did not declare a length.
type ProgressFunc func(downloaded, total int64)

type RepoEntry struct {
	ID       string `yaml:"id"`
	Token    string `yaml:"token,omitempty"`
	Revision string `yaml:"revision,omitempty"`
}

type BatchFile struct {
	Models []RepoEntry `yaml:"models"`
}
