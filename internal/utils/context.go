package utils

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/tanq16/hfmirror/internal/output"
)

type ContextOptions struct {
	Endpoint string
	CacheDir string
	Workers  int
	Client   ClientConfig
	Prober   SpaceProber
	Output   *output.Manager
}

// DownloaderContext is built once per run and handed to every component.
// Nothing in it is mutated after construction.
type DownloaderContext struct {
	Config     ClientConfig
	Client     *http.Client
	NoRedirect *http.Client
	Guard      *SpaceGuard
	Output     *output.Manager
	Workers    int
	Endpoint   string
	CacheDir   string
}

func NewDownloaderContext(opts ContextOptions) (*DownloaderContext, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = MirrorEndpoint
	}
	parsed, err := url.Parse(opts.Endpoint)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", opts.Endpoint)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.CacheDir == "" {
		if opts.CacheDir, err = DefaultCacheDir(); err != nil {
			return nil, err
		}
	}
	if opts.Output == nil {
		opts.Output = output.NewManager()
	}
	client := NewRetryClient(opts.Client, parsed.Host)
	return &DownloaderContext{
		Config:     opts.Client,
		Client:     client,
		NoRedirect: NoRedirect(client),
		Guard:      NewSpaceGuard(opts.Prober),
		Output:     opts.Output,
		Workers:    opts.Workers,
		Endpoint:   opts.Endpoint,
		CacheDir:   opts.CacheDir,
	}, nil
}
