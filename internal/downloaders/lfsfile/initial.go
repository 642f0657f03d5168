package lfsfile

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hfmirror/internal/utils"
)

// Resolver discovers how large a remote object is. Client follows
// redirects; NoRedirect shares its transport but returns 3xx responses.
type Resolver struct {
	Client     *http.Client
	NoRedirect *http.Client
	ProbeLimit int64
}

func NewResolver(dctx *utils.DownloaderContext) *Resolver {
	return &Resolver{
		Client:     dctx.Client,
		NoRedirect: dctx.NoRedirect,
		ProbeLimit: utils.ProbeLimit,
	}
}

// ResolveSize never fails: a 401 anywhere is SizeUnauthorized, a declared
// length is SizeKnown, everything else degrades to SizeUnknown.
func (r *Resolver) ResolveSize(ctx context.Context, link string) utils.RemoteSize {
	resp, err := head(ctx, r.NoRedirect, link)
	if err != nil {
		log.Warn().Str("op", "lfsfile/initial").Err(err).Msgf("HEAD failed for %s", link)
		return utils.RemoteSize{Kind: utils.SizeUnknown}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return utils.RemoteSize{Kind: utils.SizeUnauthorized}
	}
	if isRedirect(resp.StatusCode) {
		location, err := resp.Location()
		if err != nil {
			log.Warn().Str("op", "lfsfile/initial").Err(err).Msgf("Redirect without usable Location for %s", link)
			return utils.RemoteSize{Kind: utils.SizeUnknown}
		}
		log.Debug().Str("op", "lfsfile/initial").Msgf("Following %d from %s to %s", resp.StatusCode, link, location)
		resp, err = head(ctx, r.Client, location.String())
		if err != nil {
			log.Warn().Str("op", "lfsfile/initial").Err(err).Msgf("HEAD failed for redirect target %s", location)
			return utils.RemoteSize{Kind: utils.SizeUnknown}
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return utils.RemoteSize{Kind: utils.SizeUnauthorized}
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Str("op", "lfsfile/initial").Msgf("HEAD returned %d for %s", resp.StatusCode, link)
		return utils.RemoteSize{Kind: utils.SizeUnknown}
	}
	if resp.ContentLength >= 0 {
		return utils.KnownSize(resp.ContentLength)
	}
	log.Debug().Str("op", "lfsfile/initial").Msgf("No Content-Length for %s, probing", link)
	return r.probe(ctx, link)
}

// probe streams the body until it ends or ProbeLimit bytes were read. The
// count is only a lower bound, so the result stays SizeUnknown.
func (r *Resolver) probe(ctx context.Context, link string) utils.RemoteSize {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return utils.RemoteSize{Kind: utils.SizeUnknown}
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		log.Warn().Str("op", "lfsfile/initial").Err(err).Msgf("Probe failed for %s", link)
		return utils.RemoteSize{Kind: utils.SizeUnknown}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return utils.RemoteSize{Kind: utils.SizeUnauthorized}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return utils.RemoteSize{Kind: utils.SizeUnknown}
	}
	if resp.ContentLength >= 0 {
		return utils.KnownSize(resp.ContentLength)
	}
	n, err := probeLength(resp.Body, r.ProbeLimit)
	if err != nil {
		log.Warn().Str("op", "lfsfile/initial").Err(err).Msgf("Probe interrupted for %s after %d bytes", link, n)
	}
	return utils.RemoteSize{Kind: utils.SizeUnknown, Probed: n}
}

func probeLength(body io.Reader, limit int64) (int64, error) {
	if limit <= 0 {
		limit = utils.ProbeLimit
	}
	return io.Copy(io.Discard, io.LimitReader(body, limit))
}

func head(ctx context.Context, client *http.Client, link string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
