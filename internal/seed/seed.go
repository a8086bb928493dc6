// Package seed produces the initial dashboard dataset: from the upstream
// initial-data endpoint, from a seed file, or from a built-in fallback.
package seed

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

	"github.com/cenkalti/backoff/v5"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/model"
)

// ErrNoNodes is returned for a dataset without any node.
var ErrNoNodes = errors.New("dataset has no nodes")

// Fetcher retrieves a dataset from one source.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) (model.Dataset, error)
}

// HTTPFetcher GETs a JSON dataset from the initial-data endpoint.
type HTTPFetcher struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
	// Attempts bounds the number of tries; zero means 3.
	Attempts uint
	// InitialBackoff is the wait before the second try; zero means 250ms.
	InitialBackoff time.Duration
}

// Name implements Fetcher.
func (f *HTTPFetcher) Name() string { return f.URL }

// Fetch implements Fetcher. 4xx responses are not retried.
func (f *HTTPFetcher) Fetch(ctx context.Context) (model.Dataset, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	attempts := f.Attempts
	if attempts == 0 {
		attempts = 3
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	if f.InitialBackoff > 0 {
		b.InitialInterval = f.InitialBackoff
	}

	return backoff.Retry(ctx, func() (model.Dataset, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.URL, nil)
		if err != nil {
			return model.Dataset{}, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return model.Dataset{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("initial data: unexpected status %s", resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return model.Dataset{}, backoff.Permanent(err)
			}
			return model.Dataset{}, err
		}
		ds, err := decodeJSON(resp.Body)
		if err != nil {
			return model.Dataset{}, backoff.Permanent(err)
		}
		return ds, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
}

// FileFetcher reads a dataset from a YAML or JSON file, by extension.
type FileFetcher struct {
	Path string
}

// Name implements Fetcher.
func (f *FileFetcher) Name() string { return f.Path }

// Fetch implements Fetcher.
func (f *FileFetcher) Fetch(ctx context.Context) (model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return model.Dataset{}, err
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(f.Path), ".json") {
		return decodeJSON(file)
	}
	var ds model.Dataset
	if err := yaml.NewDecoder(file).Decode(&ds); err != nil {
		return model.Dataset{}, fmt.Errorf("parse seed file: %w", err)
	}
	return normalize(ds)
}

func decodeJSON(r io.Reader) (model.Dataset, error) {
	var ds model.Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return model.Dataset{}, fmt.Errorf("decode dataset: %w", err)
	}
	return normalize(ds)
}

// normalize rejects empty datasets and fills the parts a source may omit.
func normalize(ds model.Dataset) (model.Dataset, error) {
	if len(ds.Nodes) == 0 {
		return model.Dataset{}, ErrNoNodes
	}
	if ds.Metrics == nil {
		ds.Metrics = model.MetricSet{}
	}
	for _, k := range model.MetricKinds() {
		if ds.Metrics[k] == nil {
			ds.Metrics[k] = []model.Sample{}
		}
	}
	if ds.SystemStatus == (model.SystemStatus{}) {
		ds.SystemStatus = model.DefaultSystemStatus()
	}
	return ds, nil
}

// Loader tries its fetchers in order and falls back to the built-in dataset.
type Loader struct {
	Fetchers []Fetcher
	// Now stamps the fallback series; nil means time.Now.
	Now func() time.Time
	// Seed drives the fallback series values.
	Seed uint64
	Log  logging.Logger
}

// Load returns the first dataset a fetcher produces together with the
// fetcher's name, or the fallback dataset and "fallback". It never fails.
func (l *Loader) Load(ctx context.Context) (model.Dataset, string) {
	log := logging.OrNoop(l.Log)
	for _, f := range l.Fetchers {
		if f == nil {
			continue
		}
		ds, err := f.Fetch(ctx)
		if err == nil {
			log.Info(ctx, "initial dataset loaded",
				logging.String("source", f.Name()),
				logging.Int("nodes", len(ds.Nodes)),
				logging.Int("links", len(ds.Links)),
			)
			return ds, f.Name()
		}
		log.Warn(ctx, "initial dataset unavailable",
			logging.String("source", f.Name()),
			logging.Err(err),
		)
	}

	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	log.Warn(ctx, "using fallback dataset")
	return Fallback(now(), l.Seed), "fallback"
}
