package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openarcloud/spatialdds-discovery/pkg/topics"
)

const logPrefix = "manifest:resolver"

// Resolution modes reported in Status.Mode.
const (
	ModeLocal             = "LOCAL"
	ModeLocalMissing      = "LOCAL_MISSING"
	ModeLocalError        = "LOCAL_ERROR"
	ModeHTTPS             = "HTTPS"
	ModeHTTPSDisabled     = "HTTPS_DISABLED"
	ModeHTTPSError        = "HTTPS_ERROR"
	ModeUnsupportedScheme = "UNSUPPORTED_SCHEME"
	ModeManifestInvalid   = "MANIFEST_INVALID"
)

const (
	cacheCapacity      = 128
	remoteFetchTimeout = 5 * time.Second
)

// Status describes how a resolution attempt concluded. A nil manifest with
// a non-empty Detail is a resolution failure the caller may downgrade to
// protocol defaults.
type Status struct {
	Mode   string `json:"mode"`
	Path   string `json:"path,omitempty"`
	Detail string `json:"detail,omitempty"`
	Cached bool   `json:"cached"`
}

type cacheEntry struct {
	expiry time.Time
	data   *Manifest
	status Status
}

// Resolver resolves manifest URIs with a bounded TTL cache. Every outcome,
// including failures, is cached for the caller's TTL: a known-bad URI is
// not retried within the window.
type Resolver struct {
	cache      *lru.Cache[string, cacheEntry]
	localTable map[string]string
	allowHTTPS bool
	httpClient *http.Client
	now        func() time.Time
}

// ResolverOpts configures a Resolver. Nil means defaults.
type ResolverOpts struct {
	// LocalTable maps spatialdds:// manifest URIs to local file paths.
	LocalTable map[string]string
	// AllowHTTPS enables remote fetch for https:// manifest URIs.
	AllowHTTPS bool
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	// Now overrides the clock (tests).
	Now func() time.Time
}

// NewResolver creates a Resolver. The cache is bounded; oldest entries are
// evicted when full.
func NewResolver(opts *ResolverOpts) *Resolver {
	r := &Resolver{
		localTable: map[string]string{},
		httpClient: &http.Client{Timeout: remoteFetchTimeout},
		now:        time.Now,
	}
	if opts != nil {
		if opts.LocalTable != nil {
			r.localTable = opts.LocalTable
		}
		r.allowHTTPS = opts.AllowHTTPS
		if opts.HTTPClient != nil {
			r.httpClient = opts.HTTPClient
		}
		if opts.Now != nil {
			r.now = opts.Now
		}
	}
	cache, err := lru.New[string, cacheEntry](cacheCapacity)
	if err != nil {
		panic(fmt.Sprintf("%s - cache init: %v", logPrefix, err))
	}
	r.cache = cache
	return r
}

// Resolve maps a manifest URI to a Manifest. A nil manifest plus a status
// detail means resolution failed; the caller decides whether that is fatal
// or a fall-back-to-defaults condition.
func (r *Resolver) Resolve(manifestURI string, ttlSec int64) (*Manifest, Status) {
	if entry, ok := r.cache.Get(manifestURI); ok {
		if r.now().Before(entry.expiry) {
			status := entry.status
			status.Cached = true
			return entry.data, status
		}
		// Lazy purge on read once the entry has expired.
		r.cache.Remove(manifestURI)
	}

	data, status := r.resolveUncached(manifestURI)
	if data != nil {
		if ok, errs := topics.ValidateCanonical(data.TopicNames(), data.Kind); !ok {
			slog.Warn(fmt.Sprintf("%s - manifest %s has non-canonical topics: %s",
				logPrefix, manifestURI, strings.Join(errs, "; ")))
			data = nil
			status = Status{Mode: ModeManifestInvalid, Path: status.Path, Detail: strings.Join(errs, "; ")}
		}
	}

	r.cache.Add(manifestURI, cacheEntry{
		expiry: r.now().Add(time.Duration(ttlSec) * time.Second),
		data:   data,
		status: status,
	})
	return data, status
}

func (r *Resolver) resolveUncached(manifestURI string) (*Manifest, Status) {
	parsed, err := url.Parse(manifestURI)
	if err != nil {
		return nil, Status{Mode: ModeUnsupportedScheme, Detail: fmt.Sprintf("unparseable uri: %v", err)}
	}

	switch parsed.Scheme {
	case "https":
		if !r.allowHTTPS {
			return nil, Status{Mode: ModeHTTPSDisabled, Detail: "remote manifest fetch is disabled"}
		}
		return r.resolveRemote(parsed)
	case "spatialdds":
		return r.resolveLocal(manifestURI)
	default:
		return nil, Status{Mode: ModeUnsupportedScheme, Detail: fmt.Sprintf("unsupported scheme %q", parsed.Scheme)}
	}
}

func (r *Resolver) resolveLocal(manifestURI string) (*Manifest, Status) {
	localPath, ok := r.localTable[manifestURI]
	if !ok {
		return nil, Status{Mode: ModeLocalMissing, Detail: "no local mapping for manifest uri"}
	}
	raw, err := os.ReadFile(localPath)
	if err != nil {
		return nil, Status{Mode: ModeLocalError, Path: localPath, Detail: err.Error()}
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, Status{Mode: ModeLocalError, Path: localPath, Detail: fmt.Sprintf("malformed manifest: %v", err)}
	}
	return &m, Status{Mode: ModeLocal, Path: localPath}
}

// resolveRemote fetches a manifest from the authority's well-known
// location: https://<authority>/.well-known/spatialdds/<escaped-path>.json.
func (r *Resolver) resolveRemote(parsed *url.URL) (*Manifest, Status) {
	path := strings.TrimPrefix(parsed.Path, "/")
	fetchURL := fmt.Sprintf("https://%s/.well-known/spatialdds/%s.json",
		parsed.Host, url.PathEscape(path))

	resp, err := r.httpClient.Get(fetchURL)
	if err != nil {
		return nil, Status{Mode: ModeHTTPSError, Path: fetchURL, Detail: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, Status{Mode: ModeHTTPSError, Path: fetchURL, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Status{Mode: ModeHTTPSError, Path: fetchURL, Detail: err.Error()}
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, Status{Mode: ModeHTTPSError, Path: fetchURL, Detail: fmt.Sprintf("malformed manifest: %v", err)}
	}
	return &m, Status{Mode: ModeHTTPS, Path: fetchURL}
}
