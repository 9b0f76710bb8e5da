package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	metricNamespace     = "github.com/tomisteven/cliente-natural-pets/internal/platform/secrets"
)

// ErrSecretNotFound is returned when neither Secret Manager nor the local file has the secret.
var ErrSecretNotFound = errors.New("secrets: secret not found")

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// and sm:// configuration references. Outside the local environment
// every value comes from Secret Manager; locally a .secrets.local file can stand in for it.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger

	env          string
	project      string
	fallbackPath string
	cacheTTL     time.Duration
	now          func() time.Time

	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.Mutex
	cache map[string]cacheEntry

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	project      string
	fallbackPath string
	cacheTTL     time.Duration
	now          func() time.Time
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithEnvironment sets the deployment environment. Only "local" permits the fallback file.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) {
		if env = strings.ToLower(strings.TrimSpace(env)); env != "" {
			cfg.env = env
		}
	}
}

// WithDefaultProject sets the project used when a reference does not name one.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.project = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithCacheTTL bounds how long a resolved value is reused. Zero keeps values for the process lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *fetcherConfig) {
		if ttl >= 0 {
			cfg.cacheTTL = ttl
		}
	}
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(cfg *fetcherConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) {
		cfg.meter = m
	}
}

// WithSecretManagerClient injects a preconfigured Secret Manager client (primarily for tests).
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is only tolerated locally.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		fallbackPath: defaultFallbackPath,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	f := &Fetcher{
		logger:       cfg.logger,
		env:          cfg.env,
		project:      cfg.project,
		fallbackPath: cfg.fallbackPath,
		cacheTTL:     cfg.cacheTTL,
		now:          cfg.now,
		cache:        make(map[string]cacheEntry),
	}

	var err error
	if f.latency, err = meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	); err != nil {
		f.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	}
	if f.cacheHits, err = meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	); err != nil {
		f.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}
	client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
	if err != nil {
		if !f.fallbackAllowed() {
			return nil, fmt.Errorf("secrets: secret manager client: %w", err)
		}
		f.logger.Warn("secrets: secret manager client unavailable; using local fallback", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases resources held by the fetcher.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the secret value for ref.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref, f.project)
	if err != nil {
		return "", err
	}

	if value, ok := f.lookupCache(parsed.resource()); ok {
		f.recordCacheHit(ctx, parsed)
		f.recordLatency(ctx, start, "cache", nil)
		return value, nil
	}

	if f.client != nil && parsed.Project != "" {
		value, fetchErr := f.fetchRemote(ctx, parsed)
		if fetchErr == nil {
			f.storeCache(parsed.resource(), value)
			f.recordLatency(ctx, start, "remote", nil)
			return value, nil
		}
		if !f.fallbackAllowed() || !isFallbackError(fetchErr) {
			f.recordLatency(ctx, start, "error", fetchErr)
			if status.Code(fetchErr) == codes.NotFound {
				return "", fmt.Errorf("%w: %s", ErrSecretNotFound, parsed.Name)
			}
			return "", fmt.Errorf("secrets: fetch %s: %w", parsed.Name, fetchErr)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("secret", parsed.Name), zap.Error(fetchErr))
	} else if !f.fallbackAllowed() {
		err := fmt.Errorf("secrets: no secret manager project for %s", parsed.Name)
		f.recordLatency(ctx, start, "error", err)
		return "", err
	}

	value, ok := f.lookupFallback(parsed)
	if !ok {
		f.recordLatency(ctx, start, "error", ErrSecretNotFound)
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, parsed.Name)
	}
	f.storeCache(parsed.resource(), value)
	f.recordLatency(ctx, start, "fallback", nil)
	return value, nil
}

func (f *Fetcher) fallbackAllowed() bool {
	return f.env == defaultEnvironment
}

func (f *Fetcher) lookupCache(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	if f.cacheTTL > 0 && f.now().Sub(entry.fetchedAt) >= f.cacheTTL {
		delete(f.cache, key)
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) storeCache(key, value string) {
	f.mu.Lock()
	f.cache[key] = cacheEntry{value: value, fetchedAt: f.now()}
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, ref reference) (string, error) {
	name := ref.resource()
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", name)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

// lookupFallback reads NAME=value lines, where NAME is the bare secret name or a full reference.
func (f *Fetcher) lookupFallback(ref reference) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Warn("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}
	for _, key := range []string{ref.Raw, ref.Name} {
		if value, ok := f.fallbackVals[key]; ok {
			return value, true
		}
	}
	return "", false
}

func (f *Fetcher) loadFallback() {
	f.fallbackVals = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	file, err := os.Open(f.fallbackPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.fallbackErr = fmt.Errorf("secrets: open fallback file %s: %w", f.fallbackPath, err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		f.fallbackVals[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		f.fallbackErr = fmt.Errorf("secrets: read %s: %w", f.fallbackPath, err)
	}
}

func (f *Fetcher) recordLatency(ctx context.Context, start time.Time, source string, err error) {
	if f.latency == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.String("code", status.Code(err).String()))
	}
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (f *Fetcher) recordCacheHit(ctx context.Context, ref reference) {
	if f.cacheHits == nil {
		return
	}
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskName(ref.Name))))
}

type reference struct {
	Raw     string
	Project string
	Name    string
	Version string
}

func (r reference) resource() string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", r.Project, r.Name, r.Version)
}

// parseReference accepts secret://name?version=3&project=p, sm://name and
// sm://projects/p/secrets/name/versions/3.
func parseReference(ref, defaultProject string) (reference, error) {
	raw := strings.TrimSpace(ref)
	if raw == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" && u.Scheme != "sm" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}

	parsed := reference{
		Raw:     raw,
		Project: strings.TrimSpace(u.Query().Get("project")),
		Version: strings.TrimSpace(u.Query().Get("version")),
	}
	path := strings.Trim(u.Host+u.Path, "/")
	segments := strings.Split(path, "/")
	switch {
	case len(segments) >= 4 && segments[0] == "projects" && segments[2] == "secrets":
		parsed.Project = segments[1]
		parsed.Name = segments[3]
		if len(segments) == 6 && segments[4] == "versions" {
			parsed.Version = segments[5]
		}
	case len(segments) == 1:
		parsed.Name = segments[0]
	default:
		return reference{}, fmt.Errorf("secrets: unrecognised reference %q", raw)
	}

	if parsed.Name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}
	if parsed.Project == "" {
		parsed.Project = strings.TrimSpace(defaultProject)
	}
	if parsed.Version == "" {
		parsed.Version = "latest"
	}
	return parsed, nil
}

func maskName(name string) string {
	h := sha256.Sum256([]byte(name))
	return hex.EncodeToString(h[:8])
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
