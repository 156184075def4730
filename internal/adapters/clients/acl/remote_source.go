package acl

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jsamuelsen/quote-manager/internal/adapters/clients"
	"github.com/jsamuelsen/quote-manager/internal/domain"
	"github.com/jsamuelsen/quote-manager/internal/platform/logging"
)

const (
	// postsPath is the collection endpoint on the remote.
	postsPath = "/posts"

	// probePath asks for a single record so health checks stay cheap.
	probePath = postsPath + "?_limit=1"

	// DefaultServiceName names the remote in logs, errors and health reports.
	DefaultServiceName = "remote-quotes"

	// DefaultLimit is how many posts are kept from each fetch.
	DefaultLimit = 10
)

// RemoteSourceConfig contains configuration for the remote quote source.
type RemoteSourceConfig struct {
	// Client must point at the remote API root.
	Client *clients.Client

	// ServiceName overrides DefaultServiceName.
	ServiceName string

	// Limit is how many records are taken from the front of the feed.
	Limit int

	Logger *slog.Logger

	// Now stamps fetched records. Defaults to time.Now.
	Now func() time.Time
}

// RemoteSource implements ports.QuoteSource and ports.HealthChecker
// against a JSON posts feed.
type RemoteSource struct {
	client *clients.Client
	name   string
	limit  int
	logger *slog.Logger
	now    func() time.Time
}

// NewRemoteSource creates a remote quote source.
// Panics if Client is nil.
func NewRemoteSource(cfg RemoteSourceConfig) *RemoteSource {
	if cfg.Client == nil {
		panic("RemoteSource: Client is required")
	}

	s := &RemoteSource{
		client: cfg.Client,
		name:   cfg.ServiceName,
		limit:  cfg.Limit,
		logger: cfg.Logger,
		now:    cfg.Now,
	}

	if s.name == "" {
		s.name = DefaultServiceName
	}

	if s.limit <= 0 {
		s.limit = DefaultLimit
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.now == nil {
		s.now = time.Now
	}

	s.logger = s.logger.With(slog.String("component", "acl.RemoteSource"))

	return s
}

// FetchQuotes downloads the feed and returns its first Limit records as
// quotes, all stamped with the time the download completed.
func (s *RemoteSource) FetchQuotes(ctx context.Context) ([]domain.Quote, error) {
	logger := logging.FromContextOr(ctx, s.logger)
	logger.Log(ctx, logging.LevelTrace, "starting request", slog.String("path", postsPath))

	resp, err := s.client.Get(ctx, postsPath)
	if err != nil {
		return nil, clientError(s.name, "fetch quotes", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError(s.name, postsPath, resp.StatusCode, resp.Body)
	}

	posts, err := decodePosts(resp.Body)
	if err != nil {
		return nil, domain.NewUnavailableError(s.name, err.Error())
	}

	quotes := toQuotes(posts, s.limit, domain.NewTimestamp(s.now()))

	logger.DebugContext(ctx, "fetched remote quotes",
		slog.Int("received", len(posts)),
		slog.Int("kept", len(quotes)),
	)

	return quotes, nil
}

// Name implements ports.HealthChecker.
func (s *RemoteSource) Name() string {
	return s.name
}

// Check implements ports.HealthChecker. An open circuit fails without a request.
func (s *RemoteSource) Check(ctx context.Context) error {
	if snap := s.client.Breaker(); snap.State == clients.StateOpen {
		return domain.NewUnavailableError(s.name,
			"circuit breaker open since "+snap.LastFailure.Format(time.RFC3339))
	}

	resp, err := s.client.Get(ctx, probePath)
	if err != nil {
		return clientError(s.name, "health probe", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(s.name, postsPath, resp.StatusCode, resp.Body)
	}

	return nil
}
