package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/smallbiznis/clipperpay/internal/config"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// ViewCounter reads the public view count of one video.
type ViewCounter interface {
	VideoViews(ctx context.Context, videoID string) (int64, error)
}

type youTubeCounter struct {
	service *youtube.Service
}

var errAPIKeyMissing = errors.New("youtube api key not configured")

type unconfiguredCounter struct{}

func (unconfiguredCounter) VideoViews(context.Context, string) (int64, error) {
	return 0, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, errAPIKeyMissing)
}

// NewYouTubeCounter builds a Data API client. Without a key every lookup is
// reported as upstream unavailable so clips stay pending.
func NewYouTubeCounter(cfg config.Config) (ViewCounter, error) {
	if cfg.YouTube.APIKey == "" {
		return unconfiguredCounter{}, nil
	}
	httpClient := &http.Client{Timeout: cfg.YouTube.RequestTimeout}
	service, err := youtube.NewService(context.Background(),
		option.WithAPIKey(cfg.YouTube.APIKey),
		option.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &youTubeCounter{service: service}, nil
}

func (c *youTubeCounter) VideoViews(ctx context.Context, videoID string) (int64, error) {
	resp, err := c.service.Videos.List([]string{"statistics"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return 0, ErrVideoNotFound
		}
		return 0, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
		return 0, ErrVideoNotFound
	}
	return int64(resp.Items[0].Statistics.ViewCount), nil
}
