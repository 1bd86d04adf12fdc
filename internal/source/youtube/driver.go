package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/jonas/shelfscout/internal/domain"
	"github.com/jonas/shelfscout/internal/repository"
	"github.com/jonas/shelfscout/internal/source"
	"gorm.io/gorm"
)

const (
	SourceID   = "youtube"
	SourceName = "YouTube"

	pageSize = 50
	// empty pages tolerated before the discovery loop treats the playlist
	// as stalled
	maxStalledPages = 2
)

// Driver implements the source.Driver capability set against the YouTube
// Data API v3. Natural keys are video ids.
type Driver struct {
	client *resty.Client
	videos *repository.VideoRepository
	apiKey string
}

// Config holds driver configuration.
type Config struct {
	APIKey  string
	BaseURL string
}

// NewDriver creates a new YouTube driver.
func NewDriver(cfg *Config, videos *repository.VideoRepository) *Driver {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/youtube/v3"
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Accept", "application/json")
	client.SetRetryCount(2)
	client.SetRetryWaitTime(2 * time.Second)

	return &Driver{
		client: client,
		videos: videos,
		apiKey: cfg.APIKey,
	}
}

// ID returns the unique identifier for this source.
func (d *Driver) ID() string {
	return SourceID
}

// DisplayName returns a human-readable name for this source.
func (d *Driver) DisplayName() string {
	return SourceName
}

// MatchHostnames returns the hostnames this driver handles.
func (d *Driver) MatchHostnames() []string {
	return []string{"youtube.com", "youtu.be"}
}

type playlistResponse struct {
	NextPageToken string `json:"nextPageToken"`
	PageInfo      struct {
		TotalResults int `json:"totalResults"`
	} `json:"pageInfo"`
	Items []struct {
		Snippet struct {
			Title      string `json:"title"`
			ResourceID struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string    `json:"title"`
			Description  string    `json:"description"`
			ChannelID    string    `json:"channelId"`
			ChannelTitle string    `json:"channelTitle"`
			PublishedAt  time.Time `json:"publishedAt"`
			Tags         []string  `json:"tags"`
			Thumbnails   struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// Discover walks a channel uploads playlist page by page until the reported
// total is reached or the playlist stalls.
func (d *Driver) Discover(ctx context.Context, listingURL string) (*source.DiscoveryResult, error) {
	playlistID, err := extractPlaylistID(listingURL)
	if err != nil {
		return nil, err
	}

	result := &source.DiscoveryResult{}
	seen := make(map[string]bool)
	pageToken := ""
	stalled := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var playlist playlistResponse
		resp, err := d.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"part":       "snippet",
				"playlistId": playlistID,
				"maxResults": strconv.Itoa(pageSize),
				"pageToken":  pageToken,
				"key":        d.apiKey,
			}).
			SetResult(&playlist).
			Get("/playlistItems")
		if err != nil {
			return nil, source.Fatal(fmt.Errorf("playlist request failed: %w", err))
		}
		if resp.IsError() {
			return nil, fmt.Errorf("playlist %s returned %s", playlistID, resp.Status())
		}

		if playlist.PageInfo.TotalResults > result.TotalReported {
			result.TotalReported = playlist.PageInfo.TotalResults
		}

		added := 0
		for _, it := range playlist.Items {
			videoID := it.Snippet.ResourceID.VideoID
			if videoID == "" || seen[videoID] {
				continue
			}
			seen[videoID] = true
			added++
			result.Items = append(result.Items, source.DiscoveredItem{
				NaturalKey: videoID,
				DetailURL:  "https://www.youtube.com/watch?v=" + videoID,
				Title:      it.Snippet.Title,
			})
		}

		if result.TotalReported > 0 && len(result.Items) >= result.TotalReported {
			break
		}
		if playlist.NextPageToken == "" {
			break
		}
		if added == 0 {
			stalled++
			if stalled >= maxStalledPages {
				break
			}
		} else {
			stalled = 0
		}
		pageToken = playlist.NextPageToken
	}

	return result, nil
}

// Scrape fetches one video by id. An empty items list means the video is
// gone (deleted or private) and yields a nil item.
func (d *Driver) Scrape(ctx context.Context, naturalKey string) (*source.ScrapedItem, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part": "snippet,contentDetails",
			"id":   naturalKey,
			"key":  d.apiKey,
		}).
		Get("/videos")
	if err != nil {
		return nil, source.Fatal(fmt.Errorf("video request failed: %w", err))
	}
	if resp.IsError() {
		return nil, fmt.Errorf("video %s returned %s", naturalKey, resp.Status())
	}

	raw := resp.Body()
	var videos videoListResponse
	if err := json.Unmarshal(raw, &videos); err != nil {
		return nil, fmt.Errorf("video %s: malformed payload: %w", naturalKey, err)
	}
	if len(videos.Items) == 0 {
		return nil, nil
	}

	return &source.ScrapedItem{
		NaturalKey: naturalKey,
		URL:        "https://www.youtube.com/watch?v=" + naturalKey,
		Raw:        raw,
		Data:       &videos,
	}, nil
}

// Save upserts the scraped video keyed by (source, video id) and returns
// the video row id.
func (d *Driver) Save(ctx context.Context, item *source.ScrapedItem) (string, error) {
	data, ok := item.Data.(*videoListResponse)
	if !ok || len(data.Items) == 0 {
		return "", fmt.Errorf("unexpected scrape payload type %T", item.Data)
	}
	v := data.Items[0]

	id := ""
	existing, err := d.videos.GetByNaturalKey(ctx, SourceID, item.NaturalKey)
	if err == nil {
		id = existing.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to check existing video: %w", err)
	}
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	publishedAt := v.Snippet.PublishedAt
	video := &domain.Video{
		ID:              id,
		SourceID:        SourceID,
		NaturalKey:      item.NaturalKey,
		Title:           v.Snippet.Title,
		ChannelID:       v.Snippet.ChannelID,
		ChannelTitle:    v.Snippet.ChannelTitle,
		Description:     v.Snippet.Description,
		Tags:            domain.StringArray(v.Snippet.Tags),
		DurationSeconds: parseISODuration(v.ContentDetails.Duration),
		ThumbnailURL:    v.Snippet.Thumbnails.High.URL,
		PublishedAt:     &publishedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := d.videos.Upsert(ctx, video); err != nil {
		return "", fmt.Errorf("failed to upsert video: %w", err)
	}
	return id, nil
}

// extractPlaylistID accepts either a playlist URL or a channel uploads
// playlist id passed verbatim.
func extractPlaylistID(listingURL string) (string, error) {
	if !strings.Contains(listingURL, "/") && !strings.Contains(listingURL, ":") {
		return listingURL, nil
	}
	u, err := url.Parse(listingURL)
	if err != nil {
		return "", fmt.Errorf("invalid listing URL %q: %w", listingURL, err)
	}
	if id := u.Query().Get("list"); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("listing URL %q carries no playlist id", listingURL)
}

// parseISODuration converts the API's ISO-8601 duration (PT#H#M#S) to
// seconds. Malformed input yields 0.
func parseISODuration(iso string) int {
	s := strings.TrimPrefix(iso, "PT")
	if s == iso {
		return 0
	}
	total := 0
	num := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
		case r == 'H':
			total += num * 3600
			num = 0
		case r == 'M':
			total += num * 60
			num = 0
		case r == 'S':
			total += num
			num = 0
		default:
			return 0
		}
	}
	return total
}
