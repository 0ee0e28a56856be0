package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vango-go/zenith/pkg/core/types"
)

const (
	// CampaignFallbackKey is the local list used when the cloud store is
	// unavailable.
	CampaignFallbackKey = "zenith_campaign_fallback"

	// CampaignFallbackLimit is how many local campaigns are kept.
	CampaignFallbackLimit = 10
)

// CampaignBackend is a cloud document store for campaigns.
type CampaignBackend interface {
	InsertCampaign(ctx context.Context, c types.Campaign) (string, error)
	ListCampaigns(ctx context.Context, userID string) ([]types.Campaign, error)
}

// PostgresCampaigns stores campaigns in the campaigns table.
type PostgresCampaigns struct {
	pool *pgxpool.Pool
}

// NewPostgresCampaigns returns a CampaignBackend on pool.
func NewPostgresCampaigns(pool *pgxpool.Pool) *PostgresCampaigns {
	return &PostgresCampaigns{pool: pool}
}

// InsertCampaign writes c and returns its new ID.
func (p *PostgresCampaigns) InsertCampaign(ctx context.Context, c types.Campaign) (string, error) {
	id := uuid.New()
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO campaigns (id, user_id, goal, narrative, image_url, video_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, c.UserID, c.Goal, c.Narrative, c.ImageURL, c.VideoURL, created,
	)
	if err != nil {
		return "", fmt.Errorf("store: insert campaign: %w", err)
	}
	return id.String(), nil
}

// ListCampaigns returns the user's campaigns, newest first.
func (p *PostgresCampaigns) ListCampaigns(ctx context.Context, userID string) ([]types.Campaign, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, user_id, goal, narrative, image_url, video_url, created_at
		FROM campaigns
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list campaigns: %w", err)
	}
	defer rows.Close()

	out := []types.Campaign{}
	for rows.Next() {
		var c types.Campaign
		if err := rows.Scan(&c.ID, &c.UserID, &c.Goal, &c.Narrative, &c.ImageURL, &c.VideoURL, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Campaigns saves orchestrator results to the cloud backend when one is
// configured and the caller is signed in, and to the local fallback list
// otherwise or when the cloud call fails.
type Campaigns struct {
	cloud  CampaignBackend
	local  *Local
	logger *slog.Logger
	now    func() time.Time
}

// NewCampaigns creates a campaign store. cloud may be nil.
func NewCampaigns(cloud CampaignBackend, local *Local, logger *slog.Logger) *Campaigns {
	if logger == nil {
		logger = slog.Default()
	}
	return &Campaigns{cloud: cloud, local: local, logger: logger, now: time.Now}
}

// CloudEnabled reports whether a cloud backend is configured.
func (s *Campaigns) CloudEnabled() bool { return s.cloud != nil }

// Save persists c for userID. It returns the cloud document ID, or an empty
// ID when the campaign went to the local fallback.
func (s *Campaigns) Save(ctx context.Context, userID string, c types.Campaign) (string, error) {
	c.UserID = userID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}

	if s.cloud == nil || userID == "" {
		return "", s.saveLocal(c)
	}

	id, err := s.cloud.InsertCampaign(ctx, c)
	if err != nil {
		s.logger.Error("campaign cloud save failed", "uid", userID, "error", err)
		return "", s.saveLocal(c)
	}
	return id, nil
}

func (s *Campaigns) saveLocal(c types.Campaign) error {
	if s.local == nil {
		return errors.New("store: no local campaign store")
	}
	c.ID = strconv.FormatInt(c.CreatedAt.UnixMilli(), 10)
	return s.local.Append(CampaignFallbackKey, c, CampaignFallbackLimit)
}

// List returns campaigns newest first.
func (s *Campaigns) List(ctx context.Context, userID string) ([]types.Campaign, error) {
	if s.cloud != nil && userID != "" {
		out, err := s.cloud.ListCampaigns(ctx, userID)
		if err == nil {
			return out, nil
		}
		s.logger.Error("campaign cloud fetch failed", "uid", userID, "error", err)
	}
	return s.listLocal()
}

func (s *Campaigns) listLocal() ([]types.Campaign, error) {
	if s.local == nil {
		return []types.Campaign{}, nil
	}
	out, err := ListOf[types.Campaign](s.local, CampaignFallbackKey)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}
