package usecase

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"MarketPull/internal/domain/models"
	"MarketPull/pkg/util"
)

const (
	maxDescription = 300
	threadNameLen  = 30
)

// RenderAnnouncement builds the thread message for a newly found listing.
func RenderAnnouncement(q *models.TrackedQuery, rec *models.ListingRecord) *models.Announcement {
	content := rec.Title
	if q.Mention != "" {
		content = q.Mention + " " + content
	}
	return &models.Announcement{
		ThreadID:  q.ThreadID,
		ListingID: rec.ID,
		Content:   content,
		Preview:   renderPreview(rec),
	}
}

func renderPreview(rec *models.ListingRecord) *models.RichPreview {
	pv := &models.RichPreview{
		Title:    rec.Title,
		URL:      rec.URL,
		ImageURL: rec.ImageURL,
		Author:   rec.Seller,
		Footer:   rec.ID,
	}
	if rec.PublishedAt != nil {
		pv.Timestamp = rec.PublishedAt
	}

	add := func(name, value string) {
		if value != "" {
			pv.Fields = append(pv.Fields, models.PreviewField{Name: name, Value: value})
		}
	}
	add("Price", formatPrice(rec))
	add("Condition", rec.Condition)
	add("Shipping", rec.Shipping)
	add("Location", rec.Location)
	if rec.IsAuction {
		format := "Auction"
		if rec.BuyNow {
			format += " + Buy now"
		}
		if rec.BestOffer {
			format += " + Best offer"
		}
		add("Format", format)
		if rec.EndsAt != nil {
			add("Ends", rec.EndsAt.UTC().Format("2006-01-02 15:04 MST"))
		}
	}

	if d := rec.Detail; d != nil {
		pv.Description = util.Truncate(d.Description, maxDescription)
		if d.SellerName != "" {
			pv.Author = d.SellerName
		}
		if d.SellerRating != nil {
			add("Rating", strconv.FormatFloat(*d.SellerRating, 'f', 1, 64))
		}
		add("Badges", formatBadges(d.SellerBadges))
		if d.AccountCreated != nil {
			add("Member since", d.AccountCreated.Format("2006-01-02"))
		}
		if d.Views > 0 {
			add("Views", strconv.Itoa(d.Views))
		}
	}
	if pv.Author == "" && rec.SellerType != "" {
		pv.Author = rec.SellerType
	}
	if rec.SellerURL != "" {
		pv.AuthorURL = rec.SellerURL
	}
	return pv
}

func formatPrice(rec *models.ListingRecord) string {
	if rec.Price.IsZero() && rec.Negotiable {
		return "Negotiable"
	}
	s := rec.Price.StringFixed(2) + " " + rec.Currency
	if rec.Negotiable {
		s += " (negotiable)"
	}
	return s
}

func formatBadges(b map[string]string) string {
	if len(b) == 0 {
		return ""
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+b[k])
	}
	return strings.Join(parts, ", ")
}

// threadName derives the thread title from the first query.
func threadName(name string, params models.SearchParams) string {
	if strings.TrimSpace(name) == "" {
		name = params.Label()
	}
	return util.Truncate(strings.TrimSpace(name), threadNameLen)
}

func scheduledMessage(t *models.AuctionTarget) string {
	return fmt.Sprintf("Bid of %s scheduled on %s (%s) at %s",
		t.MaxBid.StringFixed(2), t.Title, t.ListingID, t.FireAt.UTC().Format(time.RFC3339))
}
