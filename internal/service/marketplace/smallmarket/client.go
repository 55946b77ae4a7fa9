// Package smallmarket talks to the classifieds marketplace API. It has no
// auctions and every announcement needs the listing detail.
package smallmarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"MarketPull/internal/domain/models"
	dsvc "MarketPull/internal/domain/service"
	"MarketPull/internal/service/marketplace"
	xhttp "MarketPull/pkg/http"
	"MarketPull/pkg/logger"
	"MarketPull/pkg/util"

	"github.com/shopspring/decimal"
)

const (
	defaultSize   = 30
	defaultRadius = 25

	searchFields = "ad-address,ad-status,ad-type,attributes,category,displayoptions,id,link," +
		"locations.location.id,locations.location.regions.region.localized-name,pictures," +
		"poster-type,price,search-distance,seller-account-type,start-date-time,title,user-id,user-rating"
	detailFields = "ad-address,ad-status,attributes,contact-name,description,displayoptions,id,link," +
		"locations.location.regions.region.localized-name,pictures,poster-type,price," +
		"seller-account-type,start-date-time,title,user-id,user-rating,user-since-date-time,userBadges"
)

type Config struct {
	BaseURL  string
	AppKey   string
	BasicKey string
	Currency string
	Timeout  time.Duration
}

type Client struct {
	cfg  Config
	http *xhttp.Client
	log  *logger.Logger
}

var _ dsvc.MarketplaceClient = (*Client)(nil)

func New(cfg Config, log *logger.Logger, opts ...xhttp.ClientOption) *Client {
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	base := []xhttp.ClientOption{
		xhttp.WithTimeout(cfg.Timeout),
		xhttp.WithHeader("Accept", "*/*"),
		xhttp.WithHeader("X-App-Key", cfg.AppKey),
	}
	if cfg.BasicKey != "" {
		base = append(base, xhttp.WithHeader("Authorization", "Basic "+cfg.BasicKey))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: xhttp.NewClient(append(base, opts...)...),
		log:  log.With(logger.String("source", string(models.SourceSmall))),
	}
}

func (c *Client) Source() models.Source { return models.SourceSmall }

func (c *Client) RequiresDetail() bool { return true }

// SearchQuery renders the query parameters for one parameter set.
func SearchQuery(p models.SearchParams) map[string][]string {
	size := p.Size
	if size == 0 {
		size = defaultSize
	}
	q := map[string][]string{
		"q":                     {p.Query},
		"size":                  {strconv.Itoa(size)},
		"includeTopAds":         {"true"},
		"limitTotalResultCount": {"true"},
		"pictureRequired":       {"true"},
	}
	if p.MinPrice > 0 {
		q["minPrice"] = []string{strconv.Itoa(p.MinPrice)}
	}
	if p.MaxPrice > 0 {
		q["maxPrice"] = []string{strconv.Itoa(p.MaxPrice)}
	}
	if p.LocationID > 0 {
		radius := p.Radius
		if radius == 0 {
			radius = defaultRadius
		}
		q["locationId"] = []string{strconv.Itoa(p.LocationID)}
		q["distance"] = []string{strconv.Itoa(radius)}
	}
	return q
}

func (c *Client) Search(ctx context.Context, params models.SearchParams) ([]models.RawListing, error) {
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + "ads.json",
		Headers:     map[string]string{"X-Fields": searchFields, "X-Usecase": "results-search"},
		QueryParams: SearchQuery(params),
	}, &body)
	if err != nil {
		return nil, marketplace.Classify("small search", err)
	}

	value, ok := unwrap(body, "ads")
	if !ok {
		return nil, fmt.Errorf("small search: %w: missing ads envelope", models.ErrParse)
	}
	var list struct {
		Ad []json.RawMessage `json:"ad"`
	}
	if len(value) > 0 {
		if err := json.Unmarshal(value, &list); err != nil {
			return nil, fmt.Errorf("small search: %w: %v", models.ErrParse, err)
		}
	}

	out := make([]models.RawListing, 0, len(list.Ad))
	for _, raw := range list.Ad {
		var head struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw, &head)
		out = append(out, models.RawListing{ID: head.ID, Payload: raw})
	}
	return out, nil
}

// IsOrganic drops paid top-ads that are injected regardless of the query.
func (c *Client) IsOrganic(raw models.RawListing) bool {
	var a ad
	if err := json.Unmarshal(raw.Payload, &a); err != nil {
		return false
	}
	return !a.flag("top-ad")
}

func (c *Client) Normalize(raw models.RawListing) (*models.ListingRecord, error) {
	var a ad
	if err := json.Unmarshal(raw.Payload, &a); err != nil {
		return nil, marketplace.ParseError(raw.ID, err)
	}
	if a.ID == "" {
		return nil, marketplace.ParseError(raw.ID, errors.New("missing id"))
	}
	if a.Title.Value == "" {
		return nil, marketplace.ParseError(a.ID, errors.New("missing title"))
	}

	rec := &models.ListingRecord{
		ID:          a.ID,
		Source:      models.SourceSmall,
		Title:       a.Title.Value,
		Currency:    c.cfg.Currency,
		Negotiable:  a.Price.PriceType.Value == "PLEASE_CONTACT",
		URL:         a.publicURL(),
		ImageURL:    a.imageURL(),
		SellerType:  a.SellerAccountType.Value,
		Location:    location(&a),
		PublishedAt: util.ParseTimePtr(a.StartDateTime.Value),
		FirstSeen:   time.Now().UTC(),
	}
	if a.Price.Amount.Value.Valid {
		rec.Price = a.Price.Amount.Value.Decimal
	}
	if a.shippable() {
		rec.Shipping = "Shipping available"
	}
	return rec, nil
}

func location(a *ad) string {
	region := a.region()
	zip, state := a.Address.ZipCode.Value, a.Address.State.Value
	if zip == "" && state == "" {
		return region
	}
	loc := strings.TrimSpace(zip + " " + state)
	if region != "" && region != state {
		loc += ", " + region
	}
	return loc
}

// GetDetails fetches the ad page and its view counter. A missing counter is
// not an error.
func (c *Client) GetDetails(ctx context.Context, listingID string) (*models.ListingDetail, error) {
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     c.cfg.BaseURL + "ads/" + listingID + ".json",
		Headers: map[string]string{"X-Fields": detailFields, "X-Usecase": "vip"},
	}, &body)
	if err != nil {
		return nil, marketplace.Classify("small details", err)
	}

	value, ok := unwrap(body, "ad")
	if !ok {
		return nil, fmt.Errorf("small details %s: %w", listingID, models.ErrDetailUnavailable)
	}
	var a ad
	if err := json.Unmarshal(value, &a); err != nil {
		return nil, fmt.Errorf("small details %s: %w: %v", listingID, models.ErrParse, err)
	}
	if a.Description == nil {
		return nil, fmt.Errorf("small details %s: %w: no description", listingID, models.ErrDetailUnavailable)
	}

	d := &models.ListingDetail{
		Title:          a.Title.Value,
		Description:    util.PlainText(a.Description.Value),
		SellerName:     a.ContactName.Value,
		SellerID:       a.UserID.Value,
		AccountCreated: util.ParseTimePtr(a.UserSince.Value),
		FetchedAt:      time.Now().UTC(),
	}
	if a.UserRating != nil {
		d.SellerRating = a.UserRating.AverageRating.Value
	}
	if a.UserBadges != nil && len(a.UserBadges.Badges) > 0 {
		d.SellerBadges = make(map[string]string, len(a.UserBadges.Badges))
		for _, b := range a.UserBadges.Badges {
			v := string(b.Value)
			if v == "" {
				v = string(b.Level)
			}
			d.SellerBadges[b.Name] = v
		}
	}

	if d.SellerID != "" {
		views, err := c.viewCount(ctx, listingID, d.SellerID)
		if err != nil {
			c.log.Warn("view counter unavailable", logger.String("listing_id", listingID), logger.Error(err))
		} else {
			d.Views = views
		}
	}
	return d, nil
}

func (c *Client) viewCount(ctx context.Context, listingID, userID string) (int, error) {
	var resp struct {
		Value int `json:"value"`
	}
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.cfg.BaseURL + "v2/counters/ads/vip/" + listingID,
		Body:   map[string]string{"userId": userID},
	}, &resp)
	if err != nil {
		return 0, marketplace.Classify("small view counter", err)
	}
	return resp.Value, nil
}

// PlaceBid always fails: this marketplace has no auctions.
func (c *Client) PlaceBid(_ context.Context, listingID string, _ decimal.Decimal, _ string) (*models.BidResult, error) {
	return nil, fmt.Errorf("small bid %s: %w", listingID, models.ErrNotAuction)
}
