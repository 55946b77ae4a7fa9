// Package bigmarket talks to the large auction marketplace's mobile API.
package bigmarket

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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	searchPath    = "search/v1/search_results"
	viewItemPath  = "listing_details/v2/view_item"
	commitBidPath = "auction/v2/bid/module_provider/commit_bid"

	defaultSort   = 12
	defaultZip    = "10249"
	defaultRadius = 100
)

// Config of the big marketplace endpoints and credentials.
type Config struct {
	BaseURL       string
	ItemURL       string
	UserURL       string
	AuthToken     string
	AppID         string
	MarketplaceID string
	Currency      string
	Timeout       time.Duration
}

type Client struct {
	cfg  Config
	http *xhttp.Client
	log  *logger.Logger
}

var (
	_ dsvc.MarketplaceClient  = (*Client)(nil)
	_ dsvc.CategorySuggester = (*Client)(nil)
)

// New builds a client. Extra options are applied to the underlying HTTP client.
func New(cfg Config, log *logger.Logger, opts ...xhttp.ClientOption) *Client {
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	base := []xhttp.ClientOption{
		xhttp.WithTimeout(cfg.Timeout),
		xhttp.WithHeader("Accept", "application/json"),
		xhttp.WithHeader("X-App-Id", cfg.AppID),
		xhttp.WithHeader("X-Marketplace-Id", cfg.MarketplaceID),
		xhttp.WithHeader("Accept-Language", "en-US"),
	}
	if cfg.AuthToken != "" {
		base = append(base, xhttp.WithHeader("Authorization", "Bearer "+cfg.AuthToken))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: xhttp.NewClient(append(base, opts...)...),
		log:  log.With(logger.String("source", string(models.SourceBig))),
	}
}

func (c *Client) Source() models.Source { return models.SourceBig }

func (c *Client) RequiresDetail() bool { return false }

func (c *Client) headers() map[string]string {
	return map[string]string{"X-Request-Id": "rci=" + uuid.NewString()}
}

// SearchQuery renders the query parameters for one parameter set.
func SearchQuery(p models.SearchParams) map[string][]string {
	q := map[string][]string{
		"_pgn":                  {"1"},
		"_nkw":                  {p.Query},
		"_sop":                  {strconv.Itoa(orDefault(p.SortBy, defaultSort))},
		"enableDeferredModules": {"1"},
	}
	set := func(k string, v int) {
		if v != 0 {
			q[k] = []string{strconv.Itoa(v)}
		}
	}
	set("_udlo", p.MinPrice)
	set("_udhi", p.MaxPrice)
	set("LH_SellerType", p.SellerType)
	set("LH_PrefLoc", p.Location)
	if p.Category != 0 {
		set("_sacat", p.Category)
		q["_oaa"] = []string{"1"}
		q["_fsrp"] = []string{"1"}
	}
	if p.Sold {
		q["LH_Sold"] = []string{"1"}
		q["LH_Complete"] = []string{"1"}
	}
	if p.ListingType&models.ListingTypeAuction != 0 {
		q["LH_Auction"] = []string{"1"}
	}
	if p.ListingType&models.ListingTypeBuyNow != 0 {
		q["LH_BIN"] = []string{"1"}
	}
	if p.ListingType&models.ListingTypeBestOffer != 0 {
		q["LH_BO"] = []string{"1"}
	}
	if len(p.Condition) > 0 {
		parts := make([]string, len(p.Condition))
		for i, cnd := range p.Condition {
			parts[i] = strconv.Itoa(cnd)
		}
		q["LH_ItemCondition"] = []string{strings.Join(parts, "|")}
	}
	zip := p.Zip
	if zip == "" {
		zip = defaultZip
	}
	q["_stpos"] = []string{zip}
	q["_sadis"] = []string{strconv.Itoa(orDefault(p.Radius, defaultRadius))}
	return q
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Search returns listing modules in ranking order.
func (c *Client) Search(ctx context.Context, params models.SearchParams) ([]models.RawListing, error) {
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + searchPath,
		Headers:     c.headers(),
		QueryParams: SearchQuery(params),
	}, &body)
	if err != nil {
		return nil, marketplace.Classify("big search", err)
	}
	return parseSearch(body)
}

// SuggestCategory runs the query without a category and returns the
// category the marketplace selects for it. id is 0 when none is selected.
func (c *Client) SuggestCategory(ctx context.Context, params models.SearchParams) (int, string, error) {
	params.Category = 0
	var resp refinementsResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + searchPath,
		Headers:     c.headers(),
		QueryParams: SearchQuery(params),
	}, &resp)
	if err != nil {
		return 0, "", marketplace.Classify("big category", err)
	}
	id, name, ok := resp.selectedCategory()
	if !ok {
		return 0, "", nil
	}
	c.log.Debug("category suggested", logger.String("query", params.Query), logger.Int("category", id), logger.String("name", name))
	return id, name, nil
}

func parseSearch(body []byte) ([]models.RawListing, error) {
	var resp struct {
		Modules  json.RawMessage   `json:"modules"`
		Deferred []json.RawMessage `json:"deferred_modules"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("big search: %w: %v", models.ErrParse, err)
	}
	var deferred []member
	if len(resp.Deferred) > 0 {
		d, err := orderedMembers(resp.Deferred[0])
		if err != nil {
			return nil, fmt.Errorf("big search deferred: %w: %v", models.ErrParse, err)
		}
		deferred = d
	}
	modules, err := orderedMembers(resp.Modules)
	if err != nil {
		return nil, fmt.Errorf("big search modules: %w: %v", models.ErrParse, err)
	}

	var out []models.RawListing
	for _, m := range mergeModules(deferred, modules) {
		if !strings.HasPrefix(m.key, "listing") {
			continue
		}
		var head struct {
			ListingID string `json:"listingId"`
		}
		_ = json.Unmarshal(m.val, &head)
		out = append(out, models.RawListing{ID: head.ListingID, Payload: m.val})
	}
	return out, nil
}

// IsOrganic accepts an item when any of its tracking sids carries the
// search-result marker.
func (c *Client) IsOrganic(raw models.RawListing) bool {
	var it searchItem
	if err := json.Unmarshal(raw.Payload, &it); err != nil {
		return false
	}
	for _, tr := range it.Action.TrackingList {
		if n, ok := sidSuffix(tr.EventProperty.Sid); ok && n == organicMarker {
			return true
		}
	}
	return false
}

func (c *Client) Normalize(raw models.RawListing) (*models.ListingRecord, error) {
	var it searchItem
	if err := json.Unmarshal(raw.Payload, &it); err != nil {
		return nil, marketplace.ParseError(raw.ID, err)
	}
	if it.ListingID == "" {
		return nil, marketplace.ParseError(raw.ID, errors.New("missing listingId"))
	}
	title := it.Title.String()
	if title == "" {
		return nil, marketplace.ParseError(it.ListingID, errors.New("missing title"))
	}
	if !it.DisplayPrice.Value.Value.Valid {
		return nil, marketplace.ParseError(it.ListingID, errors.New("missing price"))
	}

	props := it.properties()
	seller := it.Search.SellerInfo.Text.String()
	rec := &models.ListingRecord{
		ID:         it.ListingID,
		Source:     models.SourceBig,
		Title:      title,
		Price:      it.DisplayPrice.Value.Value.Decimal,
		Currency:   c.cfg.Currency,
		IsAuction:  props["bidCount"],
		URL:        c.cfg.ItemURL + it.ListingID,
		Seller:     seller,
		SellerType: it.Search.SellerAccountType.Text,
		Condition:  it.Search.NormalizedCondition.Text,
		FirstSeen:  time.Now().UTC(),
	}
	if cur := it.DisplayPrice.Value.Currency; cur != "" {
		rec.Currency = cur
	}
	if seller != "" {
		name, _, _ := strings.Cut(seller, " (")
		rec.SellerURL = c.cfg.UserURL + name
	}
	if it.Image != nil {
		rec.ImageURL = it.Image.URL
	}
	switch {
	case props["__search.freeXDays"]:
		rec.Shipping = "Free shipping"
	case props["logisticsCost"]:
		rec.Shipping = it.LogisticsCost.String()
	}
	if rec.IsAuction && !it.Ended {
		rec.BuyNow = props["__search.formatBuyItNow"]
		rec.BestOffer = props["__search.formatBestOfferEnabled"]
		rec.EndsAt = util.ParseTimePtr(it.DisplayTime.Value.Value)
	}
	return rec, nil
}

// GetDetails fetches the item page. The session token is the bid tracking
// sid and is only present on auctions.
func (c *Client) GetDetails(ctx context.Context, listingID string) (*models.ListingDetail, error) {
	var resp detailResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     c.cfg.BaseURL + viewItemPath,
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"itemId":    {listingID},
			"modules":   {"VLS"},
			"quantity":  {"1"},
			"enableVIM": {"true"},
		},
	}, &resp)
	if err != nil {
		return nil, marketplace.Classify("big details", err)
	}
	vls := resp.Modules.VLS
	if vls == nil {
		return nil, fmt.Errorf("big details %s: %w", listingID, models.ErrDetailUnavailable)
	}

	d := &models.ListingDetail{
		Title:     vls.Listing.Title.Content,
		IsAuction: vls.Listing.Format == "AUCTION",
		StartsAt:  util.ParseTimePtr(vls.Listing.ListingLifecycle.ScheduledStartDate.Value),
		EndsAt:    util.ParseTimePtr(vls.Listing.ListingLifecycle.ScheduledEndDate.Value),
		FetchedAt: time.Now().UTC(),
	}
	if d.IsAuction {
		d.SessionToken = resp.Modules.SemanticData.BidPrefetch.Tracking.EventProperty.Sid
	}
	return d, nil
}

// PlaceBid commits a bid of amount.
func (c *Client) PlaceBid(ctx context.Context, listingID string, amount decimal.Decimal, sessionToken string) (*models.BidResult, error) {
	q := map[string][]string{
		"modules_group": {"POWER_BID_LAYER"},
		"ocv":           {"0"},
	}
	if sessionToken != "" {
		q["sid"] = []string{sessionToken}
	}
	var resp bidResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodPost,
		URL:         c.cfg.BaseURL + commitBidPath,
		Headers:     c.headers(),
		QueryParams: q,
		Body: bidRequest{
			WarningShown:     "false",
			Price:            bidPrice{Currency: c.cfg.Currency, Value: amount.StringFixed(2)},
			ItemID:           listingID,
			DecimalPrecision: 2,
		},
	}, &resp)
	if err != nil {
		return nil, marketplace.Classify("big bid", err)
	}
	meta := resp.Modules.AuctionMeta
	if meta == nil {
		return nil, fmt.Errorf("big bid %s: %w: missing auction meta", listingID, models.ErrParse)
	}

	res := &models.BidResult{
		IsHighestBidder: meta.IsHighBidder,
		CurrentPrice:    meta.CurrentPrice.Value,
		HighBidder:      meta.HighBidder.Name,
	}
	price := meta.CurrentPrice.Value.StringFixed(2) + " " + c.cfg.Currency
	if res.IsHighestBidder {
		res.Message = fmt.Sprintf("Placed highest bid %s for %s", price, listingID)
	} else {
		res.Message = fmt.Sprintf("Outbid at %s for %s by %s", price, listingID, res.HighBidder)
	}
	c.log.Info("bid placed",
		logger.String("listing_id", listingID),
		logger.Decimal("amount", amount),
		logger.Bool("highest", res.IsHighestBidder),
	)
	return res, nil
}
