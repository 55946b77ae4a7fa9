package bigmarket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MarketPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

const searchFixture = `{
  "deferred_modules": [{
    "listing_b": {"listingId": "200", "title": {"textSpans": [{"text": "Deferred laptop"}]},
      "action": {"trackingList": [{"eventProperty": {"sid": "p2351460.m4114.l7400"}}]},
      "displayPrice": {"value": {"value": 150.5}}},
    "SEARCH_REFINEMENTS_MODEL_V2": {"group": []}
  }],
  "modules": {
    "listing_a": {"listingId": "100",
      "title": {"textSpans": [{"text": "ThinkPad X1"}]},
      "action": {"trackingList": [{"eventProperty": {}}, {"eventProperty": {"sid": "p2351460.m4114.l7400"}}]},
      "displayPrice": {"value": {"value": "99.00"}},
      "displayTime": {"value": {"value": "2024-05-01T12:00:00.000Z"}},
      "image": {"URL": "https://img/1.jpg"},
      "itemPropertyOrdering": {"DEFAULT": {"primary": [["bidCount"], ["__search.freeXDays"], ["__search.formatBuyItNow"]]}},
      "__search": {
        "sellerInfo": {"text": {"textSpans": [{"text": "bob (123) 99%"}]}},
        "normalizedCondition": {"text": "Used"},
        "sellerAccountType": {"text": "Private"}
      }},
    "listing_c": {"listingId": "300", "title": {"textSpans": [{"text": "Recommended"}]},
      "action": {"trackingList": [{"eventProperty": {"sid": "p2351460.m4114.l9999"}}]},
      "displayPrice": {"value": {"value": 10}}},
    "listing_b": {"listingId": "200", "title": {"textSpans": [{"text": "Deferred laptop v2"}]},
      "action": {"trackingList": [{"eventProperty": {"sid": "p2351460.m4114.l7400"}}]},
      "displayPrice": {"value": {"value": 150.5}}},
    "pagination": {}
  }
}`

func newTestClient(url string) *Client {
	return New(Config{
		BaseURL:  url,
		ItemURL:  "https://item/",
		UserURL:  "https://user/",
		Currency: "EUR",
		Timeout:  2 * time.Second,
	}, nil)
}

func TestSearchOrderAndFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, searchPath) {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("_nkw") != "laptop" {
			t.Errorf("missing keyword: %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Errorf("missing request id")
		}
		_, _ = io.WriteString(w, searchFixture)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	raws, err := c.Search(context.Background(), models.SearchParams{Query: "laptop"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var ids []string
	for _, r := range raws {
		ids = append(ids, r.ID)
	}
	if strings.Join(ids, ",") != "200,100,300" {
		t.Fatalf("unexpected order %v", ids)
	}

	var organic []string
	for _, r := range raws {
		if c.IsOrganic(r) {
			organic = append(organic, r.ID)
		}
	}
	if strings.Join(organic, ",") != "200,100" {
		t.Fatalf("unexpected organic ids %v", organic)
	}

	rec, err := c.Normalize(raws[0])
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rec.Title != "Deferred laptop v2" {
		t.Fatalf("later module value must win, got %q", rec.Title)
	}
}

func TestNormalizeAuctionFields(t *testing.T) {
	var resp struct {
		Modules map[string]json.RawMessage `json:"modules"`
	}
	if err := json.Unmarshal([]byte(searchFixture), &resp); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	c := newTestClient("http://unused")
	rec, err := c.Normalize(models.RawListing{ID: "100", Payload: resp.Modules["listing_a"]})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !rec.IsAuction || !rec.BuyNow || rec.BestOffer {
		t.Fatalf("unexpected format flags %+v", rec)
	}
	if !rec.Price.Equal(decimal.RequireFromString("99")) {
		t.Fatalf("unexpected price %s", rec.Price)
	}
	if rec.Shipping != "Free shipping" || rec.Condition != "Used" || rec.SellerType != "Private" {
		t.Fatalf("unexpected fields %+v", rec)
	}
	if rec.SellerURL != "https://user/bob" || rec.URL != "https://item/100" {
		t.Fatalf("unexpected urls %s %s", rec.SellerURL, rec.URL)
	}
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if rec.EndsAt == nil || !rec.EndsAt.Equal(want) {
		t.Fatalf("unexpected end %v", rec.EndsAt)
	}
}

func TestNormalizeParseError(t *testing.T) {
	c := newTestClient("http://unused")
	_, err := c.Normalize(models.RawListing{ID: "x", Payload: json.RawMessage(`{"listingId":"x"}`)})
	if !errors.Is(err, models.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestSearchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), models.SearchParams{Query: "x"})
	if !errors.Is(err, models.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func TestGetDetailsAuction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("itemId") != "100" {
			t.Errorf("missing itemId")
		}
		_, _ = io.WriteString(w, `{"modules": {
			"VLS": {"listing": {"title": {"content": "ThinkPad"}, "format": "AUCTION",
				"listingLifecycle": {"scheduledStartDate": {"value": "2024-04-24T12:00:00Z"},
				"scheduledEndDate": {"value": "2024-05-01T12:00:00Z"}}}},
			"SEMANTIC_DATA": {"bidPrefetch": {"tracking": {"eventProperty": {"sid": "p1.l2000"}}}}}}`)
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).GetDetails(context.Background(), "100")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if !d.IsAuction || d.SessionToken != "p1.l2000" || d.Title != "ThinkPad" {
		t.Fatalf("unexpected detail %+v", d)
	}
	if d.EndsAt == nil || !d.EndsAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", d.EndsAt)
	}
}

func TestGetDetailsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetDetails(context.Background(), "1")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPlaceBid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Query().Get("sid") != "tok" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.RawQuery)
		}
		var body bidRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Price.Value != "25.00" || body.ItemID != "100" || body.DecimalPrecision != 2 {
			t.Errorf("unexpected body %+v", body)
		}
		_, _ = io.WriteString(w, `{"modules": {"AUCTION_META": {"isHighBidder": false,
			"currentPrice": {"value": "26.00"}, "highBidder": {"name": "eve"}}}}`)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).PlaceBid(context.Background(), "100", decimal.NewFromInt(25), "tok")
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if res.IsHighestBidder || res.HighBidder != "eve" || !res.CurrentPrice.Equal(decimal.NewFromInt(26)) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSearchQuery(t *testing.T) {
	q := SearchQuery(models.SearchParams{
		Query:       "gpu",
		MinPrice:    10,
		MaxPrice:    200,
		ListingType: models.ListingTypeAuction | models.ListingTypeBestOffer,
		Condition:   []int{1000, 3000},
		Category:    27386,
		Sold:        true,
	})
	checks := map[string]string{
		"_nkw": "gpu", "_udlo": "10", "_udhi": "200", "LH_Auction": "1", "LH_BO": "1",
		"LH_ItemCondition": "1000|3000", "_sacat": "27386", "LH_Sold": "1", "_sop": "12", "_sadis": "100",
	}
	for k, want := range checks {
		if got := q[k]; len(got) != 1 || got[0] != want {
			t.Fatalf("param %s: got %v want %s", k, got, want)
		}
	}
	if _, ok := q["LH_BIN"]; ok {
		t.Fatalf("buy-now flag must not be set")
	}
}

func TestSidSuffix(t *testing.T) {
	if n, ok := sidSuffix("p2351460.m4114.l7400"); !ok || n != 7400 {
		t.Fatalf("unexpected %d %v", n, ok)
	}
	if _, ok := sidSuffix("nomarker"); ok {
		t.Fatalf("expected no marker")
	}
}

const refinementsFixture = `{
  "modules": {},
  "deferred_modules": [{
    "SEARCH_REFINEMENTS_MODEL_V2": {"group": [
      {"fieldId": "price", "entries": [{"fieldId": "priceGraph"}]},
      {"paramKey": "_sacat", "entries": [
        {"paramValue": "0", "selected": false, "label": {"textSpans": [{"text": "All"}]}},
        {"expandInline": true, "entries": [
          {"paramValue": "58058", "selected": false, "label": {"textSpans": [{"text": "Computers"}]}},
          {"paramValue": "177", "selected": true, "label": {"textSpans": [{"text": "Laptops & Netbooks"}]}}
        ]}
      ]}
    ]}
  }]
}`

func TestSuggestCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, searchPath) {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Has("_sacat") {
			t.Errorf("category must not be sent: %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, refinementsFixture)
	}))
	defer srv.Close()

	id, name, err := newTestClient(srv.URL).SuggestCategory(context.Background(), models.SearchParams{Query: "thinkpad", Category: 9})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if id != 177 || name != "Laptops & Netbooks" {
		t.Fatalf("got %d %q", id, name)
	}
}

func TestSuggestCategoryNoneSelected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, searchFixture)
	}))
	defer srv.Close()

	id, _, err := newTestClient(srv.URL).SuggestCategory(context.Background(), models.SearchParams{Query: "laptop"})
	if err != nil || id != 0 {
		t.Fatalf("got %d, %v; want 0, nil", id, err)
	}
}
