package smallmarket

import (
	"context"
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
  "{http://schema.example/ad/v1}ads": {"value": {"ad": [
    {"id": "11", "title": {"value": "Laptop 14 inch"},
     "price": {"amount": {"value": 120}, "price-type": {"value": "PLEASE_CONTACT"}},
     "locations": {"location": [{"regions": {"region": [{"localized-name": {"value": "Berlin"}}]}}]},
     "ad-address": {"zip-code": {"value": "10115"}, "state": {"value": "Mitte"}},
     "start-date-time": {"value": "2024-05-01T10:00:00.000+0200"},
     "attributes": {"attribute": [{"name": "x.versand_s", "localized-tag": "Versand möglich"}]},
     "displayoptions": {"top-ad": {"value": "false"}},
     "link": [{"rel": "self", "href": "https://api/11"}, {"rel": "self-public-website", "href": "https://web/11"}],
     "pictures": {"picture": [{"link": [{"rel": "thumb", "href": "t"}, {"rel": "medium", "href": "m"}, {"rel": "large", "href": "l"}]}]}},
    {"id": "12", "title": {"value": "Promoted"},
     "price": {"amount": {}, "price-type": {}},
     "displayoptions": {"top-ad": {"value": "true"}}}
  ]}}
}`

const detailFixture = `{
  "{http://schema.example/ad/v1}ad": {"value": {
    "id": "11", "title": {"value": "Laptop 14 inch"},
    "description": {"value": "Works &amp; boots<br />No scratches"},
    "contact-name": {"value": "Anna"}, "user-id": {"value": "u-7"},
    "user-rating": {"averageRating": {"value": 1.5}},
    "userBadges": {"badges": [{"name": "friendliness", "level": "TOP", "value": ""}, {"name": "followers", "level": "", "value": 12}]},
    "user-since-date-time": {"value": "2019-03-01T08:00:00.000+0100"}
  }}
}`

func newTestClient(url string) *Client {
	return New(Config{BaseURL: url, AppKey: "k", Timeout: 2 * time.Second}, nil)
}

func TestSearchAndNormalize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "laptop" || q.Get("maxPrice") != "300" || q.Get("distance") != "25" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, searchFixture)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	raws, err := c.Search(context.Background(), models.SearchParams{Query: "laptop", MaxPrice: 300, LocationID: 3331})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(raws) != 2 || raws[0].ID != "11" || raws[1].ID != "12" {
		t.Fatalf("unexpected raws %+v", raws)
	}
	if !c.IsOrganic(raws[0]) || c.IsOrganic(raws[1]) {
		t.Fatalf("top-ad filter mismatch")
	}

	rec, err := c.Normalize(raws[0])
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !rec.Price.Equal(decimal.NewFromInt(120)) || !rec.Negotiable {
		t.Fatalf("unexpected price %s negotiable=%v", rec.Price, rec.Negotiable)
	}
	if rec.URL != "https://web/11" || rec.ImageURL != "l" {
		t.Fatalf("unexpected urls %s %s", rec.URL, rec.ImageURL)
	}
	if rec.Location != "10115 Mitte, Berlin" || rec.Shipping == "" {
		t.Fatalf("unexpected location %q shipping %q", rec.Location, rec.Shipping)
	}
	if rec.PublishedAt == nil || rec.PublishedAt.Hour() != 8 {
		t.Fatalf("unexpected published time %v", rec.PublishedAt)
	}
}

func TestSearchEmptyEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"{http://schema.example/ad/v1}ads": {"value": {}}}`)
	}))
	defer srv.Close()

	raws, err := newTestClient(srv.URL).Search(context.Background(), models.SearchParams{Query: "x"})
	if err != nil || len(raws) != 0 {
		t.Fatalf("expected empty result, got %v %v", raws, err)
	}
}

func TestGetDetails(t *testing.T) {
	var counterCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ads/11.json":
			_, _ = io.WriteString(w, detailFixture)
		case strings.HasPrefix(r.URL.Path, "/v2/counters/ads/vip/11"):
			counterCalled = true
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), `"userId":"u-7"`) {
				t.Errorf("unexpected counter body %s", body)
			}
			_, _ = io.WriteString(w, `{"value": 42}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).GetDetails(context.Background(), "11")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if d.Description != "Works & boots\nNo scratches" {
		t.Fatalf("unexpected description %q", d.Description)
	}
	if d.SellerName != "Anna" || d.SellerRating == nil || *d.SellerRating != 1.5 {
		t.Fatalf("unexpected seller %+v", d)
	}
	if d.SellerBadges["friendliness"] != "TOP" || d.SellerBadges["followers"] != "12" {
		t.Fatalf("unexpected badges %v", d.SellerBadges)
	}
	if !counterCalled || d.Views != 42 {
		t.Fatalf("expected views from counter, got %d", d.Views)
	}
}

func TestGetDetailsWithoutDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"{http://schema.example/ad/v1}ad": {"value": {"id": "11"}}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetDetails(context.Background(), "11")
	if !errors.Is(err, models.ErrDetailUnavailable) {
		t.Fatalf("expected detail unavailable, got %v", err)
	}
}

func TestPlaceBidNotAuction(t *testing.T) {
	_, err := newTestClient("http://unused").PlaceBid(context.Background(), "1", decimal.NewFromInt(1), "")
	if !errors.Is(err, models.ErrNotAuction) {
		t.Fatalf("expected not auction, got %v", err)
	}
}
