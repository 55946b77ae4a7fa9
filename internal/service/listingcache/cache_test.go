package listingcache

import (
	"testing"

	"MarketPull/internal/domain/models"
)

func TestInsertIsIdempotent(t *testing.T) {
	c := New()
	if !c.Insert(&models.ListingRecord{ID: "1", Title: "first"}, false) {
		t.Fatalf("expected first insert to succeed")
	}
	if c.Insert(&models.ListingRecord{ID: "1", Title: "second"}, true) {
		t.Fatalf("expected duplicate insert to fail")
	}
	rec, ok := c.Get("1")
	if !ok || rec.Title != "first" {
		t.Fatalf("existing entry was overwritten: %+v", rec)
	}
	if st, _ := c.State("1"); st != Pending {
		t.Fatalf("expected pending, got %v", st)
	}
}

func TestSuppressedNeverAnnounced(t *testing.T) {
	c := New()
	c.Insert(&models.ListingRecord{ID: "1"}, true)
	if c.MarkAnnounced("1") {
		t.Fatalf("suppressed entry must not be announced")
	}
	if st, _ := c.State("1"); st != Suppressed {
		t.Fatalf("expected suppressed, got %v", st)
	}
}

func TestMarkAnnouncedOnce(t *testing.T) {
	c := New()
	c.Insert(&models.ListingRecord{ID: "1"}, false)
	if !c.MarkAnnounced("1") {
		t.Fatalf("expected first mark to succeed")
	}
	if c.MarkAnnounced("1") {
		t.Fatalf("second mark must fail")
	}
	if st, _ := c.State("1"); st != Announced {
		t.Fatalf("expected announced, got %v", st)
	}
}

func TestAttachDetailAndCopies(t *testing.T) {
	c := New()
	c.Insert(&models.ListingRecord{ID: "1"}, false)
	if c.AttachDetail("missing", &models.ListingDetail{}) {
		t.Fatalf("attach on unknown id must fail")
	}
	if !c.AttachDetail("1", &models.ListingDetail{Description: "desc"}) {
		t.Fatalf("attach failed")
	}
	rec, _ := c.Get("1")
	rec.Detail.Description = "changed"
	again, _ := c.Get("1")
	if again.Detail.Description != "desc" {
		t.Fatalf("Get must return a copy")
	}
	if c.Len() != 1 {
		t.Fatalf("expected len 1, got %d", c.Len())
	}
}
