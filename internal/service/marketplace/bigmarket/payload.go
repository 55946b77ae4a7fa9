package bigmarket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// organicMarker is the numeric suffix of a tracking sid that marks a real
// search hit rather than a recommendation block.
const organicMarker = 7400

type textSpans struct {
	TextSpans []struct {
		Text string `json:"text"`
	} `json:"textSpans"`
}

func (t textSpans) String() string {
	if len(t.TextSpans) == 0 {
		return ""
	}
	return t.TextSpans[0].Text
}

type searchItem struct {
	ListingID string    `json:"listingId"`
	Ended     bool      `json:"ended"`
	Title     textSpans `json:"title"`
	Action    struct {
		TrackingList []struct {
			EventProperty struct {
				Sid string `json:"sid"`
			} `json:"eventProperty"`
		} `json:"trackingList"`
	} `json:"action"`
	DisplayPrice struct {
		Value struct {
			Value    decimal.NullDecimal `json:"value"`
			Currency string              `json:"currency"`
		} `json:"value"`
	} `json:"displayPrice"`
	DisplayTime struct {
		Value struct {
			Value string `json:"value"`
		} `json:"value"`
	} `json:"displayTime"`
	Image *struct {
		URL string `json:"URL"`
	} `json:"image"`
	LogisticsCost        textSpans `json:"logisticsCost"`
	ItemPropertyOrdering struct {
		Default struct {
			Primary [][]string `json:"primary"`
		} `json:"DEFAULT"`
	} `json:"itemPropertyOrdering"`
	Search struct {
		SellerInfo struct {
			Text textSpans `json:"text"`
		} `json:"sellerInfo"`
		NormalizedCondition struct {
			Text string `json:"text"`
		} `json:"normalizedCondition"`
		SellerAccountType struct {
			Text string `json:"text"`
		} `json:"sellerAccountType"`
	} `json:"__search"`
}

func (it *searchItem) properties() map[string]bool {
	props := make(map[string]bool)
	for _, p := range it.ItemPropertyOrdering.Default.Primary {
		if len(p) > 0 {
			props[p[0]] = true
		}
	}
	return props
}

// sidSuffix returns the number after the last ".l" of a tracking sid.
func sidSuffix(sid string) (int, bool) {
	i := strings.LastIndex(sid, ".l")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(sid[i+2:])
	if err != nil {
		return 0, false
	}
	return n, true
}

type detailResponse struct {
	Modules struct {
		VLS *struct {
			Listing struct {
				Title struct {
					Content string `json:"content"`
				} `json:"title"`
				Format            string `json:"format"`
				ListingLifecycle struct {
					ScheduledStartDate struct {
						Value string `json:"value"`
					} `json:"scheduledStartDate"`
					ScheduledEndDate struct {
						Value string `json:"value"`
					} `json:"scheduledEndDate"`
				} `json:"listingLifecycle"`
			} `json:"listing"`
		} `json:"VLS"`
		SemanticData struct {
			BidPrefetch struct {
				Tracking struct {
					EventProperty struct {
						Sid string `json:"sid"`
					} `json:"eventProperty"`
				} `json:"tracking"`
			} `json:"bidPrefetch"`
		} `json:"SEMANTIC_DATA"`
	} `json:"modules"`
}

type bidRequest struct {
	WarningShown     string   `json:"elvisWarningShown"`
	Price            bidPrice `json:"price"`
	ItemID           string   `json:"itemId"`
	DecimalPrecision int      `json:"decimalPrecision"`
}

type bidPrice struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type bidResponse struct {
	Modules struct {
		AuctionMeta *struct {
			IsHighBidder bool `json:"isHighBidder"`
			CurrentPrice struct {
				Value decimal.Decimal `json:"value"`
			} `json:"currentPrice"`
			HighBidder struct {
				Name string `json:"name"`
			} `json:"highBidder"`
		} `json:"AUCTION_META"`
	} `json:"modules"`
}

type member struct {
	key string
	val json.RawMessage
}

// orderedMembers decodes a JSON object keeping its key order, which is the
// order listings were ranked in.
func orderedMembers(raw json.RawMessage) ([]member, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var out []member
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", kt)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, member{key: key, val: v})
	}
	return out, nil
}

// mergeModules overlays modules onto the first deferred module block. Keys
// keep the position of their first appearance; later values win.
func mergeModules(deferred, modules []member) []member {
	idx := make(map[string]int, len(deferred)+len(modules))
	out := make([]member, 0, len(deferred)+len(modules))
	for _, set := range [][]member{deferred, modules} {
		for _, m := range set {
			if i, ok := idx[m.key]; ok {
				out[i].val = m.val
				continue
			}
			idx[m.key] = len(out)
			out = append(out, m)
		}
	}
	return out
}

type refinementsResponse struct {
	Deferred []struct {
		Refinements struct {
			Group []refinementGroup `json:"group"`
		} `json:"SEARCH_REFINEMENTS_MODEL_V2"`
	} `json:"deferred_modules"`
}

type refinementGroup struct {
	ParamKey string            `json:"paramKey"`
	Entries  []refinementEntry `json:"entries"`
}

type refinementEntry struct {
	ExpandInline bool              `json:"expandInline"`
	Selected     bool              `json:"selected"`
	ParamValue   string            `json:"paramValue"`
	Label        textSpans         `json:"label"`
	Entries      []refinementEntry `json:"entries"`
}

// selectedCategory returns the last selected entry nested under an inline
// expanded entry of the _sacat group.
func (r *refinementsResponse) selectedCategory() (int, string, bool) {
	var (
		id    int
		name  string
		found bool
	)
	if len(r.Deferred) == 0 {
		return 0, "", false
	}
	for _, g := range r.Deferred[0].Refinements.Group {
		if g.ParamKey != "_sacat" {
			continue
		}
		for _, e := range g.Entries {
			if !e.ExpandInline {
				continue
			}
			for _, sub := range e.Entries {
				if !sub.Selected {
					continue
				}
				n, err := strconv.Atoi(sub.ParamValue)
				if err != nil {
					continue
				}
				id, name, found = n, sub.Label.String(), true
			}
		}
	}
	return id, name, found
}
