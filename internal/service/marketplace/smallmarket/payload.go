package smallmarket

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Payload values come wrapped as {"value": ...}.
type strValue struct {
	Value string `json:"value"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type ad struct {
	ID    string   `json:"id"`
	Title strValue `json:"title"`
	Price struct {
		Amount struct {
			Value decimal.NullDecimal `json:"value"`
		} `json:"amount"`
		PriceType strValue `json:"price-type"`
	} `json:"price"`
	Locations struct {
		Location []struct {
			Regions struct {
				Region []struct {
					LocalizedName strValue `json:"localized-name"`
				} `json:"region"`
			} `json:"regions"`
		} `json:"location"`
	} `json:"locations"`
	Address struct {
		ZipCode strValue `json:"zip-code"`
		State   strValue `json:"state"`
	} `json:"ad-address"`
	StartDateTime strValue `json:"start-date-time"`
	Attributes    struct {
		Attribute []struct {
			Name         string `json:"name"`
			LocalizedTag string `json:"localized-tag"`
		} `json:"attribute"`
	} `json:"attributes"`
	DisplayOptions map[string]strValue `json:"displayoptions"`
	Link           []link              `json:"link"`
	Pictures       struct {
		Picture []struct {
			Link []link `json:"link"`
		} `json:"picture"`
	} `json:"pictures"`
	PosterType        strValue `json:"poster-type"`
	SellerAccountType strValue `json:"seller-account-type"`

	// Detail-only fields.
	Description *strValue `json:"description"`
	ContactName strValue  `json:"contact-name"`
	UserID      strValue  `json:"user-id"`
	UserRating  *struct {
		AverageRating struct {
			Value *float64 `json:"value"`
		} `json:"averageRating"`
	} `json:"user-rating"`
	UserBadges *struct {
		Badges []struct {
			Name  string     `json:"name"`
			Level flexString `json:"level"`
			Value flexString `json:"value"`
		} `json:"badges"`
	} `json:"userBadges"`
	UserSince strValue `json:"user-since-date-time"`
}

func (a *ad) flag(name string) bool {
	return a.DisplayOptions[name].Value == "true"
}

func (a *ad) publicURL() string {
	for _, l := range a.Link {
		if l.Rel == "self-public-website" {
			return l.Href
		}
	}
	if len(a.Link) > 1 {
		return a.Link[1].Href
	}
	if len(a.Link) == 1 {
		return a.Link[0].Href
	}
	return ""
}

func (a *ad) imageURL() string {
	if len(a.Pictures.Picture) == 0 {
		return ""
	}
	links := a.Pictures.Picture[0].Link
	for _, l := range links {
		if strings.EqualFold(l.Rel, "large") {
			return l.Href
		}
	}
	if len(links) > 2 {
		return links[2].Href
	}
	if len(links) > 0 {
		return links[len(links)-1].Href
	}
	return ""
}

func (a *ad) region() string {
	if len(a.Locations.Location) == 0 || len(a.Locations.Location[0].Regions.Region) == 0 {
		return ""
	}
	return a.Locations.Location[0].Regions.Region[0].LocalizedName.Value
}

func (a *ad) shippable() bool {
	for _, at := range a.Attributes.Attribute {
		if at.LocalizedTag == "Versand möglich" || strings.HasSuffix(at.Name, ".versand_s") {
			return true
		}
	}
	return false
}

// unwrap finds the namespaced envelope key ending in suffix and returns its value.
func unwrap(body []byte, suffix string) (json.RawMessage, bool) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, false
	}
	for k, v := range top {
		if k == suffix || strings.HasSuffix(k, "}"+suffix) {
			var env struct {
				Value json.RawMessage `json:"value"`
			}
			if err := json.Unmarshal(v, &env); err != nil {
				return nil, false
			}
			return env.Value, true
		}
	}
	return nil, false
}
