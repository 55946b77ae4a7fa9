package marketplace

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"MarketPull/internal/domain/models"
	xhttp "MarketPull/pkg/http"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"rate limited", &xhttp.StatusError{Code: 429}, models.ErrRateLimited},
		{"not found", fmt.Errorf("wrapped: %w", &xhttp.StatusError{Code: 404}), models.ErrNotFound},
		{"server error", &xhttp.StatusError{Code: 503}, models.ErrNetwork},
		{"transport", errors.New("connection reset"), models.ErrNetwork},
		{"decode", fmt.Errorf("decode json: %w", &json.SyntaxError{}), models.ErrParse},
	}
	for _, tc := range cases {
		got := Classify("search", tc.err)
		if !errors.Is(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
	if Classify("x", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
