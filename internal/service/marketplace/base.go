// Package marketplace holds what the marketplace client variants share.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"MarketPull/internal/domain/models"
	xhttp "MarketPull/pkg/http"
)

// Classify maps a transport or status error onto the domain taxonomy.
// 429 becomes ErrRateLimited, 404 and 410 become ErrNotFound, anything
// else (including timeouts) is ErrNetwork. Undecodable bodies are ErrParse.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch xhttp.StatusCode(err) {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %v", op, models.ErrRateLimited, err)
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%s: %w: %v", op, models.ErrNotFound, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%s: %w: %v", op, models.ErrParse, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrNetwork, err)
}

// ParseError wraps a normalization failure of a single item.
func ParseError(id string, err error) error {
	return fmt.Errorf("listing %s: %w: %v", id, models.ErrParse, err)
}
