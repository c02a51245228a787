package pipeline

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Request describes one pipeline run
type Request struct {
	SearchQuery  string `json:"search_query" validate:"required,max=512"`
	TotalResults int    `json:"total_results" validate:"gte=1,lte=10000"`
	APIEndpoint  string `json:"api_endpoint,omitempty" validate:"omitempty,url"`
	APIKey       string `json:"-"`
}

var validate = validator.New()

// Validate trims the query and checks every field
func (r *Request) Validate() error {
	r.SearchQuery = strings.TrimSpace(r.SearchQuery)
	r.APIEndpoint = strings.TrimSpace(r.APIEndpoint)
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid run request: %w", err)
	}
	return nil
}
