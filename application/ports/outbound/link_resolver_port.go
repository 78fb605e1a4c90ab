package outbound

import (
	"context"
	"fmt"

	"promo-video-api/domain"
)

// LinkParseError is the resolver's typed parse failure. It is user-visible
// and does not advance the job.
type LinkParseError struct {
	URL    string
	Detail string
}

func (e *LinkParseError) Error() string {
	return fmt.Sprintf("could not parse product link %s: %s", e.URL, e.Detail)
}

type LinkResolverPort interface {
	Resolve(ctx context.Context, rawURL string) (*domain.ProductInfo, error)
}
