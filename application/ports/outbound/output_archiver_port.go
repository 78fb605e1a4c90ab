package outbound

import "context"

// OutputArchiverPort copies a completed variant's provider result into owned
// object storage and returns the durable reference.
type OutputArchiverPort interface {
	Archive(ctx context.Context, jobID string, variantIndex int, resultRef string) (string, error)
}
