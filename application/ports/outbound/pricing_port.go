package outbound

// PricingPort is the injected fee schedule. Amounts are business
// configuration, never hard-coded in services.
type PricingPort interface {
	// ScriptFee returns the cost of the given script attempt (1-based).
	// The first attempts up to the free threshold cost zero; beyond it the
	// fee is non-decreasing in the attempt index.
	ScriptFee(attempt int) int64
	ReferenceImageCost() int64
	VideoVariantCost() int64
}
