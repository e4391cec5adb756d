package hxcaptcha

// SwapMode defines htmx swap strategies for how response HTML replaces the
// target. See https://htmx.org/attributes/hx-swap/.
type SwapMode string

const (
	// SwapOuter replaces the entire element including its tag (outerHTML).
	SwapOuter SwapMode = "outerHTML"

	// SwapNone performs no swap. Out-of-band fragments in the response are
	// still applied, which is how event responses update the token field
	// without touching the widget element.
	SwapNone SwapMode = "none"
)
