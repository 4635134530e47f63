// Package advisory maps a diagnosed class name to remediation text. The
// catalog is a fixed compile-time table keyed by class name rather than
// index, so it survives retraining as long as class names are stable.
package advisory

// Fallback is returned for any class the catalog has no entry for. A missing
// entry is a normal case, not an error; catalog coverage is intentionally
// partial.
const Fallback = "No solution found."

// Catalog is a read-only class-name → advisory mapping. Safe for concurrent
// reads after construction.
type Catalog struct {
	entries map[string]string
}

// Default returns the built-in advisory catalog.
func Default() *Catalog {
	return &Catalog{entries: map[string]string{
		"Tomato___Leaf_Mold":          "Use copper fungicide & remove infected leaves.",
		"Tomato___Late_blight":        "Apply Mancozeb & avoid overhead irrigation.",
		"Tomato___Septoria_leaf_spot": "Use chlorothalonil & prune lower leaves.",
		"Tomato___Early_blight":       "Rotate crops & apply a protectant fungicide at first sign.",
		"Tomato___Bacterial_spot":     "Use certified seed & copper-based sprays; avoid working wet plants.",
		"Tomato___healthy":            "Your plant is healthy!",
	}}
}

// Lookup returns the advisory for className, or Fallback when the class is
// not in the catalog. It never fails.
func (c *Catalog) Lookup(className string) string {
	if s, ok := c.entries[className]; ok {
		return s
	}
	return Fallback
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
