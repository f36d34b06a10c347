package scraper

// Candidate is an unvalidated product image discovered during scraping.
// It lives only for the duration of one identifier's pipeline run.
type Candidate struct {
	SourceURL string
	Store     string

	// Filled in after download
	Data   []byte
	Width  int
	Height int
	SizeKB int

	// Filled in by the scorer
	QualityScore   int
	WatermarkScore int
}

// StoreResult is one store's contribution for an identifier.
type StoreResult struct {
	Store string
	URLs  []string
	// Err is a labeled error string; empty when the store simply found nothing.
	Err string
}
