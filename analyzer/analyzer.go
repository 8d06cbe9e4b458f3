package analyzer

// Term is one analyzed token together with its position in the source text.
type Term struct {
	Text     string
	Position int
}

// Spec selects the analysis configuration for a property. An empty
// AnalyzerID means the property is not analyzed.
type Spec struct {
	AnalyzerID string
}

// Analyzer is implemented by collaborators that turn raw text into the
// term-position stream backing a forward index.
type Analyzer interface {
	Analyze(text string, spec Spec) ([]Term, error)
}
