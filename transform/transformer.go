package transform

import (
	"io/ioutil"
	"strconv"
	"strings"
	"time"

	"Doc_Indexer/analyzer"
	"Doc_Indexer/docstore"
	"Doc_Indexer/indexengine"
	"Doc_Indexer/schema"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// numericSeparators are tried in order when a single-valued numeric property
// fails to parse: ranges like "10-20" or "1~5" and stray comma lists degrade
// to multi-value instructions instead of parse failures.
var numericSeparators = []string{"-", "~", ","}

// Transformer converts raw property values into the index-ready instruction
// shapes the engine consumes. It is stateless across calls apart from the
// term arena lent to it per record.
type Transformer struct {
	schema   *schema.Schema
	analyzer analyzer.Analyzer
	logger   *logrus.Entry
}

// NewTransformer creates a Transformer for the given schema. A nil logger
// discards the malformed-value warnings.
func NewTransformer(sch *schema.Schema, an analyzer.Analyzer, logger *logrus.Entry) *Transformer {
	if logger == nil {
		logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard, Formatter: new(logrus.TextFormatter), Hooks: make(logrus.LevelHooks), Level: logrus.PanicLevel})
	}
	return &Transformer{schema: sch, analyzer: an, logger: logger}
}

// Transform produces the full instruction list for a document. Properties
// are visited in schema declaration order; the document key contributes no
// instruction (ids travel beside the instruction list) and the timestamp
// property becomes an integer filter column. Malformed numeric values drop
// just that property with a warning.
func (t *Transformer) Transform(docID uint64, doc *docstore.Document, ts time.Time, arena *TermArena) ([]indexengine.Instruction, error) {
	var out []indexengine.Instruction
	for _, prop := range t.schema.Properties() {
		raw, ok := doc.Properties[prop.Name]
		if !ok {
			continue
		}
		if schema.IsKey(prop.Name) {
			continue
		}
		if schema.IsTimestamp(prop.Name) {
			out = append(out, t.timestampInstruction(prop, raw, ts))
			continue
		}
		instrs, err := t.TransformProperty(docID, prop, raw, arena)
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
	}
	return out, nil
}

// TransformProperty converts one raw property value into zero or more
// instructions. For analyzed string properties every declared alias receives
// an independently analyzed stream under its own property id.
func (t *Transformer) TransformProperty(docID uint64, prop schema.Property, raw string, arena *TermArena) ([]indexengine.Instruction, error) {
	switch prop.Type {
	case schema.TypeString:
		return t.transformString(docID, prop, raw, arena)
	case schema.TypeInt:
		return t.transformInt(docID, prop, raw), nil
	case schema.TypeFloat:
		return t.transformFloat(docID, prop, raw), nil
	case schema.TypeNominal:
		// Nominal labels live in the document store only.
		return nil, nil
	default:
		return nil, xerrors.Errorf("property %q has unknown type %d", prop.Name, prop.Type)
	}
}

// TimestampInstruction builds the integer filter instruction for the
// reserved timestamp property. The fallback time is used when raw does not
// parse.
func (t *Transformer) TimestampInstruction(prop schema.Property, raw string, fallback time.Time) indexengine.Instruction {
	return t.timestampInstruction(prop, raw, fallback)
}

func (t *Transformer) timestampInstruction(prop schema.Property, raw string, ts time.Time) indexengine.Instruction {
	if parsed, err := schema.ParseTimestamp(raw); err == nil {
		ts = parsed
	}
	in := baseInstruction(prop)
	in.IsIndex = true
	in.IsFilter = true
	in.IsAnalyzed = false
	in.IsMultiValue = false
	in.Kind = indexengine.ValueInt
	in.Int = ts.Unix()
	return in
}

func (t *Transformer) transformString(docID uint64, prop schema.Property, raw string, arena *TermArena) ([]indexengine.Instruction, error) {
	if raw == "" {
		return nil, nil
	}

	in := baseInstruction(prop)
	if !prop.IsIndex {
		// Display-only value, stored opaquely.
		in.Kind = indexengine.ValueString
		in.Str = raw
		return []indexengine.Instruction{in}, nil
	}

	if !prop.IsAnalyzed {
		if prop.IsFilter && prop.IsMultiValue {
			in.Kind = indexengine.ValueStringList
			in.StrList = splitValues(raw, ",")
		} else {
			in.Kind = indexengine.ValueString
			in.Str = raw
		}
		return []indexengine.Instruction{in}, nil
	}

	stream, err := t.analyzeInto(docID, prop, raw, arena)
	if err != nil {
		return nil, err
	}
	in.Terms = stream
	if prop.IsFilter {
		if prop.IsMultiValue {
			in.Kind = indexengine.ValueStringList
			in.StrList = splitValues(raw, ",")
		} else {
			in.Kind = indexengine.ValueString
			in.Str = raw
		}
	} else {
		in.Kind = indexengine.ValueTerms
	}
	out := []indexengine.Instruction{in}

	for _, alias := range t.schema.AliasesOf(prop.Name) {
		aliasStream, err := t.analyzeInto(docID, alias, raw, arena)
		if err != nil {
			return nil, err
		}
		aliasIn := baseInstruction(alias)
		aliasIn.Kind = indexengine.ValueTerms
		aliasIn.Terms = aliasStream
		out = append(out, aliasIn)
	}
	return out, nil
}

func (t *Transformer) analyzeInto(docID uint64, prop schema.Property, raw string, arena *TermArena) (*indexengine.TermStream, error) {
	terms, err := t.analyzer.Analyze(raw, analyzer.Spec{AnalyzerID: prop.AnalyzerID})
	if err != nil {
		return nil, xerrors.Errorf("analyze property %q: %w", prop.Name, err)
	}
	stream := arena.StreamFor(prop.ID, docID)
	stream.Terms = append(stream.Terms, terms...)
	return stream, nil
}

func (t *Transformer) transformInt(docID uint64, prop schema.Property, raw string) []indexengine.Instruction {
	if !prop.IsIndex {
		return nil
	}
	in := baseInstruction(prop)

	if prop.IsMultiValue {
		in.Kind = indexengine.ValueIntList
		in.IntList = t.parseIntList(docID, prop.Name, raw, ",")
		return []indexengine.Instruction{in}
	}

	if v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
		in.Kind = indexengine.ValueInt
		in.Int = v
		return []indexengine.Instruction{in}
	}

	if sep, ok := findSeparator(raw); ok {
		list := t.parseIntList(docID, prop.Name, raw, sep)
		if len(list) == 0 {
			t.warnDropped(docID, prop.Name, raw)
			return nil
		}
		in.Kind = indexengine.ValueIntList
		in.IsMultiValue = true
		in.IntList = list
		return []indexengine.Instruction{in}
	}

	// Last resort for integers: accept float text and truncate.
	if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		in.Kind = indexengine.ValueInt
		in.Int = int64(f)
		return []indexengine.Instruction{in}
	}

	t.warnDropped(docID, prop.Name, raw)
	return nil
}

func (t *Transformer) transformFloat(docID uint64, prop schema.Property, raw string) []indexengine.Instruction {
	if !prop.IsIndex {
		return nil
	}
	in := baseInstruction(prop)

	if prop.IsMultiValue {
		in.Kind = indexengine.ValueFloatList
		in.FloatList = t.parseFloatList(docID, prop.Name, raw, ",")
		return []indexengine.Instruction{in}
	}

	if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		in.Kind = indexengine.ValueFloat
		in.Float = v
		return []indexengine.Instruction{in}
	}

	if sep, ok := findSeparator(raw); ok {
		list := t.parseFloatList(docID, prop.Name, raw, sep)
		if len(list) > 0 {
			in.Kind = indexengine.ValueFloatList
			in.IsMultiValue = true
			in.FloatList = list
			return []indexengine.Instruction{in}
		}
	}

	t.warnDropped(docID, prop.Name, raw)
	return nil
}

func (t *Transformer) parseIntList(docID uint64, name, raw, sep string) []int64 {
	var out []int64
	for _, tok := range splitValues(raw, sep) {
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			t.warnDropped(docID, name, tok)
			continue
		}
		out = append(out, v)
	}
	return out
}

func (t *Transformer) parseFloatList(docID uint64, name, raw, sep string) []float64 {
	var out []float64
	for _, tok := range splitValues(raw, sep) {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			t.warnDropped(docID, name, tok)
			continue
		}
		out = append(out, v)
	}
	return out
}

func (t *Transformer) warnDropped(docID uint64, name, value string) {
	t.logger.WithFields(logrus.Fields{
		"doc_id":   docID,
		"property": name,
		"value":    value,
	}).Warn("dropping property with malformed numeric value")
}

func baseInstruction(prop schema.Property) indexengine.Instruction {
	return indexengine.Instruction{
		PropertyID:    prop.ID,
		Name:          prop.Name,
		IsIndex:       prop.IsIndex,
		IsAnalyzed:    prop.IsAnalyzed,
		IsFilter:      prop.IsFilter,
		IsMultiValue:  prop.IsMultiValue,
		IsStoreLength: prop.IsStoreLength,
	}
}

// findSeparator returns the first numeric fallback separator contained in
// raw. The probe order is hyphen, then tilde, then comma.
func findSeparator(raw string) (string, bool) {
	for _, sep := range numericSeparators {
		if strings.Contains(raw, sep) {
			return sep, true
		}
	}
	return "", false
}

func splitValues(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
