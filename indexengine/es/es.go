package es

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"Doc_Indexer/indexengine"

	elasticsearch "github.com/elastic/go-elasticsearch"
	"github.com/elastic/go-elasticsearch/esapi"
	"golang.org/x/xerrors"
)

// ElasticSearchEngine is an index engine adapter backed by an Elasticsearch
// cluster. Instructions are flattened into one JSON document per internal
// id; the cluster re-derives postings from the flattened term text.
type ElasticSearchEngine struct {
	es    *elasticsearch.Client
	index string
}

// NewElasticSearchEngine creates an engine that indexes into the named index
// of the cluster reachable at esNodes.
func NewElasticSearchEngine(esNodes []string, index string) (*ElasticSearchEngine, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: esNodes})
	if err != nil {
		return nil, xerrors.Errorf("create index engine client: %w", err)
	}
	return &ElasticSearchEngine{es: es, index: index}, nil
}

// Insert implements indexengine.Engine.
func (e *ElasticSearchEngine) Insert(docID uint64, instructions []indexengine.Instruction) error {
	body, err := marshalInstructions(instructions)
	if err != nil {
		return xerrors.Errorf("index document %d: %w", docID, err)
	}
	res, err := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: formatDocID(docID),
		Body:       bytes.NewReader(body),
	}.Do(context.Background(), e.es)
	if err != nil {
		return xerrors.Errorf("index document %d: %w", docID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return xerrors.Errorf("index document %d: %s", docID, res.String())
	}
	return nil
}

// Update implements indexengine.Engine. A nil old slice results in a full
// reindex of the document; a diff becomes a targeted partial update.
func (e *ElasticSearchEngine) Update(docID uint64, old, updated []indexengine.Instruction) error {
	if old == nil {
		return e.Insert(docID, updated)
	}

	fields, err := instructionFields(updated)
	if err != nil {
		return xerrors.Errorf("update document %d: %w", docID, err)
	}
	body, err := json.Marshal(map[string]interface{}{"doc": fields})
	if err != nil {
		return xerrors.Errorf("update document %d: %w", docID, err)
	}
	res, err := esapi.UpdateRequest{
		Index:      e.index,
		DocumentID: formatDocID(docID),
		Body:       bytes.NewReader(body),
	}.Do(context.Background(), e.es)
	if err != nil {
		return xerrors.Errorf("update document %d: %w", docID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return xerrors.Errorf("update document %d: %s", docID, res.String())
	}
	return nil
}

// Remove implements indexengine.Engine.
func (e *ElasticSearchEngine) Remove(_ uint32, docID uint64) error {
	res, err := esapi.DeleteRequest{
		Index:      e.index,
		DocumentID: formatDocID(docID),
	}.Do(context.Background(), e.es)
	if err != nil {
		return xerrors.Errorf("remove document %d: %w", docID, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return xerrors.Errorf("remove document %d: %s", docID, res.String())
	}
	return nil
}

// NumDocs implements indexengine.Engine.
func (e *ElasticSearchEngine) NumDocs() (uint64, error) {
	res, err := esapi.CountRequest{Index: []string{e.index}}.Do(context.Background(), e.es)
	if err != nil {
		return 0, xerrors.Errorf("count documents: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, xerrors.Errorf("count documents: %s", res.String())
	}
	var out struct {
		Count uint64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, xerrors.Errorf("count documents: %w", err)
	}
	return out.Count, nil
}

func marshalInstructions(instructions []indexengine.Instruction) ([]byte, error) {
	fields, err := instructionFields(instructions)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// instructionFields flattens instructions into the JSON document shape the
// cluster indexes. Filter values win over term streams for properties that
// carry both.
func instructionFields(instructions []indexengine.Instruction) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(instructions))
	for _, in := range instructions {
		switch in.Kind {
		case indexengine.ValueString:
			fields[in.Name] = in.Str
		case indexengine.ValueStringList:
			fields[in.Name] = in.StrList
		case indexengine.ValueInt:
			fields[in.Name] = in.Int
		case indexengine.ValueIntList:
			fields[in.Name] = in.IntList
		case indexengine.ValueFloat:
			fields[in.Name] = in.Float
		case indexengine.ValueFloatList:
			fields[in.Name] = in.FloatList
		case indexengine.ValueTerms:
			if in.Terms == nil {
				continue
			}
			texts := make([]string, len(in.Terms.Terms))
			for i, t := range in.Terms.Terms {
				texts[i] = t.Text
			}
			fields[in.Name] = strings.Join(texts, " ")
		default:
			return nil, xerrors.Errorf("instruction for %q has unknown value kind %d", in.Name, in.Kind)
		}
	}
	return fields, nil
}

func formatDocID(docID uint64) string {
	return strconv.FormatUint(docID, 10)
}
