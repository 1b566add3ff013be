// Package answers loads the loosely structured auxiliary metadata files that
// accompany an image bundle: JSON objects keyed by filename, or tabular
// sheets, carrying level grades and reviewer comments.
package answers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
)

// Canonical field names and their accepted aliases. Alias matching is
// case-insensitive.
var fieldAliases = map[string]string{
	"id":        "id",
	"编号":        "id",
	"level":     "level",
	"levels":    "level",
	"grade":     "level",
	"grades":    "level",
	"等级":        "level",
	"comment":   "comment",
	"comments":  "comment",
	"remark":    "comment",
	"remarks":   "comment",
	"评论":        "comment",
	"评语":        "comment",
	"备注":        "comment",
	"structure": "structure",
	"variant":   "variant",
}

func canonicalField(name string) string {
	return fieldAliases[strings.ToLower(strings.TrimSpace(name))]
}

// Value is one entry's raw metadata: either a bare scalar or a set of named
// fields.
type Value struct {
	Scalar string
	Fields map[string]string
}

// Mapping is an ordered key→value table. Iteration order is the file's own
// entry order, so fuzzy-match tie-breaking stays deterministic across runs.
type Mapping struct {
	keys     []string
	entries  map[string]Value
	detected string
}

func Empty() *Mapping {
	return &Mapping{entries: make(map[string]Value)}
}

func (m *Mapping) Len() int       { return len(m.keys) }
func (m *Mapping) Keys() []string { return m.keys }

func (m *Mapping) put(key string, v Value) {
	if _, ok := m.entries[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.entries[key] = v
}

// DetectedField reports which single field a scalar-valued file supplies
// ("level", "comment", or empty when undetected).
func (m *Mapping) DetectedField() string {
	return m.detected
}

// SetDetectedField overrides detection when the caller knows the file's role
// by convention (e.g. the first answer file carries levels). Files with
// per-entry fields ignore the override.
func (m *Mapping) SetDetectedField(field string) {
	if m.detected == "" {
		m.detected = field
	}
}

// Field returns the named field for a key, or "" when the key or field is
// absent. For scalar files the value is returned only under the detected
// field name.
func (m *Mapping) Field(key, field string) string {
	v, ok := m.entries[key]
	if !ok {
		return ""
	}
	if v.Fields != nil {
		return v.Fields[field]
	}
	if m.detected == field {
		return v.Scalar
	}
	return ""
}

// Options adjust how answer files are interpreted.
type Options struct {
	// IDKey/LevelKey/CommentKey name the source field to read when the
	// file's own field names do not match any known alias.
	IDKey      string
	LevelKey   string
	CommentKey string
}

// Load parses an answer file by extension (.json, .xlsx, .csv). A missing or
// empty path is tolerated and yields an empty mapping; only unparsable
// syntax returns an error (wrapping ErrMetadataLoad).
func Load(path string, opts Options) (*Mapping, error) {
	if path == "" {
		return Empty(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return Empty(), nil
	}
	var m *Mapping
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		m, err = loadSheet(path, opts)
	case ".csv":
		m, err = loadCSV(path, opts)
	default:
		m, err = loadJSON(path, opts)
	}
	if err != nil {
		return nil, err
	}
	m.detected = detect(m)
	return m, nil
}

// detect samples the first entry, per the original heuristic: a bare
// single-letter A–D value marks a level file, longer text a comment file.
// Ambiguous shapes degrade to "no field detected" rather than erroring.
func detect(m *Mapping) string {
	if len(m.keys) == 0 {
		return ""
	}
	first := m.entries[m.keys[0]]
	if first.Fields != nil {
		return ""
	}
	s := strings.TrimSpace(first.Scalar)
	if len(s) == 1 && strings.Contains("ABCD", s) {
		return "level"
	}
	if utf8.RuneCountInString(s) > 1 {
		return "comment"
	}
	return ""
}

func loadJSON(path string, opts Options) (*Mapping, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrMetadataLoad, err)
	}
	defer file.Close()

	// Decoded token by token so entry order survives; map-based decoding
	// would randomize it and break tie-breaking determinism.
	dec := json.NewDecoder(file)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrMetadataLoad, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: top-level value must be an object", appErr.ErrMetadataLoad)
	}
	m := Empty()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrMetadataLoad, err)
		}
		key := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrMetadataLoad, err)
		}
		value, err := decodeValue(raw, opts)
		if err != nil {
			return nil, err
		}
		m.put(key, value)
	}
	return m, nil
}

func decodeValue(raw json.RawMessage, opts Options) (Value, error) {
	var any interface{}
	if err := json.Unmarshal(raw, &any); err != nil {
		return Value{}, fmt.Errorf("%w: %v", appErr.ErrMetadataLoad, err)
	}
	switch v := any.(type) {
	case map[string]interface{}:
		fields := make(map[string]string, len(v))
		for name, inner := range v {
			canonical := canonicalField(name)
			switch {
			case canonical != "":
			case name == opts.IDKey && opts.IDKey != "":
				canonical = "id"
			case name == opts.LevelKey && opts.LevelKey != "":
				canonical = "level"
			case name == opts.CommentKey && opts.CommentKey != "":
				canonical = "comment"
			default:
				continue
			}
			fields[canonical] = stringify(inner)
		}
		return Value{Fields: fields}, nil
	default:
		return Value{Scalar: stringify(any)}, nil
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func loadSheet(path string, opts Options) (*Mapping, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrMetadataLoad, err)
	}
	defer file.Close()
	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return Empty(), nil
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrMetadataLoad, err)
	}
	return fromRows(rows, opts)
}

func loadCSV(path string, opts Options) (*Mapping, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrMetadataLoad, err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrMetadataLoad, err)
		}
		rows = append(rows, record)
	}
	return fromRows(rows, opts)
}

// fromRows interprets tabular data: first column is the key, remaining
// columns are fields named by the header row. A two-column sheet without a
// recognizable header degrades to key→scalar pairs.
func fromRows(rows [][]string, opts Options) (*Mapping, error) {
	m := Empty()
	if len(rows) == 0 {
		return m, nil
	}
	header := rows[0]
	named := make(map[int]string)
	for i := 1; i < len(header); i++ {
		canonical := canonicalField(header[i])
		switch {
		case canonical != "":
		case header[i] == opts.IDKey && opts.IDKey != "":
			canonical = "id"
		case header[i] == opts.LevelKey && opts.LevelKey != "":
			canonical = "level"
		case header[i] == opts.CommentKey && opts.CommentKey != "":
			canonical = "comment"
		default:
			continue
		}
		named[i] = canonical
	}
	if len(named) == 0 {
		// No named columns: treat every row (header included) as key,value.
		for _, row := range rows {
			if len(row) < 2 || strings.TrimSpace(row[0]) == "" {
				continue
			}
			m.put(strings.TrimSpace(row[0]), Value{Scalar: strings.TrimSpace(row[1])})
		}
		return m, nil
	}
	for _, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		fields := make(map[string]string)
		for i, canonical := range named {
			if i < len(row) {
				fields[canonical] = strings.TrimSpace(row[i])
			}
		}
		m.put(strings.TrimSpace(row[0]), Value{Fields: fields})
	}
	return m, nil
}
