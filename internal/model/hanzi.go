package model

// StructureClass is the visual-composition taxonomy of a character. The
// catalog id's leading digit always encodes the record's structure class.
type StructureClass string

const (
	StructureUnknown       StructureClass = "unknown"
	StructureLeftRight     StructureClass = "left-right"
	StructureTopBottom     StructureClass = "top-bottom"
	StructureEnclosing     StructureClass = "enclosing"
	StructureSingle        StructureClass = "single-component"
	StructureTripleStacked StructureClass = "triple-stacked"
	StructureInterlocking  StructureClass = "interlocking"
)

var structurePrefix = map[StructureClass]byte{
	StructureUnknown:       '0',
	StructureLeftRight:     '1',
	StructureTopBottom:     '2',
	StructureEnclosing:     '3',
	StructureSingle:        '4',
	StructureTripleStacked: '5',
	StructureInterlocking:  '6',
}

// Prefix returns the id digit for the structure class. Unrecognized values
// map to the unknown prefix.
func (s StructureClass) Prefix() byte {
	if p, ok := structurePrefix[s]; ok {
		return p
	}
	return '0'
}

func (s StructureClass) Valid() bool {
	_, ok := structurePrefix[s]
	return ok
}

// ParseStructure normalizes a free-form structure string, defaulting to
// unknown for anything it does not recognize.
func ParseStructure(value string) StructureClass {
	s := StructureClass(value)
	if s.Valid() {
		return s
	}
	return StructureUnknown
}

func StructureFromPrefix(prefix byte) (StructureClass, bool) {
	for s, p := range structurePrefix {
		if p == prefix {
			return s, true
		}
	}
	return StructureUnknown, false
}

type Variant string

const (
	VariantSimplified  Variant = "simplified"
	VariantTraditional Variant = "traditional"
)

func ParseVariant(value string) Variant {
	if Variant(value) == VariantTraditional {
		return VariantTraditional
	}
	return VariantSimplified
}

type Level string

const (
	LevelA Level = "A"
	LevelB Level = "B"
	LevelC Level = "C"
	LevelD Level = "D"

	// DefaultLevel is assigned until a sample has been manually reviewed.
	DefaultLevel = LevelD
)

func ParseLevel(value string) Level {
	switch Level(value) {
	case LevelA, LevelB, LevelC, LevelD:
		return Level(value)
	}
	return DefaultLevel
}

// Hanzi is one handwritten character sample in the catalog.
//
// ID format: one structure-class digit followed by a 4-digit zero-padded
// sequence, e.g. "10042". The prefix digit must always match Structure.
type Hanzi struct {
	ID            string         `json:"id"`
	Character     string         `json:"character"`
	Structure     StructureClass `json:"structure"`
	Variant       Variant        `json:"variant"`
	Level         Level          `json:"level"`
	StrokeCount   int            `json:"stroke_count"`
	StrokeOrder   string         `json:"stroke_order"`
	Pinyin        string         `json:"pinyin"`
	Comment       string         `json:"comment"`
	ImagePath     string         `json:"image_path"`
	StandardImage string         `json:"standard_image"`
	Ctime         int64          `json:"ctime"`
	Mtime         int64          `json:"mtime"`
}

// HanziFilter narrows catalog listings. Zero values mean "no constraint".
type HanziFilter struct {
	Search      string
	Structure   StructureClass
	Level       Level
	Variant     Variant
	StrokeCount int
	IDs         []string
	Limit       int
	Offset      int
}
