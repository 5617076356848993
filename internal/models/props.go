package models

/*
LEARNING: PROP SCHEMAS INSTEAD OF ONE GIANT OPTIONAL STRUCT

The store's merge unit is a single prop field, so props travel as field maps.
To keep the invalid-state space small (a line must never carry a "radius"),
every mutation path filters the map through the schema of the object's kind.
*/

// commonProps are the positional/style fields shared by every kind.
var commonProps = []string{
	"left", "top", "width", "height", "angle",
	"fill", "stroke", "strokeWidth", "opacity",
}

// kindProps lists the extra fields each kind adds on top of commonProps.
var kindProps = map[ObjectKind][]string{
	KindRect:   {"rx", "ry"},
	KindCircle: {"radius"},
	KindLine:   {"x1", "y1", "x2", "y2"},
	KindText:   {"text", "fontSize", "fontFamily", "fontWeight", "textAlign"},
	KindSticky: {"text", "fontSize", "noteColor"},
}

var propSchemas = buildPropSchemas()

func buildPropSchemas() map[ObjectKind]map[string]bool {
	schemas := make(map[ObjectKind]map[string]bool, len(kindProps))
	for kind, extra := range kindProps {
		fields := make(map[string]bool, len(commonProps)+len(extra))
		for _, f := range commonProps {
			fields[f] = true
		}
		for _, f := range extra {
			fields[f] = true
		}
		schemas[kind] = fields
	}
	return schemas
}

// ValidKind reports whether kind names a known shape kind.
func ValidKind(kind ObjectKind) bool {
	_, ok := propSchemas[kind]
	return ok
}

// ValidProp reports whether the named field exists for the given kind.
func ValidProp(kind ObjectKind, field string) bool {
	return propSchemas[kind][field]
}

// FilterProps returns a copy of props holding only the fields that exist for
// the given kind. Unknown fields are dropped silently, never stored.
func FilterProps(kind ObjectKind, props map[string]any) map[string]any {
	schema := propSchemas[kind]
	out := make(map[string]any, len(props))
	for k, v := range props {
		if schema[k] {
			out[k] = v
		}
	}
	return out
}
