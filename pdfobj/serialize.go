package pdfobj

import (
	"fmt"
	"io"

	"github.com/digitorus/pdf"
)

// SerializeValue serializes a pdf.Value into PDF object syntax, writing an
// indirect reference for anything not owned by parentObjID. Grounded on
// sign/pdfcatalog.go's serializeCatalogEntry, generalized beyond the
// Catalog so every incremental-update writer (Catalog splicing, DSS
// writing) can reuse it for arbitrary dictionaries.
func SerializeValue(w io.Writer, parentObjID uint32, value pdf.Value) {
	if ptr := value.GetPtr(); ptr.GetID() != parentObjID {
		fmt.Fprintf(w, "%d %d R", ptr.GetID(), ptr.GetGen())
		return
	}
	switch value.Kind() {
	case pdf.String:
		fmt.Fprintf(w, "(%s)", value.RawString())
	case pdf.Null:
		fmt.Fprint(w, "null")
	case pdf.Bool:
		if value.Bool() {
			fmt.Fprint(w, "true")
		} else {
			fmt.Fprint(w, "false")
		}
	case pdf.Integer:
		fmt.Fprintf(w, "%d", value.Int64())
	case pdf.Real:
		fmt.Fprintf(w, "%f", value.Float64())
	case pdf.Name:
		fmt.Fprintf(w, "/%s", value.Name())
	case pdf.Dict:
		fmt.Fprint(w, "<<")
		for idx, key := range value.Keys() {
			if idx > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "/%s ", key)
			SerializeValue(w, parentObjID, value.Key(key))
		}
		fmt.Fprint(w, ">>")
	case pdf.Array:
		fmt.Fprint(w, "[")
		for idx := 0; idx < value.Len(); idx++ {
			if idx > 0 {
				fmt.Fprint(w, " ")
			}
			SerializeValue(w, parentObjID, value.Index(idx))
		}
		fmt.Fprint(w, "]")
	}
}
