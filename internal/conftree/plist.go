package conftree

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const plistHeader = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
`

const plistFooter = `</plist>
`

// WriteXML serializes the document as an XML property list. Dictionary
// keys appear in insertion order, so repeated generation runs over the
// same inputs produce byte-identical output.
func (doc *Document) WriteXML(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(plistHeader); err != nil {
		return err
	}
	if _, err := bw.WriteString("<dict>\n"); err != nil {
		return err
	}
	for _, name := range SectionNames {
		if err := writeKey(bw, 1, name); err != nil {
			return err
		}
		if err := writeValue(bw, 1, name, doc.Section(name)); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("</dict>\n"); err != nil {
		return err
	}
	if _, err := bw.WriteString(plistFooter); err != nil {
		return err
	}
	return bw.Flush()
}

// MarshalXML returns the XML property list as a byte slice.
func (doc *Document) MarshalXML() ([]byte, error) {
	var buf bytes.Buffer
	if err := doc.WriteXML(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeKey(w *bufio.Writer, depth int, key string) error {
	_, err := fmt.Fprintf(w, "%s<key>%s</key>\n", indent(depth), escapeXML(key))
	return err
}

// writeValue emits a single node. where names the enclosing key for error
// messages only.
func writeValue(w *bufio.Writer, depth int, where string, v Value) error {
	pad := indent(depth)
	switch x := v.(type) {
	case bool:
		if x {
			_, err := fmt.Fprintf(w, "%s<true/>\n", pad)
			return err
		}
		_, err := fmt.Fprintf(w, "%s<false/>\n", pad)
		return err
	case int:
		_, err := fmt.Fprintf(w, "%s<integer>%d</integer>\n", pad, x)
		return err
	case int64:
		_, err := fmt.Fprintf(w, "%s<integer>%d</integer>\n", pad, x)
		return err
	case string:
		_, err := fmt.Fprintf(w, "%s<string>%s</string>\n", pad, escapeXML(x))
		return err
	case []byte:
		_, err := fmt.Fprintf(w, "%s<data>%s</data>\n", pad, base64.StdEncoding.EncodeToString(x))
		return err
	case *Dict:
		if x == nil || x.Len() == 0 {
			_, err := fmt.Fprintf(w, "%s<dict/>\n", pad)
			return err
		}
		if _, err := fmt.Fprintf(w, "%s<dict>\n", pad); err != nil {
			return err
		}
		for _, key := range x.keys {
			if err := writeKey(w, depth+1, key); err != nil {
				return err
			}
			if err := writeValue(w, depth+1, where+"/"+key, x.values[key]); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "%s</dict>\n", pad)
		return err
	case *Array:
		if x == nil || x.Len() == 0 {
			_, err := fmt.Fprintf(w, "%s<array/>\n", pad)
			return err
		}
		if _, err := fmt.Fprintf(w, "%s<array>\n", pad); err != nil {
			return err
		}
		for i, item := range x.items {
			if err := writeValue(w, depth+1, fmt.Sprintf("%s[%d]", where, i), item); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "%s</array>\n", pad)
		return err
	default:
		return fmt.Errorf("unsupported value type %T at %s", v, where)
	}
}

func indent(depth int) string {
	return strings.Repeat("\t", depth)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
