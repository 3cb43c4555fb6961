package pdf

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// maxTreeDepth bounds the page tree and name tree walks.
const maxTreeDepth = 16

func init() {
	// Carriers are read with the built-in configuration; pdfcpu must not
	// create a config directory under the user's home.
	api.DisableConfigDir()
}

type reader struct {
	ctx *model.Context
}

// Parse reads a carrier document. Streams are decoded with whatever filters
// they declare. The image rectangle is not read back.
func Parse(data []byte) (doc *Document, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}
	defer func() {
		if p := recover(); p != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrMalformed, p)
		}
	}()

	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	r := &reader{ctx: ctx}

	doc = &Document{Info: map[string]string{}}
	if ctx.Info != nil {
		info, err := ctx.DereferenceDict(*ctx.Info)
		if err != nil {
			return nil, fmt.Errorf("%w: info: %w", ErrMalformed, err)
		}
		for k, v := range info {
			if s, ok := r.text(v); ok {
				doc.Info[k] = s
			}
		}
	}

	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	page, err := r.firstPage(catalog)
	if err != nil {
		return nil, err
	}
	if err := r.readPage(page, doc); err != nil {
		return nil, err
	}
	if doc.Attachments, err = r.attachments(catalog); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *reader) object(o types.Object) types.Object {
	o, err := r.ctx.Dereference(o)
	if err != nil {
		return nil
	}
	return o
}

func (r *reader) dict(o types.Object) types.Dict {
	d, _ := r.object(o).(types.Dict)
	return d
}

func (r *reader) name(o types.Object) string {
	n, _ := r.object(o).(types.Name)
	return string(n)
}

func (r *reader) integer(o types.Object) (int, bool) {
	switch v := r.object(o).(type) {
	case types.Integer:
		return v.Value(), true
	case types.Float:
		f := v.Value()
		if f == math.Trunc(f) && math.Abs(f) < math.MaxInt32 {
			return int(f), true
		}
	}
	return 0, false
}

// text returns the raw bytes of a literal or hex string.
func (r *reader) text(o types.Object) (string, bool) {
	switch v := r.object(o).(type) {
	case types.StringLiteral:
		b, err := types.Unescape(v.Value())
		if err != nil {
			return "", false
		}
		return string(b), true
	case types.HexLiteral:
		b, err := v.Bytes()
		if err != nil {
			return "", false
		}
		return string(b), true
	}
	return "", false
}

// stream returns the stream behind o with its content decoded, or nil when
// o is not a stream.
func (r *reader) stream(o types.Object) (*types.StreamDict, error) {
	var sd types.StreamDict
	switch v := r.object(o).(type) {
	case types.StreamDict:
		sd = v
	case *types.StreamDict:
		sd = *v
	default:
		return nil, nil
	}
	if err := sd.Decode(); err != nil {
		return nil, fmt.Errorf("%w: stream: %w", ErrMalformed, err)
	}
	if sd.Content == nil {
		sd.Content = sd.Raw
	}
	return &sd, nil
}

func (r *reader) firstPage(catalog types.Dict) (types.Dict, error) {
	node := r.dict(catalog["Pages"])
	for depth := 0; node != nil && depth < maxTreeDepth; depth++ {
		if r.name(node["Type"]) == "Page" {
			return node, nil
		}
		kids, _ := r.object(node["Kids"]).(types.Array)
		if len(kids) == 0 {
			break
		}
		node = r.dict(kids[0])
	}
	return nil, fmt.Errorf("%w: no page", ErrMalformed)
}

func (r *reader) readPage(page types.Dict, doc *Document) error {
	parts, ok := r.object(page["Contents"]).(types.Array)
	if !ok {
		parts = types.Array{page["Contents"]}
	}
	var content []byte
	for _, part := range parts {
		sd, err := r.stream(part)
		if err != nil {
			return err
		}
		if sd != nil {
			content = append(append(content, sd.Content...), '\n')
		}
	}
	doc.Text = shownText(content)

	xobjects := r.dict(r.dict(page["Resources"])["XObject"])
	keys := make([]string, 0, len(xobjects))
	for k := range xobjects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		img, err := r.image(xobjects[k])
		if err != nil {
			return err
		}
		if img != nil {
			doc.Image = img
			break
		}
	}
	return nil
}

// image returns nil for XObjects that are not images.
func (r *reader) image(o types.Object) (*Image, error) {
	d, ok := r.object(o).(types.StreamDict)
	if !ok || r.name(d.Dict["Subtype"]) != "Image" {
		return nil, nil
	}
	if cs := r.name(d.Dict["ColorSpace"]); cs != "DeviceRGB" {
		return nil, fmt.Errorf("%w: image color space %q", ErrUnsupported, cs)
	}
	if bpc, _ := r.integer(d.Dict["BitsPerComponent"]); bpc != 8 {
		return nil, fmt.Errorf("%w: %d bits per component", ErrUnsupported, bpc)
	}
	w, _ := r.integer(d.Dict["Width"])
	h, _ := r.integer(d.Dict["Height"])

	sd, err := r.stream(o)
	if err != nil {
		return nil, err
	}
	img := &Image{Width: w, Height: h, RGB: append([]byte(nil), sd.Content...)}
	if err := img.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return img, nil
}

func (r *reader) attachments(catalog types.Dict) ([]Attachment, error) {
	tree := r.dict(r.dict(catalog["Names"])["EmbeddedFiles"])
	if tree == nil {
		return nil, nil
	}

	var out []Attachment
	var walk func(node types.Dict, depth int) error
	walk = func(node types.Dict, depth int) error {
		if depth > maxTreeDepth {
			return fmt.Errorf("%w: name tree too deep", ErrMalformed)
		}
		entries, _ := r.object(node["Names"]).(types.Array)
		for i := 0; i+1 < len(entries); i += 2 {
			spec := r.dict(entries[i+1])
			if spec == nil {
				continue
			}
			sd, err := r.stream(r.dict(spec["EF"])["F"])
			if err != nil {
				return err
			}
			if sd == nil {
				continue
			}
			name, _ := r.text(entries[i])
			for _, k := range []string{"UF", "F"} {
				if v, ok := r.text(spec[k]); ok && v != "" {
					name = v
					break
				}
			}
			out = append(out, Attachment{Name: name, Data: append([]byte(nil), sd.Content...)})
		}
		kids, _ := r.object(node["Kids"]).(types.Array)
		for _, k := range kids {
			if kd := r.dict(k); kd != nil {
				if err := walk(kd, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(tree, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// shownText returns the operand of the first Tj operator in a content
// stream.
func shownText(content []byte) string {
	for i := 0; i < len(content); i++ {
		if content[i] != '(' {
			continue
		}
		end, ok := closingParen(content, i)
		if !ok {
			return ""
		}
		if bytes.HasPrefix(bytes.TrimLeft(content[end+1:], " \t\r\n"), []byte("Tj")) {
			b, err := types.Unescape(string(content[i+1 : end]))
			if err != nil {
				return ""
			}
			return string(b)
		}
		i = end
	}
	return ""
}

func closingParen(b []byte, open int) (int, bool) {
	depth := 0
	for i := open; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
