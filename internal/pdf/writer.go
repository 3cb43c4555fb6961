package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

const (
	fontName  = "F1"
	fontSize  = 14
	imageName = "Im1"
)

type builder struct {
	objs []Object
}

func (b *builder) add(o Object) Ref {
	b.objs = append(b.objs, o)
	return Ref{Num: len(b.objs)}
}

func (b *builder) set(r Ref, o Object) {
	b.objs[r.Num-1] = o
}

// WriteTo writes d as a complete PDF file.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	data, err := d.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Bytes returns d as a complete PDF file.
func (d *Document) Bytes() ([]byte, error) {
	if d.Image != nil {
		if err := d.Image.validate(); err != nil {
			return nil, err
		}
	}

	var b builder
	catalogRef := b.add(nil)
	pagesRef := b.add(nil)
	pageRef := b.add(nil)
	fontRef := b.add(Dict{"Type": Name("Font"), "Subtype": Name("Type1"), "BaseFont": Name("Helvetica")})
	contentRef := b.add(nil)

	info := Dict{}
	for k, v := range d.Info {
		info[Name(k)] = String(v)
	}
	infoRef := b.add(info)

	resources := Dict{"Font": Dict{Name(fontName): fontRef}}
	if d.Image != nil {
		imgRef := b.add(&Stream{
			Dict: Dict{
				"Type":             Name("XObject"),
				"Subtype":          Name("Image"),
				"Width":            d.Image.Width,
				"Height":           d.Image.Height,
				"ColorSpace":       Name("DeviceRGB"),
				"BitsPerComponent": 8,
			},
			Data: d.Image.RGB,
		})
		resources["XObject"] = Dict{Name(imageName): imgRef}
	}

	catalog := Dict{"Type": Name("Catalog"), "Pages": pagesRef}
	if len(d.Attachments) > 0 {
		names := Array{}
		for _, a := range d.Attachments {
			fileRef := b.add(&Stream{
				Dict: Dict{"Type": Name("EmbeddedFile"), "Params": Dict{"Size": len(a.Data)}},
				Data: a.Data,
			})
			specRef := b.add(Dict{
				"Type": Name("Filespec"),
				"F":    String(a.Name),
				"UF":   String(a.Name),
				"EF":   Dict{"F": fileRef},
			})
			names = append(names, String(a.Name), specRef)
		}
		treeRef := b.add(Dict{"Names": names})
		catalog["Names"] = Dict{"EmbeddedFiles": treeRef}
	}

	b.set(catalogRef, catalog)
	b.set(pagesRef, Dict{"Type": Name("Pages"), "Kids": Array{pageRef}, "Count": 1})
	b.set(pageRef, Dict{
		"Type":      Name("Page"),
		"Parent":    pagesRef,
		"MediaBox":  Array{0, 0, PageWidth, PageHeight},
		"Resources": resources,
		"Contents":  contentRef,
	})
	b.set(contentRef, &Stream{Dict: Dict{}, Data: d.content()})

	return b.serialize(catalogRef, infoRef)
}

// content builds the page content stream.
func (d *Document) content() []byte {
	var buf bytes.Buffer
	if d.Text != "" {
		// Helvetica averages about half an em per glyph.
		width := float64(len(d.Text)) * fontSize * 0.5
		x := (PageWidth - width) / 2
		if x < 0 {
			x = 0
		}
		fmt.Fprintf(&buf, "BT /%s %d Tf %s %s Td ", fontName, fontSize, ftoa(x), ftoa(PageHeight/2))
		writeString(&buf, []byte(d.Text))
		buf.WriteString(" Tj ET\n")
	}
	if d.Image != nil {
		r := d.ImageRect
		fmt.Fprintf(&buf, "q %s 0 0 %s %s %s cm /%s Do Q\n", ftoa(r.W), ftoa(r.H), ftoa(r.X), ftoa(r.Y), imageName)
	}
	return buf.Bytes()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (b *builder) serialize(root, info Ref) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(b.objs))
	for i, o := range b.objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		if s, ok := o.(*Stream); ok {
			dict := Dict{}
			for k, v := range s.Dict {
				dict[k] = v
			}
			dict["Length"] = len(s.Data)
			if err := writeObject(&buf, dict); err != nil {
				return nil, err
			}
			buf.WriteString("\nstream\n")
			buf.Write(s.Data)
			buf.WriteString("\nendstream")
		} else if err := writeObject(&buf, o); err != nil {
			return nil, err
		}
		buf.WriteString("\nendobj\n")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(b.objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	buf.WriteString("trailer\n")
	if err := writeObject(&buf, Dict{"Size": len(b.objs) + 1, "Root": root, "Info": info}); err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes(), nil
}
