package stego

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestBuildDocument(t *testing.T) {
	doc := BuildDocument("PAYLOAD")
	want := "<data><length>123</length>" +
		"<header><doctype>image</doctype><encoding>b64</encoding></header>" +
		"<body><metadata></metadata><certificate>PAYLOAD</certificate></body></data>"

	header := "<header><doctype>image</doctype><encoding>b64</encoding></header>"
	body := "<body><metadata></metadata><certificate>PAYLOAD</certificate></body>"
	want = strings.Replace(want, "123", strconv.Itoa(len(header)+len(body)), 1)

	if doc != want {
		t.Errorf("BuildDocument() =\n%s\nwant\n%s", doc, want)
	}
}

func TestParseDocument(t *testing.T) {
	full := BuildDocument("abc")
	truncated := full[:strings.Index(full, EndMarker)+len(EndMarker)]

	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"full document", full, "abc", false},
		{"truncated after marker", truncated, "abc", false},
		{"bare certificate", "<certificate>x</certificate>", "x", false},
		{"no tag", "garbage", "", true},
		{"unterminated", "<certificate>abc", "", true},
		{"length mismatch", strings.Replace(full, "abc", "abcd", 1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDocument(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedDocument) {
					t.Errorf("ParseDocument() error = %v, want ErrMalformedDocument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDocument() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseDocument() = %q, want %q", got, tt.want)
			}
		})
	}
}
