package sniff

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		mediaType string
		want      Format
	}{
		{"text/plain", FormatText},
		{"text/plain; charset=utf-8", FormatText},
		{"TEXT/PLAIN", FormatText},
		{"text/markdown", FormatText},
		{"application/pdf", FormatPDF},
		{" application/pdf ", FormatPDF},
		{"application/epub+zip", FormatEPUB},
		{"application/msword", FormatUnsupported},
		{"image/png", FormatUnsupported},
		{"", FormatUnsupported},
		{"application/octet-stream", FormatUnsupported},
	}
	for _, tc := range cases {
		if got := Classify(tc.mediaType); got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.mediaType, got, tc.want)
		}
	}
}
