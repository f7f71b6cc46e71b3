package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// EPUB structural failure kinds. The ingestion flow recovers all of them
// into PendingPlaceholder; they never surface to end users.
var (
	// ErrMalformedContainer indicates the blob is not a zip archive or
	// lacks META-INF/container.xml.
	ErrMalformedContainer = errors.New("epub: malformed container")
	// ErrPackageNotFound indicates the OPF package document is missing.
	ErrPackageNotFound = errors.New("epub: package document not found")
	// ErrEmptyManifestOrSpine indicates the package has no readable items.
	ErrEmptyManifestOrSpine = errors.New("epub: empty manifest or spine")
)

const containerPath = "META-INF/container.xml"

// epubContainer maps container.xml. The full-path attribute appears in the
// wild under two spellings; both are accepted.
type epubContainer struct {
	Rootfiles []struct {
		FullPath    string `xml:"full-path,attr"`
		FullPathAlt string `xml:"fullpath,attr"`
	} `xml:"rootfiles>rootfile"`
}

// epubPackage maps the OPF package document's manifest and spine.
type epubPackage struct {
	Manifest struct {
		Items []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemrefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// extractEPUB walks an EPUB archive: container.xml names the OPF package,
// the OPF lists the manifest and reading order (spine), and each markup
// spine item contributes its stripped text in order.
func extractEPUB(raw []byte) (string, error) {
	archive, errZip := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if errZip != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedContainer, errZip)
	}

	entries := make(map[string]*zip.File, len(archive.File))
	for _, file := range archive.File {
		entries[file.Name] = file
	}

	containerRaw, errContainer := readEntry(entries, containerPath)
	if errContainer != nil {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedContainer, containerPath)
	}

	var container epubContainer
	if errDecode := xml.Unmarshal(containerRaw, &container); errDecode != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedContainer, errDecode)
	}

	opfPath := ""
	for _, rootfile := range container.Rootfiles {
		if rootfile.FullPath != "" {
			opfPath = rootfile.FullPath
			break
		}
		if rootfile.FullPathAlt != "" {
			opfPath = rootfile.FullPathAlt
			break
		}
	}
	if opfPath == "" {
		return "", fmt.Errorf("%w: no rootfile path", ErrPackageNotFound)
	}

	opfRaw, errOPF := readEntry(entries, opfPath)
	if errOPF != nil {
		return "", fmt.Errorf("%w: %s", ErrPackageNotFound, opfPath)
	}

	var pkg epubPackage
	if errDecode := xml.Unmarshal(opfRaw, &pkg); errDecode != nil {
		return "", fmt.Errorf("%w: %v", ErrPackageNotFound, errDecode)
	}
	if len(pkg.Manifest.Items) == 0 || len(pkg.Spine.Itemrefs) == 0 {
		return "", ErrEmptyManifestOrSpine
	}

	type manifestItem struct {
		href      string
		mediaType string
	}
	manifest := make(map[string]manifestItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		if item.ID == "" {
			continue
		}
		manifest[item.ID] = manifestItem{href: item.Href, mediaType: item.MediaType}
	}

	opfDir := path.Dir(opfPath)
	var sections []string
	for _, ref := range pkg.Spine.Itemrefs {
		item, ok := manifest[ref.IDRef]
		if !ok {
			// Dangling spine reference; skip, not fatal.
			continue
		}
		if !isMarkupMediaType(item.mediaType) {
			continue
		}

		sectionRaw, errSection := readEntry(entries, resolveHref(opfDir, item.href))
		if errSection != nil {
			continue
		}
		if text := stripMarkup(string(sectionRaw)); text != "" {
			sections = append(sections, text)
		}
	}

	return strings.Join(sections, "\n\n"), nil
}

// isMarkupMediaType reports whether a manifest media type is in the
// XHTML/XML/HTML family the spine walk reads as text.
func isMarkupMediaType(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case strings.Contains(mt, "xhtml"), strings.Contains(mt, "html"):
		return true
	case mt == "application/xml", mt == "text/xml":
		return true
	default:
		return false
	}
}

// resolveHref joins a manifest href against the OPF directory. A leading
// slash means relative to the archive root, and ./.. segments are honored.
func resolveHref(opfDir, href string) string {
	if idx := strings.Index(href, "#"); idx >= 0 {
		href = href[:idx]
	}
	if strings.HasPrefix(href, "/") {
		return strings.TrimPrefix(path.Clean(href), "/")
	}
	if opfDir == "." || opfDir == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(opfDir, href))
}

// readEntry reads a named archive entry fully.
func readEntry(entries map[string]*zip.File, name string) ([]byte, error) {
	file, ok := entries[name]
	if !ok {
		return nil, fmt.Errorf("entry %s not found", name)
	}
	rc, errOpen := file.Open()
	if errOpen != nil {
		return nil, errOpen
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
