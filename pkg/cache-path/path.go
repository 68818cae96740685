package cachepath

import (
	"errors"
	"strings"
)

// archivePrefix is stripped from incoming URLs so that links pointing
// back into the archive resolve the same as direct ones.
const archivePrefix = "https://web.archive.org/web/"

// specialChars are stripped from every path segment before it is used
// as a filesystem name. Lossy on purpose; distinct URLs may collide.
const specialChars = ",;:%?&=+#@"

var ErrInvalidURL = errors.New("url must start with http:// or https://")

// Kind classifies a resolved path by its file extension.
type Kind string

const (
	KindHTML  Kind = "html"
	KindImage Kind = "image"
	KindCSS   Kind = "css"
	KindFile  Kind = "file"
)

var imageExts = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

// CachePath locates one resource inside a dated snapshot directory.
// All paths are relative to that directory and use forward slashes.
type CachePath struct {
	Dir      string
	FileName string
	FilePath string
	Kind     Kind
	Ext      string
}

// Resolve maps a URL, its raw query string and the negotiated content
// type to the canonical cache location. It is a pure function over its
// three inputs: identical inputs always yield an identical CachePath.
//
// The domain labels are marked (domain-, tld- for the last one) and
// reversed, so sibling domains end up as sibling directories. A
// leading www label is elided, mirroring the usual DNS aliasing.
// Query parameters become literal .key--value suffixes in the order
// received; equivalent query strings in different order therefore
// cache separately.
func Resolve(rawURL, query, accept string) (CachePath, error) {
	url := strings.TrimPrefix(rawURL, archivePrefix)
	url = strings.TrimPrefix(url, "/")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return CachePath{}, ErrInvalidURL
	}

	trimmed := strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://")
	endsWithSlash := strings.HasSuffix(trimmed, "/")
	chunks := strings.Split(trimmed, "/")
	domain := chunks[0]
	chunks = chunks[1:]

	if i := strings.IndexByte(domain, ':'); i >= 0 {
		domain = domain[:i]
	}
	labels := strings.Split(domain, ".")
	if len(labels) > 1 && labels[0] == "www" {
		labels = labels[1:]
	}
	for i, label := range labels {
		labels[i] = "domain-" + label
	}
	labels[len(labels)-1] = "tld-" + strings.TrimPrefix(labels[len(labels)-1], "domain-")
	reverse(labels)

	parts := make([]string, 0, len(labels)+len(chunks))
	for _, part := range append(labels, chunks...) {
		part = stripSpecial(part)
		if part == "" {
			continue
		}
		parts = append(parts, part)
	}
	filePath := strings.Join(parts, "/")

	// a directory-like path gets an index file; a path without any
	// file extension gets one too (html) or a synthesized extension
	if endsWithSlash {
		filePath += "/" + indexName(accept)
	} else if strings.Count(filePath, ".") == 0 {
		if accept == "text/html" {
			filePath += "/index.html"
		} else {
			filePath += "." + subtypeOf(accept)
		}
	}

	var dir, fileName string
	if i := strings.LastIndexByte(filePath, '/'); i >= 0 {
		dir, fileName = filePath[:i], filePath[i+1:]
	} else {
		fileName = filePath
	}
	ext := fileName[strings.LastIndexByte(fileName, '.')+1:]

	kind := KindFile
	switch {
	case ext == "html" || ext == "php":
		kind = KindHTML
	case imageExts[ext]:
		kind = KindImage
	case ext == "css":
		kind = KindCSS
	}

	// distinct query strings map to distinct cache files
	for _, param := range strings.Split(query, "&") {
		if param == "" {
			continue
		}
		param = strings.ReplaceAll(param, "=", "--")
		fileName += "." + param
		filePath += "." + param
	}

	return CachePath{
		Dir:      dir,
		FileName: fileName,
		FilePath: filePath,
		Kind:     kind,
		Ext:      ext,
	}, nil
}

func indexName(accept string) string {
	if accept == "text/html" {
		return "index.html"
	}
	return "index." + subtypeOf(accept)
}

func subtypeOf(accept string) string {
	if _, subtype, found := strings.Cut(accept, "/"); found {
		return subtype
	}
	return accept
}

func stripSpecial(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(specialChars, r) {
			return -1
		}
		return r
	}, s)
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
