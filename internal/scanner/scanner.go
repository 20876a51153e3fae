package scanner

import (
	"fmt"
	"path/filepath"
	"strings"
)

// VerdictKind is the closed classification of a scanned attachment.
type VerdictKind int

const (
	VerdictSafe VerdictKind = iota
	VerdictDangerous
)

func (k VerdictKind) String() string {
	if k == VerdictDangerous {
		return "dangerous"
	}
	return "safe"
}

// Verdict is the scan result: the classification plus a human-readable reason.
type Verdict struct {
	Kind   VerdictKind
	Reason string
}

// Descriptor is the attachment metadata the scanner inspects. Scanning is
// heuristic over filename/content-type; raw content access is not required.
type Descriptor struct {
	Filename    string
	ContentType string
	Size        int64
}

// Extension deny-list. The final extension decides, so "invoice.pdf.exe"
// is treated as an executable.
var dangerousExtensions = map[string]string{
	".exe": "executable file",
	".com": "executable file",
	".scr": "executable file",
	".pif": "executable file",
	".msi": "executable installer",
	".dll": "executable library",
	".bat": "script container",
	".cmd": "script container",
	".ps1": "script container",
	".sh":  "script container",
	".js":  "script container",
	".jse": "script container",
	".vbs": "script container",
	".vbe": "script container",
	".wsf": "script container",
	".hta": "script container",
	".jar": "executable java archive",
	".lnk": "shortcut to arbitrary command",
	".docm": "macro-enabled document",
	".xlsm": "macro-enabled document",
	".pptm": "macro-enabled document",
	".dotm": "macro-enabled document",
	".xltm": "macro-enabled document",
}

var dangerousContentTypes = map[string]string{
	"application/x-msdownload":     "executable content type",
	"application/x-dosexec":        "executable content type",
	"application/x-executable":     "executable content type",
	"application/x-msdos-program":  "executable content type",
	"application/java-archive":     "executable java archive",
	"application/x-sh":             "script container content type",
	"text/javascript":              "script container content type",
	"application/javascript":       "script container content type",
	"application/vnd.ms-word.document.macroenabled.12":        "macro-enabled document",
	"application/vnd.ms-excel.sheet.macroenabled.12":          "macro-enabled document",
	"application/vnd.ms-powerpoint.presentation.macroenabled.12": "macro-enabled document",
}

// Scanner classifies attachments against a closed deny-list. Scan is
// deterministic and performs no I/O, so repeated ingestion of the same
// message reproduces the same verdicts.
type Scanner struct{}

func New() *Scanner {
	return &Scanner{}
}

// Scan returns the verdict for one attachment descriptor. Descriptors the
// scanner cannot make sense of are dangerous (fail-closed), never an error.
func (s *Scanner) Scan(d Descriptor) Verdict {
	name := strings.TrimSpace(d.Filename)
	ctype := normalizeContentType(d.ContentType)

	if name == "" && ctype == "" {
		return Verdict{Kind: VerdictDangerous, Reason: "unrecognized attachment"}
	}

	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if why, ok := dangerousExtensions[ext]; ok {
			return Verdict{
				Kind:   VerdictDangerous,
				Reason: fmt.Sprintf("%s (%s)", why, ext),
			}
		}
	} else if name != "" && ctype == "" {
		// No extension and no declared type: nothing to classify on.
		return Verdict{Kind: VerdictDangerous, Reason: "unrecognized attachment"}
	}

	if why, ok := dangerousContentTypes[ctype]; ok {
		return Verdict{
			Kind:   VerdictDangerous,
			Reason: fmt.Sprintf("%s (%s)", why, ctype),
		}
	}

	return Verdict{Kind: VerdictSafe}
}

// normalizeContentType lowercases and strips any ";charset=..." style params.
func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
