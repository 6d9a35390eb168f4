// Package mime implements the magic-byte-sniff-then-extension-fallback
// MIME detection cascade described by the conversion pipeline.
package mime

import (
	"strings"

	"github.com/h2non/filetype"
)

// Confidence records how a MIME type was determined.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Method records which cascade step produced the result.
type Method string

const (
	MethodSniff    Method = "sniff"
	MethodSniffExt Method = "sniff+ext"
	MethodExt      Method = "ext"
	MethodDefault  Method = "default"
)

// Result is the outcome of Detect.
type Result struct {
	MIME       string
	Confidence Confidence
	Method     Method
}

const (
	mimePDF       = "application/pdf"
	mimeZip       = "application/zip"
	mimeDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePPTX      = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimeXLSX      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeOctetDflt = "application/octet-stream"
)

var extMIME = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".pdf":      mimePDF,
	".docx":     mimeDOCX,
	".pptx":     mimePPTX,
	".xlsx":     mimeXLSX,
	".zip":      mimeZip,
}

var ooxmlExtMIME = map[string]string{
	".docx": mimeDOCX,
	".pptx": mimePPTX,
	".xlsx": mimeXLSX,
}

// Detect runs the priority cascade documented in §4.4:
//  1. pure sniff (high confidence): %PDF- prefix, or zip magic with a
//     non-OOXML extension
//  2. sniff+ext (medium): zip magic with a .docx/.pptx/.xlsx extension
//  3. extension fallback (medium)
//  4. application/octet-stream (low)
func Detect(data []byte, ext string) Result {
	ext = strings.ToLower(ext)

	if isPDF(data) {
		return Result{MIME: mimePDF, Confidence: ConfidenceHigh, Method: MethodSniff}
	}

	if isZip(data) {
		if m, ok := ooxmlExtMIME[ext]; ok {
			return Result{MIME: m, Confidence: ConfidenceMedium, Method: MethodSniffExt}
		}
		return Result{MIME: mimeZip, Confidence: ConfidenceHigh, Method: MethodSniff}
	}

	if m, ok := extMIME[ext]; ok {
		return Result{MIME: m, Confidence: ConfidenceMedium, Method: MethodExt}
	}

	return Result{MIME: mimeOctetDflt, Confidence: ConfidenceLow, Method: MethodDefault}
}

func isPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

func isZip(data []byte) bool {
	kind, err := filetype.Match(data)
	if err == nil && kind.MIME.Value == mimeZip {
		return true
	}
	return len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 0x03 && data[3] == 0x04
}
