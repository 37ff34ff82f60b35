// Package extract converts uploaded documents into plain-text artifacts ready
// for indexing.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	botel "github.com/DawoodTahir/MCP-Chatbot/internal/otel"
)

var tracer = botel.Tracer("github.com/DawoodTahir/MCP-Chatbot/internal/extract")

// Extractor extracts text content from various file formats.
type Extractor struct {
	maxSize int64 // Max file size in bytes
}

// NewExtractor creates a file content extractor with a size limit.
func NewExtractor(maxSizeMB int) *Extractor {
	return &Extractor{
		maxSize: int64(maxSizeMB) * 1024 * 1024,
	}
}

// Extract reads and extracts text from a file.
// Supported formats: .txt, .md, .csv, .html/.htm, .pdf, .docx/.doc.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	_, span := tracer.Start(ctx, "extract.extract")
	defer span.End()

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.Size() > e.maxSize {
		return "", fmt.Errorf("file size %d exceeds limit %d bytes", info.Size(), e.maxSize)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md", ".csv":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading file %s: %w", path, err)
		}
		return string(content), nil

	case ".html", ".htm":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading file %s: %w", path, err)
		}
		p := bluemonday.StrictPolicy()
		return p.Sanitize(string(content)), nil

	case ".pdf":
		return extractPDF(ctx, path)

	case ".docx", ".doc":
		return extractDOCX(path)

	default:
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}
}

// ExtractToText converts markup and binary document formats into a sibling
// <name>.txt artifact and returns its path. Every other extension is treated
// as already-indexable text and returned unchanged.
func (e *Extractor) ExtractToText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".pdf", ".docx", ".doc":
	default:
		return path, nil
	}

	text, err := e.Extract(ctx, path)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	outPath := base + ".txt"
	if err := os.WriteFile(outPath, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("writing text artifact: %w", err)
	}
	return outPath, nil
}

// extractPDF shells out to pdftotext, which must be on PATH.
func extractPDF(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext %s: %w", path, err)
	}
	return out.String(), nil
}

// docx word/document.xml payload. Paragraph boundaries become newlines; all
// other markup is dropped.
type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []string `xml:"t"`
	} `xml:"r"`
}

// extractDOCX reads the document body out of the zip container.
func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening docx %s: %w", path, err)
	}
	defer zr.Close()

	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return "", fmt.Errorf("opening docx body: %w", err)
			}
			docXML, err = io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				return "", fmt.Errorf("reading docx body: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return "", fmt.Errorf("docx %s has no document body", path)
	}

	var doc docxDocument
	if err := xml.Unmarshal(docXML, &doc); err != nil {
		return "", fmt.Errorf("parsing docx body: %w", err)
	}

	var sb strings.Builder
	for _, p := range doc.Body.Paragraphs {
		for _, r := range p.Runs {
			for _, t := range r.Text {
				sb.WriteString(t)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
