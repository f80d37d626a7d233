package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"saged/internal/benchmark"
	"saged/internal/logging"
)

// FileProvider reads sentences from local files. Prepared .jsonl records
// are trusted verbatim; .txt, .md and .html documents go through
// sentence extraction with the configured word floor.
type FileProvider struct {
	paths        []string
	minWords     int
	maxSentences int
}

// NewFileProvider returns a provider over the given paths, read in
// config order. maxSentences caps the aggregate result (0 keeps all).
func NewFileProvider(paths []string, minWords, maxSentences int) *FileProvider {
	return &FileProvider{paths: paths, minWords: minWords, maxSentences: maxSentences}
}

// Sentences collects records from every readable path. An unreadable
// file is logged and skipped so one bad path does not sink the concept;
// only when no path could be read at all does the provider fail.
func (p *FileProvider) Sentences(ctx context.Context, concept string, keywords []string) ([]benchmark.SentenceRecord, error) {
	timer := logging.StartTimer(logging.CategorySource, "collect sentences")
	defer timer.Stop()

	var records []benchmark.SentenceRecord
	readable := 0
	for _, path := range p.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileRecords, err := p.readFile(path, concept, keywords)
		if err != nil {
			logging.Get(logging.CategorySource).Warn("Skipping unreadable source %s: %v", path, err)
			continue
		}
		readable++
		logging.SourceDebug("Read %d sentences from %s", len(fileRecords), path)
		records = append(records, fileRecords...)
		if p.maxSentences > 0 && len(records) >= p.maxSentences {
			records = records[:p.maxSentences]
			logging.Source("Sentence cap reached for %s, keeping %d", concept, p.maxSentences)
			break
		}
	}

	if readable == 0 && len(p.paths) > 0 {
		return nil, fmt.Errorf("no readable source among %d configured paths", len(p.paths))
	}

	logging.Source("Collected %d sentences for %s from %d files", len(records), concept, readable)
	return records, nil
}

func (p *FileProvider) readFile(path, concept string, keywords []string) ([]benchmark.SentenceRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return p.readPrepared(path, concept)
	case ".html", ".htm":
		return p.readDocument(path, concept, keywords, true)
	default:
		// .txt, .md and anything else that reads as plain text.
		return p.readDocument(path, concept, keywords, false)
	}
}

// preparedRecord is one line of a prepared .jsonl sentence file.
type preparedRecord struct {
	Text      string `json:"text"`
	SourceTag string `json:"source_tag,omitempty"`
	Position  *int   `json:"position,omitempty"`
}

// readPrepared loads sentence records that were extracted elsewhere.
// The source tag defaults to the file path and the position to the
// record's order in the file.
func (p *FileProvider) readPrepared(path, concept string) ([]benchmark.SentenceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []benchmark.SentenceRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec preparedRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		text := strings.TrimSpace(rec.Text)
		if text == "" {
			continue
		}
		tag := rec.SourceTag
		if tag == "" {
			tag = path
		}
		position := len(records)
		if rec.Position != nil {
			position = *rec.Position
		}
		records = append(records, benchmark.SentenceRecord{
			Concept:   concept,
			SourceTag: tag,
			Text:      text,
			Position:  position,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (p *FileProvider) readDocument(path, concept string, keywords []string, isHTML bool) ([]benchmark.SentenceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := string(data)
	if isHTML {
		text, err = extractHTMLText(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
	}
	sentences := ExtractSentences(text, keywords, p.minWords)
	records := make([]benchmark.SentenceRecord, 0, len(sentences))
	for i, s := range sentences {
		records = append(records, benchmark.SentenceRecord{
			Concept:   concept,
			SourceTag: path,
			Text:      s,
			Position:  i,
		})
	}
	return records, nil
}

// extractHTMLText gathers the prose of a document: the text of <p>,
// <caption> and <figcaption> elements, which is where encyclopedia-style
// pages keep their sentences. Script and style bodies are dropped.
func extractHTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var blocks []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "p", "caption", "figcaption":
				var sb strings.Builder
				collectText(n, &sb)
				if txt := strings.Join(strings.Fields(sb.String()), " "); txt != "" {
					blocks = append(blocks, txt)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(blocks, "\n"), nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
