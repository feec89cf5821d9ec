// Package statement reads multi-section broker statements.
//
// A statement multiplexes several tables in one delimited file. Every line starts with
// the section name and a row kind:
//
//	Trades,Header,DataDiscriminator,Asset Category,Currency,Symbol,...
//	Trades,Data,Order,Stocks,USD,AAPL,...
//	Trades,SubTotal,,Stocks,USD,AAPL,...
//
// Parse recovers the sections, Assemble turns them into accounts, positions and trades.
package statement

import (
	"bytes"
	"encoding/csv"
	"slices"
	"strings"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

var candidateDelimiters = []rune{',', '\t', ';'}

// DetectDelimiter returns whichever of comma, tab or semicolon occurs most often in line.
// Comma wins ties and lines without any candidate.
func DetectDelimiter(line string) rune {
	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// LooksLikeStatement reports whether line is the first line of a multi-section statement,
// i.e. its second cell is the Header marker.
func LooksLikeStatement(line string) bool {
	cells := splitCells(strings.TrimPrefix(line, "\ufeff"), DetectDelimiter(line))
	return len(cells) >= 2 && strings.TrimSpace(cells[0]) != "" && strings.TrimSpace(cells[1]) == model.RowKindHeader
}

// Parse splits a statement into its named sections. Empty input yields an empty map.
// Parsing never fails: a line that cannot be split cleanly is kept as a best-effort row
// of the section it appears in.
func Parse(data []byte) map[string]*model.RawSection {
	sections := make(map[string]*model.RawSection)

	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	lines := strings.Split(string(data), "\n")

	var (
		delim   rune
		current *model.RawSection
		// projections re-map cells of a section whose header was widened by a later header row.
		projections = make(map[string][]int)
	)

	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if delim == 0 {
			delim = DetectDelimiter(line)
		}

		cells := splitCells(line, delim)
		if len(cells) < 2 {
			// Stray text belongs to the section that surrounds it.
			if current != nil {
				current.Rows = append(current.Rows, model.RawRow{Cells: trimCells(cells)})
			}
			continue
		}

		name := strings.TrimSpace(cells[0])
		kind := strings.TrimSpace(cells[1])

		if name == "" && current != nil {
			current.Rows = append(current.Rows, model.RawRow{Kind: kind, Cells: trimCells(cells[2:])})
			continue
		}

		section, ok := sections[name]
		if !ok {
			section = &model.RawSection{Name: name}
			sections[name] = section
		}
		current = section

		if kind == model.RowKindHeader {
			header := trimCells(cells[2:])
			switch {
			case section.Header == nil:
				section.Header = header
			case !slices.Equal(section.Header, header):
				section.Header, projections[name] = mergeHeader(section.Header, header)
			default:
				delete(projections, name)
			}
			continue
		}

		row := trimCells(cells[2:])
		if proj, ok := projections[name]; ok {
			row = project(row, proj, len(section.Header))
		}
		section.Rows = append(section.Rows, model.RawRow{Kind: kind, Cells: row})
	}

	return sections
}

// splitCells splits one line, honouring quotes. Lines with broken quoting fall back
// to a plain split so they are never lost.
func splitCells(line string, delim rune) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	record, err := r.Read()
	if err != nil {
		return strings.Split(line, string(delim))
	}
	return record
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

// mergeHeader appends the columns of next missing from base and returns, for every
// column of next, its index in the merged header.
func mergeHeader(base, next []string) ([]string, []int) {
	merged := append([]string(nil), base...)
	index := make(map[string]int, len(merged))
	for i, h := range merged {
		if _, seen := index[h]; !seen {
			index[h] = i
		}
	}

	proj := make([]int, len(next))
	for i, h := range next {
		idx, ok := index[h]
		if !ok {
			idx = len(merged)
			merged = append(merged, h)
			index[h] = idx
		}
		proj[i] = idx
	}
	return merged, proj
}

func project(cells []string, proj []int, width int) []string {
	out := make([]string, width)
	for i, c := range cells {
		if i < len(proj) {
			out[proj[i]] = c
		}
	}
	return out
}
