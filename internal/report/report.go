// Package report renders alignment results and batch reports as terminal
// tables, tab-separated text, or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/batch"
)

// Format selects the output encoding.
type Format string

const (
	// FormatTable draws rounded box tables for interactive terminals.
	FormatTable Format = "table"
	// FormatPlain writes tab-separated rows for pipes and scripts.
	FormatPlain Format = "plain"
	// FormatJSON writes indented JSON.
	FormatJSON Format = "json"
)

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool {
	switch f {
	case FormatTable, FormatPlain, FormatJSON:
		return true
	}
	return false
}

// DefaultFormat picks [FormatTable] when w is a terminal and [FormatPlain]
// otherwise.
func DefaultFormat(w io.Writer) Format {
	if IsTerminal(w) {
		return FormatTable
	}
	return FormatPlain
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Edge is the JSON form of a slot alternative.
type Edge struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// Step is the JSON form of one aligned column. Slot and Word are null for
// gaps.
type Step struct {
	Op           string  `json:"op"`
	Slot         *int    `json:"slot"`
	Word         *int    `json:"word"`
	Alternatives []Edge  `json:"alternatives,omitempty"`
	Token        string  `json:"token,omitempty"`
	Cost         float64 `json:"cost"`
}

// Summary is the JSON form of [align.Summary] with derived rates.
type Summary struct {
	Words           int     `json:"words"`
	Correct         int     `json:"correct"`
	Substitutions   int     `json:"substitutions"`
	OracleHits      int     `json:"oracle_hits"`
	Deletions       int     `json:"deletions"`
	Insertions      int     `json:"insertions"`
	Skipped         int     `json:"skipped"`
	ErrorRate       float64 `json:"error_rate"`
	OracleErrorRate float64 `json:"oracle_error_rate"`
}

// Alignment is the JSON form of one [align.Result].
type Alignment struct {
	ID         string  `json:"id,omitempty"`
	Cost       float64 `json:"cost"`
	Steps      []Step  `json:"steps"`
	Hypothesis string  `json:"hypothesis"`
	Reference  string  `json:"reference"`
	Summary    Summary `json:"summary"`
}

// Batch is the JSON form of a [batch.Report].
type Batch struct {
	RunID      string      `json:"run_id"`
	Strategy   string      `json:"strategy"`
	Started    time.Time   `json:"started"`
	DurationMS int64       `json:"duration_ms"`
	Items      []Alignment `json:"items"`
	Total      Summary     `json:"total"`
}

// NewSummary converts s.
func NewSummary(s align.Summary) Summary {
	return Summary{
		Words:           s.Words,
		Correct:         s.Correct,
		Substitutions:   s.Substitutions,
		OracleHits:      s.OracleHits,
		Deletions:       s.Deletions,
		Insertions:      s.Insertions,
		Skipped:         s.Skipped,
		ErrorRate:       s.ErrorRate(),
		OracleErrorRate: s.OracleErrorRate(),
	}
}

// NewAlignment converts res, rendering gaps in the sentences as gap.
func NewAlignment(id string, res *align.Result, sum align.Summary, gap string) Alignment {
	steps := make([]Step, res.Len())
	for k, st := range res.Steps {
		s := Step{Op: st.Op.String(), Cost: st.Cost}
		if slot, ok := res.SlotAt(k); ok {
			idx := st.Slot
			s.Slot = &idx
			for _, e := range slot.Edges() {
				s.Alternatives = append(s.Alternatives, Edge{Word: e.Word, Weight: e.Weight})
			}
		}
		if w, ok := res.WordAt(k); ok {
			idx := st.Word
			s.Word = &idx
			s.Token = w
		}
		steps[k] = s
	}
	return Alignment{
		ID:         id,
		Cost:       res.Cost,
		Steps:      steps,
		Hypothesis: res.Hypothesis(gap),
		Reference:  res.Reference(gap),
		Summary:    NewSummary(sum),
	}
}

// NewBatch converts rep.
func NewBatch(rep *batch.Report, gap string) Batch {
	items := make([]Alignment, len(rep.Items))
	for i, it := range rep.Items {
		items[i] = NewAlignment(it.ID, it.Result, it.Summary, gap)
	}
	return Batch{
		RunID:      rep.RunID,
		Strategy:   rep.Strategy,
		Started:    rep.Started,
		DurationMS: rep.Duration.Milliseconds(),
		Items:      items,
		Total:      NewSummary(rep.Total),
	}
}

// WriteAlignment writes res to w in format f.
func WriteAlignment(w io.Writer, res *align.Result, sum align.Summary, f Format, gap string) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, NewAlignment("", res, sum, gap))
	case FormatTable, FormatPlain:
		if err := writeString(w, render(f, stepsTable(res, gap))); err != nil {
			return err
		}
		return writeString(w, render(f, summaryTable([]string{"total"}, []align.Summary{sum})))
	}
	return fmt.Errorf("report: unknown format %q", f)
}

// WriteBatch writes one row per utterance followed by the corpus total.
func WriteBatch(w io.Writer, rep *batch.Report, f Format, gap string) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, NewBatch(rep, gap))
	case FormatTable, FormatPlain:
		labels := make([]string, 0, len(rep.Items)+1)
		sums := make([]align.Summary, 0, len(rep.Items)+1)
		for _, it := range rep.Items {
			labels = append(labels, it.ID)
			sums = append(sums, it.Summary)
		}
		tw := summaryTable(labels, sums)
		tw.AppendFooter(summaryRow("total", rep.Total))
		tw.SetCaption("run %s, strategy %s, %s", rep.RunID, rep.Strategy, rep.Duration.Round(time.Millisecond))
		return writeString(w, render(f, tw))
	}
	return fmt.Errorf("report: unknown format %q", f)
}

func stepsTable(res *align.Result, gap string) table.Writer {
	tw := newTable(table.Row{"#", "slot", "alternatives", "word", "op", "cost"})
	for k, st := range res.Steps {
		slotIdx, alts := gap, gap
		if slot, ok := res.SlotAt(k); ok {
			slotIdx = strconv.Itoa(st.Slot)
			parts := make([]string, slot.Len())
			for i := range slot.Len() {
				parts[i] = slot.At(i).String()
			}
			alts = strings.Join(parts, ", ")
		}
		word := gap
		if w, ok := res.WordAt(k); ok {
			word = w
		}
		tw.AppendRow(table.Row{k + 1, slotIdx, alts, word, st.Op.String(), formatCost(st.Cost)})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "total", formatCost(res.Cost)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return tw
}

func summaryTable(labels []string, sums []align.Summary) table.Writer {
	tw := newTable(table.Row{"utterance", "words", "cor", "sub", "del", "ins", "skip", "oracle", "wer", "oracle wer"})
	for i, s := range sums {
		tw.AppendRow(summaryRow(labels[i], s))
	}
	configs := make([]table.ColumnConfig, 0, 9)
	for n := 2; n <= 10; n++ {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

func summaryRow(label string, s align.Summary) table.Row {
	return table.Row{
		label, s.Words, s.Correct, s.Substitutions, s.Deletions, s.Insertions, s.Skipped, s.OracleHits,
		formatRate(s.ErrorRate()), formatRate(s.OracleErrorRate()),
	}
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	return tw
}

func render(f Format, tw table.Writer) string {
	if f == FormatPlain {
		return tw.RenderTSV() + "\n"
	}
	return tw.Render() + "\n"
}

func formatCost(c float64) string { return strconv.FormatFloat(c, 'f', 4, 64) }

func formatRate(r float64) string { return strconv.FormatFloat(100*r, 'f', 2, 64) + "%" }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}
