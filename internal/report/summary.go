package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/fedigraph/fedigraph/internal/crawler"
)

// SummaryFileName is the file written into the run directory.
const SummaryFileName = "summary.md"

// maxErrorRows bounds the failure table; the long tail of one-off errors
// belongs in the log, not the summary.
const maxErrorRows = 10

// timeRounding keeps durations readable in the summary table.
const timeRounding = time.Second

// SummaryWriter renders one run's statistics as Markdown.
type SummaryWriter struct {
	output io.Writer
}

// NewSummaryWriter creates a SummaryWriter that renders to output.
func NewSummaryWriter(output io.Writer) *SummaryWriter {
	return &SummaryWriter{output: output}
}

// Write renders the full summary.
func (w *SummaryWriter) Write(stats *crawler.Stats) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Software", stats.Software},
			{"Subject", stats.Subject},
			{"Started", stats.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", stats.Elapsed.Round(timeRounding).String()},
			{"Run directory", "`" + filepath.Base(stats.RunDir) + "`"},
		},
	})
	md.PlainText("")

	w.writeNodes(md, stats)
	w.writeEdges(md, stats)
	w.writeErrors(md, stats)

	return md.Build()
}

func (w *SummaryWriter) writeNodes(md *markdown.Markdown, stats *crawler.Stats) {
	md.H2("Nodes")
	md.PlainText("")

	total := stats.Succeeded + stats.Failed
	rate := "n/a"
	if total > 0 {
		rate = fmt.Sprintf("%.1f%%", 100*float64(stats.Succeeded)/float64(total))
	}

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Seed hosts", strconv.Itoa(stats.Seeds)},
			{"Excluded by robots.txt", strconv.Itoa(stats.Vetoed)},
			{"Crawled successfully", strconv.Itoa(stats.Succeeded)},
			{"Failed", strconv.Itoa(stats.Failed)},
			{"Success rate", rate},
		},
	})
	md.PlainText("")
}

func (w *SummaryWriter) writeEdges(md *markdown.Markdown, stats *crawler.Stats) {
	if len(stats.KeptEdges) == 0 {
		return
	}
	md.H2("Edges")
	md.PlainText("")

	datasets := make([]string, 0, len(stats.KeptEdges))
	for name := range stats.KeptEdges {
		datasets = append(datasets, name)
	}
	sort.Strings(datasets)

	rows := make([][]string, 0, len(datasets))
	for _, name := range datasets {
		rows = append(rows, []string{"`" + name + ".csv`", strconv.Itoa(stats.KeptEdges[name])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Dataset", "Edges kept"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *SummaryWriter) writeErrors(md *markdown.Markdown, stats *crawler.Stats) {
	if len(stats.Errors) == 0 {
		return
	}
	md.H2("Most Frequent Errors")
	md.PlainText("")

	type errorCount struct {
		message string
		count   int
	}
	counts := make([]errorCount, 0, len(stats.Errors))
	for message, count := range stats.Errors {
		counts = append(counts, errorCount{message, count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].message < counts[j].message
	})
	if len(counts) > maxErrorRows {
		counts = counts[:maxErrorRows]
	}

	rows := make([][]string, 0, len(counts))
	for _, ec := range counts {
		rows = append(rows, []string{ec.message, strconv.Itoa(ec.count)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Error", "Hosts"},
		Rows:   rows,
	})
	md.PlainText("")
}

// WriteSummaryFile renders the summary into the run directory.
func WriteSummaryFile(stats *crawler.Stats) (string, error) {
	path := filepath.Join(stats.RunDir, SummaryFileName)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := NewSummaryWriter(file).Write(stats); err != nil {
		return "", fmt.Errorf("failed to render summary: %w", err)
	}
	return path, nil
}
