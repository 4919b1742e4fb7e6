package reporting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"orb-lab/internal/domain"
)

// Export writes the feature table, summary CSV and summary Markdown for [from, to]
// into dir and returns the written paths in that order.
func (g *Generator) Export(ctx context.Context, instrument string, from, to time.Time, dir string) ([]string, error) {
	rows, rep, err := g.load(ctx, instrument, from, to)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	stem := fmt.Sprintf("%s_%s_%s", instrument, from.Format(domain.DayLayout), to.Format(domain.DayLayout))
	files := []struct {
		name  string
		write func(w io.Writer) error
	}{
		{stem + "_features.csv", func(w io.Writer) error { return WriteFeatureCSV(w, rows) }},
		{stem + "_summary.csv", func(w io.Writer) error { return WriteSummaryCSV(w, rep) }},
		{stem + "_summary.md", func(w io.Writer) error {
			_, err := io.WriteString(w, RenderMarkdown(rep))
			return err
		}},
	}

	paths := make([]string, 0, len(files))
	for _, out := range files {
		path := filepath.Join(dir, out.name)
		if err := writeFile(path, out.write); err != nil {
			return paths, fmt.Errorf("write %s: %w", out.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ExportCandidateAudit writes the audit of candidate id to dir.
func (g *Generator) ExportCandidateAudit(ctx context.Context, id int64, dir string) (string, error) {
	audit, err := g.CandidateAudit(ctx, id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("candidate_%d.md", id))
	if err := os.WriteFile(path, []byte(audit), 0o644); err != nil {
		return "", fmt.Errorf("write candidate audit: %w", err)
	}
	return path, nil
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
