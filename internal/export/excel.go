// Package export writes score reports as Excel workbooks.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/okian/panelscore/internal/domain/model"
)

// Sheet names.
const (
	SubjectsSheet   = "Subjects"
	PanelsSheet     = "Panels"
	ExpertsSheet    = "Experts"
	CandidatesSheet = "Candidates"
)

// Source lists the entities that go into a report.
type Source interface {
	ListSubjects(ctx context.Context, ids []string) ([]model.Subject, error)
	ListExperts(ctx context.Context) ([]model.Expert, error)
	ListCandidates(ctx context.Context) ([]model.Candidate, error)
}

// Write builds the report from src and writes the workbook to w.
func Write(ctx context.Context, src Source, w io.Writer) error {
	f, err := build(ctx, src)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ToFile writes the report to path, adding the .xlsx extension when missing.
// It returns the path written.
func ToFile(ctx context.Context, src Source, path string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	path = filepath.Clean(path)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(ctx, src, out); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

func build(ctx context.Context, src Source) (*excelize.File, error) {
	subjects, err := src.ListSubjects(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	experts, err := src.ListExperts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list experts: %w", err)
	}
	candidates, err := src.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	names := make(map[string]string, len(experts))
	for _, e := range experts {
		names[e.ID] = e.Name
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SubjectsSheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	for _, name := range []string{PanelsSheet, ExpertsSheet, CandidatesSheet} {
		if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	sheets := []struct {
		name   string
		header []any
		rows   [][]any
		widths []float64
	}{
		{SubjectsSheet, []any{"ID", "Title", "Department", "Status", "Experts", "Candidates", "Version"}, subjectRows(subjects), []float64{38, 30, 18, 10, 10, 12, 10}},
		{PanelsSheet, []any{"Subject", "Rank", "Expert ID", "Expert", "Profile Score", "Relevancy Score"}, panelRows(subjects, names), []float64{30, 8, 38, 25, 15, 16}},
		{ExpertsSheet, []any{"ID", "Name", "Email", "Subjects", "Avg Profile", "Avg Relevancy"}, expertRows(experts), []float64{38, 25, 30, 10, 13, 15}},
		{CandidatesSheet, []any{"ID", "Name", "Email", "Subjects", "Avg Relevancy"}, candidateRows(candidates), []float64{38, 25, 30, 10, 15}},
	}
	for _, sh := range sheets {
		if err := writeSheet(f, sh.name, sh.header, sh.rows, sh.widths, header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sheet %s: %w", sh.name, err)
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any, widths []float64, headerStyle int) error {
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func subjectRows(subjects []model.Subject) [][]any {
	rows := make([][]any, 0, len(subjects))
	for _, s := range subjects {
		rows = append(rows, []any{s.ID, s.Title, s.Department, string(s.Status), len(s.Experts), len(s.Candidates), s.Version})
	}
	return rows
}

func panelRows(subjects []model.Subject, names map[string]string) [][]any {
	var rows [][]any
	for _, s := range subjects {
		for i, e := range s.RankedExperts() {
			rows = append(rows, []any{s.Title, i + 1, e.ExpertID, names[e.ExpertID], e.ProfileScore, e.RelevancyScore})
		}
	}
	return rows
}

func expertRows(experts []model.Expert) [][]any {
	rows := make([][]any, 0, len(experts))
	for _, e := range experts {
		rows = append(rows, []any{e.ID, e.Name, e.Email, len(e.Subjects), e.AverageProfileScore, e.AverageRelevancyScore})
	}
	return rows
}

func candidateRows(candidates []model.Candidate) [][]any {
	rows := make([][]any, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []any{c.ID, c.Name, c.Email, len(c.Subjects), c.AverageRelevancyScore})
	}
	return rows
}
