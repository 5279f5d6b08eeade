package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"listing-classifier/models"
	"listing-classifier/utils"
)

type ReportService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewReportService(logger *utils.Logger, out io.Writer) *ReportService {
	return &ReportService{logger: logger, out: out}
}

// Print renders the run summary and one table row per evaluated model.
func (s *ReportService) Print(r *models.RunReport) {
	sep := strings.Repeat("═", 72)
	thin := strings.Repeat("─", 72)

	fmt.Fprintf(s.out, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(s.out, "\033[1;35m  LISTING CATEGORISATION RESULTS\033[0m\n")
	fmt.Fprintf(s.out, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(s.out, "\033[1;33m  Dataset\033[0m\n")
	fmt.Fprintf(s.out, "  %s\n", thin)
	fmt.Fprintf(s.out, "  Run                 : %s\n", r.RunID)
	fmt.Fprintf(s.out, "  Input               : %s\n", r.InputPath)
	fmt.Fprintf(s.out, "  Labelled listings   : \033[1m%d\033[0m (dropped %d without category)\n", r.LoadedRows-r.DroppedRows, r.DroppedRows)
	fmt.Fprintf(s.out, "  Train / test        : \033[1m%d\033[0m / \033[1m%d\033[0m\n", r.TrainRows, r.TestRows)
	fmt.Fprintf(s.out, "  Title vocabulary    : %d terms\n", r.Vocabulary)
	fmt.Fprintf(s.out, "  Room indicators     : %s\n", strings.Join(r.RoomColumns, ", "))
	if r.UnseenRooms > 0 {
		fmt.Fprintf(s.out, "  Unseen test rooms   : \033[1;31m%d\033[0m (encoded as all-zero)\n", r.UnseenRooms)
	}
	fmt.Fprintln(s.out)

	s.printModels(r.Results)
	fmt.Fprintf(s.out, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// PrintRun renders the model table of a previously stored run.
func (s *ReportService) PrintRun(runID string, results []models.ModelResult) {
	if len(results) == 0 {
		s.logger.Warn("[report] No stored results for run %s", runID)
		return
	}
	fmt.Fprintf(s.out, "\n\033[1;35m  STORED RUN %s\033[0m\n\n", runID)
	s.printModels(results)
	fmt.Fprintln(s.out)
}

func (s *ReportService) printModels(results []models.ModelResult) {
	fmt.Fprintf(s.out, "\033[1;33m  Models\033[0m\n")
	t := table.NewWriter()
	t.SetOutputMirror(s.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Model", "Classes", "Features", "Accuracy", "OOB", "CV (±2σ)", "Status"})
	for _, m := range results {
		status := "ok"
		if m.Err != nil {
			status = truncate(m.Err.Error(), 40)
		}
		t.AppendRow(table.Row{
			m.Name,
			m.Labels,
			m.Features,
			metric(m.Scored, m.Accuracy),
			metric(m.HasOOB, m.OOBScore),
			cvCell(m),
			status,
		})
	}
	t.Render()
}

// PrintImportances renders a feature ranking.
func (s *ReportService) PrintImportances(ranks []models.FeatureRank) {
	fmt.Fprintf(s.out, "\n\033[1;33m  Feature ranking\033[0m\n")
	t := table.NewWriter()
	t.SetOutputMirror(s.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Feature", "Importance", "Std"})
	for _, r := range ranks {
		t.AppendRow(table.Row{r.Rank, r.Feature, fmt.Sprintf("%f", r.Importance), fmt.Sprintf("%f", r.Std)})
	}
	t.Render()
}

func metric(ok bool, v float64) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%0.2f", v)
}

func cvCell(m models.ModelResult) string {
	if !m.HasCV {
		return "-"
	}
	return fmt.Sprintf("%0.2f (+/- %0.2f)", m.CVMean, 2*m.CVStd)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
