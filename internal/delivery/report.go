// Package delivery renders result reports and sends them to students.
package delivery

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/smquiz/quiz-backend/internal/model"
)

// FileName is the attachment name for a subject's report.
func FileName(subjectName string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(subjectName))
	if name == "" {
		name = "Quiz"
	}
	return name + "_Result.pdf"
}

// RenderReport draws the result summary and the per-question review of a
// submission as a PDF document.
func RenderReport(job model.DeliveryJob) ([]byte, error) {
	sub := job.Submission
	res := sub.Result

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(sub.SubjectName+" Result", true)
	pdf.SetAuthor("smquiz", true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(sub.SubjectName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Candidate: %s <%s>", sub.UserName, sub.Email)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Submitted: %s (%s)", sub.SubmittedAt.UTC().Format(time.RFC1123), triggerLabel(sub.Trigger)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	verdict, r, g, b := "FAIL", 200, 40, 40
	if res.Pass {
		verdict, r, g, b = "PASS", 30, 140, 60
	}
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(r, g, b)
	pdf.CellFormat(0, 8, fmt.Sprintf("%s  %.2f%%", verdict, res.Percentage), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(2)

	rows := [][2]string{
		{"Score", fmt.Sprintf("%.2f / %.2f", res.Score, res.MaxScore)},
		{"Questions", fmt.Sprintf("%d", res.Total)},
		{"Attempted", fmt.Sprintf("%d", res.Attempted)},
		{"Correct", fmt.Sprintf("%d", res.Correct)},
		{"Wrong", fmt.Sprintf("%d", res.Wrong)},
		{"Unattempted", fmt.Sprintf("%d", res.Unattempted)},
		{"Time taken", formatDuration(res.TimeTakenSeconds)},
		{"Warnings", fmt.Sprintf("%d", sub.Violations)},
	}
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetFillColor(240, 240, 240)
	for i, row := range rows {
		fill := i%2 == 0
		pdf.CellFormat(50, 7, row[0], "1", 0, "L", fill, 0, "")
		pdf.CellFormat(60, 7, row[1], "1", 1, "L", fill, 0, "")
	}

	if len(job.Items) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 8, "Review", "", 1, "L", false, 0, "")
		for _, item := range job.Items {
			writeItem(pdf, tr, item)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeItem(pdf *fpdf.Fpdf, tr func(string) string, item model.ReviewItem) {
	q := item.Question
	pdf.SetFont("Helvetica", "B", 11)
	pdf.MultiCell(0, 6, tr(fmt.Sprintf("%d. %s", item.Index+1, q.Title)), "", "L", false)

	if q.Code != nil && q.Code.Content != "" {
		pdf.SetFont("Courier", "", 9)
		pdf.SetFillColor(245, 245, 245)
		pdf.MultiCell(0, 5, tr(q.Code.Content), "1", "L", true)
	}

	pdf.SetFont("Helvetica", "", 10)
	for i, opt := range q.Options {
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("   %c) %s", 'A'+i, opt)), "", "L", false)
	}

	switch item.Status {
	case model.ReviewCorrect:
		pdf.SetTextColor(30, 140, 60)
	case model.ReviewWrong:
		pdf.SetTextColor(200, 40, 40)
	default:
		pdf.SetTextColor(110, 110, 110)
	}
	line := fmt.Sprintf("Your answer: %s    Correct answer: %s    (%s)",
		answerLabel(item.Selected), answerLabel(item.Correct), item.Status)
	pdf.MultiCell(0, 6, line, "", "L", false)
	pdf.SetTextColor(0, 0, 0)

	if item.Explanation != "" {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr(item.Explanation), "", "L", false)
	}
	pdf.Ln(2)
}

func answerLabel(v *model.AnswerValue) string {
	switch {
	case v == nil:
		return "-"
	case v.Option != nil:
		return string(rune('A' + *v.Option))
	case v.Value != nil:
		return fmt.Sprintf("%d", *v.Value)
	}
	return "-"
}

func triggerLabel(t model.Trigger) string {
	switch t {
	case model.TriggerTimeout:
		return "time expired"
	case model.TriggerViolationLimit:
		return "ended after repeated warnings"
	}
	return "submitted"
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%dm %02ds", seconds/60, seconds%60)
}
