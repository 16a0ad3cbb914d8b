// Package export renders the acceptance register as CSV or XLSX.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"riskaccept/internal/acceptance/models"
)

// Headers is the fixed column order of every export.
var Headers = []string{
	"Reference",
	"Title",
	"Source",
	"Status",
	"Proposer",
	"Approver",
	"Linked Risk",
	"Residual Score",
	"Appetite",
	"Breach",
	"Linked Outcome",
	"Review Date",
	"Conditions",
	"Created",
	"Approved",
	"Expired",
}

// Row renders one view in Headers order.
func Row(v *models.View) []string {
	a := v.Acceptance
	score, appetite, breach := "", "", ""
	if a.RiskID != nil && a.Breach != nil {
		score = strconv.Itoa(a.Breach.Score)
		appetite = a.Breach.Appetite.Label()
		breach = BreachLabel(a.Breach)
	}
	approved := ""
	if a.Status == models.StatusApproved || a.Status == models.StatusExpired {
		approved = models.FormatDate(a.DecidedAt)
	}
	return []string{
		a.Reference,
		a.Title,
		a.Source.Label(),
		string(a.Status),
		v.ProposerName,
		v.ApproverName,
		v.RiskReference,
		score,
		appetite,
		breach,
		a.OutcomeName,
		models.FormatDate(a.ReviewDate),
		a.Conditions,
		models.FormatDate(&a.CreatedAt),
		approved,
		models.FormatDate(a.ExpiredAt),
	}
}

// BreachLabel renders "Yes (+N)" or "No".
func BreachLabel(b *models.BreachSnapshot) string {
	if b == nil {
		return ""
	}
	if b.Breached {
		return fmt.Sprintf("Yes (+%d)", b.Difference)
	}
	return "No"
}

// WriteCSV writes the header and one line per view, newline-terminated.
func WriteCSV(w io.Writer, views []*models.View) error {
	if _, err := io.WriteString(w, joinCSV(Headers)); err != nil {
		return err
	}
	for _, v := range views {
		if _, err := io.WriteString(w, joinCSV(Row(v))); err != nil {
			return err
		}
	}
	return nil
}

func joinCSV(fields []string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeCSV(f))
	}
	b.WriteByte('\n')
	return b.String()
}

// escapeCSV quotes a field only when it holds a comma, quote or line break.
func escapeCSV(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
