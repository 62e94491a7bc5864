package intake

// ReportColumns names the cells of a report row, in order.
var ReportColumns = []string{"date", "asset", "issue", "amount", "payer", "reporter", "artifact_link", "notes"}

// ReportRecord is one committed report. It is never modified after append.
type ReportRecord struct {
	Date         string `json:"date"`
	Asset        string `json:"asset"`
	Issue        string `json:"issue"`
	Amount       string `json:"amount"`
	Payer        string `json:"payer"`
	Reporter     string `json:"reporter"`
	ArtifactLink string `json:"artifactLink"`
	Notes        string `json:"notes"`
}

func (r ReportRecord) Row() []string {
	return []string{r.Date, r.Asset, r.Issue, r.Amount, r.Payer, r.Reporter, r.ArtifactLink, r.Notes}
}

// RecordFromRow is the inverse of Row. It reports false when row does not
// have exactly one cell per column.
func RecordFromRow(row []string) (ReportRecord, bool) {
	if len(row) != len(ReportColumns) {
		return ReportRecord{}, false
	}
	return ReportRecord{
		Date:         row[0],
		Asset:        row[1],
		Issue:        row[2],
		Amount:       row[3],
		Payer:        row[4],
		Reporter:     row[5],
		ArtifactLink: row[6],
		Notes:        row[7],
	}, true
}
