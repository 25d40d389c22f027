package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/pkg/notion"
)

// Review database property names.
const (
	propName       = "Name"
	propJob        = "Job"
	propRow        = "Row"
	propStatus     = "Review Status"
	propReason     = "Reason"
	propIssues     = "Issues"
	propCandidates = "Name Candidates"
	propCountry    = "Country"
	propWebsite    = "Website"
	propChanges    = "Changes"
)

// reviewOpen is the status given to newly queued rows.
const reviewOpen = "Open"

// NotionExporter keeps one review page per NEEDS_REVIEW row.
type NotionExporter struct {
	client notion.Client
	dbID   string
}

// NewNotionExporter returns an exporter writing to the review database dbID.
func NewNotionExporter(c notion.Client, dbID string) *NotionExporter {
	return &NotionExporter{client: c, dbID: dbID}
}

// Export creates a page for each NEEDS_REVIEW row of job, or refreshes the
// page a previous export created for it. Other rows are skipped. The review
// status of an existing page is left to the reviewer.
func (e *NotionExporter) Export(ctx context.Context, job *model.Job, rows []model.Row) (Summary, error) {
	existing, err := notion.QueryByText(ctx, e.client, e.dbID, propJob, job.ID)
	if err != nil {
		return Summary{}, eris.Wrap(err, "export: load review pages")
	}
	pages := make(map[string]string, len(existing))
	for _, p := range existing {
		if id := notion.PlainText(p.Properties, propRow); id != "" {
			pages[id] = string(p.ID)
		}
	}

	var sum Summary
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if r.Status != model.RowStatusNeedsReview {
			sum.Skipped++
			continue
		}
		log := zap.L().With(zap.String("row_id", r.ID))
		props := reviewProperties(job, r)

		if pageID, ok := pages[r.ID]; ok {
			_, err = e.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props})
		} else {
			props[propStatus] = notion.Select(reviewOpen)
			_, err = e.client.CreatePage(ctx, &notionapi.PageCreateRequest{
				Parent: notionapi.Parent{
					Type:       notionapi.ParentTypeDatabaseID,
					DatabaseID: notionapi.DatabaseID(e.dbID),
				},
				Properties: props,
			})
		}
		if err != nil {
			log.Warn("export: review page write failed", zap.Error(err))
			sum.Failed++
			continue
		}
		sum.Exported++
	}

	zap.L().Info("export: notion review queue updated",
		zap.String("job_id", job.ID),
		zap.Int("exported", sum.Exported),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func reviewProperties(job *model.Job, r model.Row) notionapi.Properties {
	rec := finalRecord(r)

	title := rec.Get(model.FieldCompanyName)
	if title == "" {
		title = fmt.Sprintf("%s row %d", job.Name, r.Index+1)
	}

	props := notionapi.Properties{
		propName:    notion.Title(title),
		propJob:     notion.Text(job.ID),
		propRow:     notion.Text(r.ID),
		propCountry: notion.Text(rec.Get(model.FieldCountry)),
		propChanges: notion.Number(float64(len(appliedChanges(r)))),
	}
	if w := rec.Get(model.FieldWebsite); w != "" {
		props[propWebsite] = notion.URL(w)
	}

	if r.Result != nil {
		props[propReason] = notion.Text(reviewReason(r.Result))
		props[propIssues] = notion.Text(issueLines(r.Result.Issues))
		props[propCandidates] = notion.Text(candidateLines(r.Result.NameCandidates))
	}
	return props
}

// reviewReason prefers the model's stated reason, then the blocking issues.
func reviewReason(res *model.RowResult) string {
	if res.ReviewReason != "" {
		return res.ReviewReason
	}
	var msgs []string
	for _, is := range res.Issues {
		if is.Severity == model.SeverityError {
			msgs = append(msgs, is.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

func issueLines(issues []model.Issue) string {
	lines := make([]string, 0, len(issues))
	for _, is := range issues {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", is.Severity, is.Field, is.Message))
	}
	return strings.Join(lines, "\n")
}

func candidateLines(cands []model.NameCandidate) string {
	lines := make([]string, 0, len(cands))
	for _, c := range cands {
		lines = append(lines, fmt.Sprintf("%s (%.2f, %s)", c.Name, c.Confidence, c.Source))
	}
	return strings.Join(lines, "\n")
}
