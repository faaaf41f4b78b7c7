package notice

import (
	"bytes"
	"html/template"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/prsonline/fs"
)

const noticeTemplatePath = "assets/templates/notice/upcoming_review.gohtml"

// Renderer renders the HTML letter of a notice.
type Renderer struct {
	tmpl *template.Template
	now  func() time.Time
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(appfs.FS, noticeTemplatePath)
	if err != nil {
		return nil, errors.Wrap(err, "parsing notice template")
	}
	return &Renderer{tmpl: tmpl.Option("missingkey=error"), now: time.Now}, nil
}

type letterData struct {
	PRNumber         string
	FirmName         string
	ContactName      string
	ReviewType       string
	StartDate        string
	IssuedOn         string
	HasIncreasedRisk bool
	Notes            string
}

func (r *Renderer) Render(n Notice) (string, error) {
	pr := n.PracticeReview
	data := letterData{
		PRNumber:         pr.PRNumber,
		FirmName:         pr.Firm.Name,
		ContactName:      pr.ContactName,
		ReviewType:       pr.ReviewType,
		StartDate:        pr.StartDate.Format("January 2, 2006"),
		IssuedOn:         r.now().Format("January 2, 2006"),
		HasIncreasedRisk: pr.HasIncreasedRisk,
		Notes:            n.Notes,
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "rendering notice %d", n.ID)
	}
	return buf.String(), nil
}
