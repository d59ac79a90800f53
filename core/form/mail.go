package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	htmltmpl "html/template"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/fomu/core"
	"github.com/trezcool/fomu/core/user"
)

// submissionTmpl renders the notification body; all participant-supplied
// text goes through html/template's contextual escaping.
var submissionTmpl = htmltmpl.Must(htmltmpl.New("submission").Parse(`<div style="font-family:system-ui,-apple-system,Segoe UI,Roboto,Helvetica,Arial,sans-serif">
  <p>
    <strong>Name:</strong> {{.Name}}<br/>
    <strong>Email:</strong> {{.Email}}
  </p>
  <p style="margin:0 0 10px">
    <strong>Form:</strong> {{.FormTitle}}<br/>
    <strong>Section:</strong> {{.SectionNumber}}<br/>
    <strong>Form ID:</strong> {{.FormID}}
  </p>
{{- if .Grading}}
  <div style="margin:14px 0">
    <div style="font-weight:600;margin-bottom:6px">Score: {{.Grading.Correct}}/{{.Grading.Total}} ({{.Grading.Percent}}%)</div>
    <table cellpadding="0" cellspacing="0" style="border-collapse:collapse;font-size:13px;">
      <thead>
        <tr>
          <th style="text-align:left;padding:6px 8px;border-bottom:1px solid #ddd;">Question</th>
          <th style="text-align:left;padding:6px 8px;border-bottom:1px solid #ddd;">Correct</th>
          <th style="text-align:left;padding:6px 8px;border-bottom:1px solid #ddd;">Submitted</th>
          <th style="text-align:left;padding:6px 8px;border-bottom:1px solid #ddd;">Result</th>
        </tr>
      </thead>
      <tbody>
{{-   range .Grading.Questions}}
        <tr>
          <td style="padding:6px 8px;border-bottom:1px solid #eee;">{{.Key}}</td>
          <td style="padding:6px 8px;border-bottom:1px solid #eee;">{{.Expected}}</td>
          <td style="padding:6px 8px;border-bottom:1px solid #eee;">{{if .Submitted}}{{.Submitted}}{{else}}(blank){{end}}</td>
          <td style="padding:6px 8px;border-bottom:1px solid #eee;">{{if .Correct}}&#9989;{{else}}&#10060;{{end}}</td>
        </tr>
{{-   end}}
      </tbody>
    </table>
  </div>
{{- end}}
{{- if .RawAnswers}}
  <p style="margin:10px 0 6px">Raw responses:</p>
  <pre style="font-family:ui-monospace,Menlo,Consolas,monospace;font-size:12px;white-space:pre-wrap;word-break:break-word;">{{.RawAnswers}}</pre>
{{- else}}
  <p>{{.Email}} submitted a PDF for the form above.</p>
{{- end}}
</div>`))

type submissionTmplData struct {
	Name          string
	Email         string
	FormTitle     string
	FormID        string
	SectionNumber int
	Grading       *GradingResult
	RawAnswers    string
}

func buildSubmissionEmail(conf *core.Config, usr user.User, f Form, input SubmissionInput, grading *GradingResult) (*core.EmailMessage, error) {
	data := submissionTmplData{
		Name:          usr.FullName(),
		Email:         usr.Email,
		FormTitle:     f.Title,
		FormID:        f.ID,
		SectionNumber: f.SectionNumber,
		Grading:       grading,
	}
	if data.Name == "" {
		data.Name = "(not provided)"
	}
	if data.Email == "" {
		data.Email = "(unknown)"
	}

	msg := &core.EmailMessage{
		To: []mail.Address{conf.StudyInboxEmail()},
	}

	switch in := input.(type) {
	case DigitalInput:
		msg.Subject = fmt.Sprintf("New submission: %s (Section %d)", f.Title, f.SectionNumber)
		pretty, err := json.MarshalIndent(in.Answers, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "encoding answers")
		}
		data.RawAnswers = string(pretty)
	case AttachmentInput:
		msg.Subject = fmt.Sprintf("PDF submission: %s (Section %d)", f.Title, f.SectionNumber)
		filename := in.Filename
		if filename == "" {
			filename = fmt.Sprintf("submission-%d-%s.pdf", f.SectionNumber, f.ID)
		}
		if err := msg.Attach(bytes.NewReader(in.Content), filename, "application/pdf"); err != nil {
			return nil, err
		}
	}

	var body bytes.Buffer
	if err := submissionTmpl.Execute(&body, data); err != nil {
		return nil, errors.Wrap(err, "rendering submission email")
	}
	msg.HTMLContent = body.String()
	msg.TextContent = fmt.Sprintf("%s submitted %q (section %d).", data.Email, f.Title, f.SectionNumber)
	return msg, nil
}
