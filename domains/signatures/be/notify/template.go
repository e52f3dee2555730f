package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

// TemplateData is the typed input of the signature invitation email.
type TemplateData struct {
	RecipientName string
	Title         string
	CustomMessage string
	SigningURL    string
	AgencyName    string
}

var inviteTemplate = template.Must(template.New("signature-invite").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #1f2933;">
    <p>Hi {{.RecipientName}},</p>
    <p>You have been asked to sign <strong>{{.Title}}</strong>.</p>
    {{- if .CustomMessage}}
    <p>{{.CustomMessage}}</p>
    {{- end}}
    <p>
      <a href="{{.SigningURL}}" style="background: #2563eb; color: #ffffff; padding: 10px 18px; border-radius: 6px; text-decoration: none;">
        Review &amp; sign
      </a>
    </p>
    <p style="color: #52606d; font-size: 12px;">
      If the button does not work, copy this link into your browser:<br>
      {{.SigningURL}}
    </p>
    {{- if .AgencyName}}
    <p style="color: #52606d; font-size: 12px;">Sent on behalf of {{.AgencyName}}.</p>
    {{- end}}
  </body>
</html>
`))

// RenderInvite produces the subject and HTML body of the invitation email.
func RenderInvite(data TemplateData) (subject, html string, err error) {
	if data.Title == "" {
		return "", "", fmt.Errorf("invite template: title is required")
	}
	if data.SigningURL == "" {
		return "", "", fmt.Errorf("invite template: signing url is required")
	}
	if data.RecipientName == "" {
		data.RecipientName = "there"
	}

	var buf bytes.Buffer
	if err := inviteTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render invite template: %w", err)
	}

	return "Signature requested: " + data.Title, buf.String(), nil
}
