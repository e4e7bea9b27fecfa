package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

const invitationSubject = "%s invited you to join %s"

const invitationTextBody = `Hi,

{{.InviterName}} has invited you to join "{{.HouseName}}" as {{.Role}}.

Accept the invitation here: {{.InviteLink}}

The link expires on {{.Expires}}. If you weren't expecting this invitation you
can ignore this email.
`

const invitationHTMLBody = `<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif; color: #333;">
    <h2>You're invited to {{.HouseName}}</h2>
    <p><strong>{{.InviterName}}</strong> has invited you to join
       <strong>{{.HouseName}}</strong> as <strong>{{.Role}}</strong>.</p>
    <p><a href="{{.InviteLink}}">Accept invitation</a></p>
    <p style="color: #888; font-size: 12px;">
      The link expires on {{.Expires}}. If you weren't expecting this
      invitation you can ignore this email.
    </p>
  </body>
</html>
`

var (
	textTmpl  = texttemplate.Must(texttemplate.New("invitation").Parse(invitationTextBody))
	htmlTmpl  = htmltemplate.Must(htmltemplate.New("invitation").Parse(invitationHTMLBody))
	roleCaser = cases.Title(language.English)
)

type invitationView struct {
	HouseName   string
	InviterName string
	Role        string
	InviteLink  string
	Expires     string
}

// renderInvitation produces the subject plus both bodies. The role is
// title-cased for display only; comparisons elsewhere keep the raw value.
func renderInvitation(inv notify.Invitation) (subject, text, html string, err error) {
	view := invitationView{
		HouseName:   inv.HouseName,
		InviterName: inv.InviterName,
		Role:        roleCaser.String(inv.Role),
		InviteLink:  inv.InviteLink,
		Expires:     inv.ExpiresAt.Format("Jan 2, 2006"),
	}

	var textBuf, htmlBuf bytes.Buffer
	if err := textTmpl.Execute(&textBuf, view); err != nil {
		return "", "", "", fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&htmlBuf, view); err != nil {
		return "", "", "", fmt.Errorf("render html body: %w", err)
	}

	subject = fmt.Sprintf(invitationSubject, inv.InviterName, inv.HouseName)
	return subject, textBuf.String(), htmlBuf.String(), nil
}
