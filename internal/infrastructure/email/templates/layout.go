// Package templates renders the operator emails sent by the console.
package templates

import (
	"bytes"
	"fmt"
	"html/template"
)

type EmailLayoutProps struct {
	Preheader  string
	Title      string
	Content    template.HTML
	FooterText string
}

var emailLayoutTemplate = template.Must(template.New("emailLayout").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8">
    <title>{{.Title}}</title>
  </head>
  <body style="font-family: Helvetica, sans-serif; font-size: 16px; line-height: 1.3; background-color: #f4f5f6; margin: 0; padding: 0;">
    <span class="preheader" style="color: transparent; display: none; height: 0; max-height: 0; overflow: hidden; mso-hide: all; visibility: hidden; width: 0;">{{.Preheader}}</span>
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" style="background-color: #f4f5f6; width: 100%;" width="100%">
      <tr>
        <td style="max-width: 600px; padding-top: 24px; width: 600px; margin: 0 auto;" width="600" valign="top">
          <table role="presentation" border="0" cellpadding="0" cellspacing="0" style="background: #ffffff; border: 1px solid #eaebed; border-radius: 16px; width: 100%;" width="100%">
            <tr>
              <td style="padding: 24px;" valign="top">
                {{.Content}}
              </td>
            </tr>
          </table>
          <p style="color: #9a9ea6; font-size: 14px; text-align: center;">{{.FooterText}}</p>
        </td>
      </tr>
    </table>
  </body>
</html>`))

// GetEmailLayout wraps already rendered content in the shared layout.
func GetEmailLayout(props EmailLayoutProps) (string, error) {
	if props.Title == "" {
		props.Title = "Cart recovery console"
	}
	if props.FooterText == "" {
		props.FooterText = "Sent by the cart recovery console"
	}

	var buf bytes.Buffer
	if err := emailLayoutTemplate.Execute(&buf, props); err != nil {
		return "", fmt.Errorf("failed to render email layout: %w", err)
	}
	return buf.String(), nil
}
