package mailer

import (
	"bytes"
	"fmt"
	"text/template"

	"memberships/internal/notify"
)

type mailTemplate struct {
	subject string
	body    *template.Template
}

// templateData is what each body template renders against.
type templateData struct {
	Site string
	Data map[string]string
}

var templates = map[notify.Kind]mailTemplate{
	notify.KindRegistrationComplete: {
		subject: "You're registered for the membership lottery",
		body: template.Must(template.New("registration_complete").Parse(`Dearest member,

This is your confirmation: you are registered for the membership lottery.

We will send you another e-mail if you are drawn, but e-mail can be
unreliable so check the website every day or two while the lottery runs.
You have two days to act once you receive an invitation.

You can change your answers until the lottery starts at
    {{.Site}}

Love,
The Membership Team
`)),
	},
	notify.KindVoucherAllocated: {
		subject: "You're invited to get a membership",
		body: template.Must(template.New("voucher_allocated").Parse(`Dearest member,

You were drawn! You can get a membership for yourself and one friend.
Pay for both, or pay for your own and transfer the other to someone with a
registered profile.

Please hurry, your invitation expires {{index .Data "expires"}}.

Go here: {{.Site}}

Love,
The Membership Team
`)),
	},
	notify.KindVoucherTransferred: {
		subject: "You've been invited to get a membership",
		body: template.Must(template.New("voucher_transferred").Parse(`Dearest member,

Someone with the e-mail address {{index .Data "sender"}} sent you an invitation.

Purchase your membership at {{.Site}}

Hurry up, it expires {{index .Data "expires"}}!

Hugs,
The Membership Team
`)),
	},
	notify.KindOrderComplete: {
		subject: "Your membership",
		body: template.Must(template.New("order_complete").Parse(`Dearest member,

You did it! Your membership is paid{{with index .Data "order"}} (order {{.}}){{end}}.

Your printable ticket arrives in a separate e-mail. Bring it together with
ID when you arrive.

You can view your receipt at {{.Site}}

Hugs,
The Membership Team
`)),
	},
	notify.KindGiftedTicket: {
		subject: "Someone gifted you a membership",
		body: template.Must(template.New("gifted_ticket").Parse(`Lovely member,

Someone going by the e-mail {{index .Data "sender"}} gifted you a membership.

That's it, you're all set. Your printable ticket arrives in a separate
e-mail. Bring it together with ID when you arrive.

You can view the receipt at {{.Site}}

Hugs,
The Membership Team
`)),
	},
}

// Render returns the subject and plain-text body for msg.
func Render(msg notify.Message, site string) (string, string, error) {
	tmpl, ok := templates[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("no template for %q", msg.Kind)
	}
	var buf bytes.Buffer
	if err := tmpl.body.Execute(&buf, templateData{Site: site, Data: msg.Data}); err != nil {
		return "", "", fmt.Errorf("render %s: %w", msg.Kind, err)
	}
	return tmpl.subject, buf.String(), nil
}
