package notify

import "text/template"

var approvedTmpl = template.Must(template.New("approved").Parse(`Hi {{.Name}},

Your comment on "{{.Issue}}" has been approved and sent to {{.Recipient}}.
{{if .Public}}It now appears in the public listing.{{else}}Your profile is private, so it is not shown in the public listing.{{end}}

{{.URL}}

Thank you for speaking up.
`))

var deniedTmpl = template.Must(template.New("denied").Parse(`Hi {{.Name}},

Your comment on "{{.Issue}}" was not approved. Comments must stay on topic,
be respectful and must not contain links.

You can edit and resubmit it here:

{{.URL}}
`))

var publishedTmpl = template.Must(template.New("published").Parse(`{{.Recipient}},

{{.Content}}

{{.Name}}{{if .Location}}
{{.Location}}{{end}}{{if .Students}}

Parent of students at:{{range .Students}}
  {{.}}{{end}}{{end}}
`))

type memberData struct {
	Name      string
	Issue     string
	Recipient string
	Public    bool
	URL       string
}

type publishedData struct {
	Recipient string
	Content   string
	Name      string
	Location  string
	Students  []string
}
