package applications

import (
	"bytes"
	"errors"
	"html/template"
	"strings"
	"time"
)

// ErrNotApproved is returned when a resident asks for the certificate of an
// application that has not been approved.
var ErrNotApproved = errors.New("certificate not available: application not approved")

// Letterhead is the issuing barangay's identity printed on certificates.
type Letterhead struct {
	BarangayName    string
	BarangayAddress string
}

// Certificate is the printable document for an application.
type Certificate struct {
	Title     string
	Date      string
	Name      string
	Address   string
	Service   string
	Purpose   string
	Reference string
	IssuedOn  string
	Kind      string
	Letterhead
}

// certificateKind picks the wording from the service name, falling back to
// the application type.
func certificateKind(a *Application) (kind, title string) {
	name := strings.ToLower(a.DisplayService() + " " + a.ApplicationType)
	switch {
	case strings.Contains(name, "clearance"):
		return "clearance", "BARANGAY CLEARANCE"
	case strings.Contains(name, "indigency"):
		return "indigency", "CERTIFICATE OF INDIGENCY"
	case strings.Contains(name, "residency"):
		return "residency", "CERTIFICATE OF RESIDENCY"
	}
	return "general", "BARANGAY CERTIFICATE"
}

func ordinal(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// NewCertificate fills a certificate for a at now. The issue date is the
// processing date when there is one.
func NewCertificate(a *Application, lh Letterhead, now time.Time) *Certificate {
	issued := now
	if a.ProcessedAt != nil {
		issued = *a.ProcessedAt
	}
	issued = issued.In(localZone)
	kind, title := certificateKind(a)
	return &Certificate{
		Title:      title,
		Date:       now.In(localZone).Format("January 2, 2006"),
		Name:       a.ResidentName,
		Address:    a.ResidentAddress,
		Service:    a.DisplayService(),
		Purpose:    a.Purpose,
		Reference:  a.ReferenceNumber,
		IssuedOn:   issued.Format("2") + ordinal(issued.Day()) + " day of " + issued.Format("January 2006"),
		Kind:       kind,
		Letterhead: lh,
	}
}

var localZone = time.FixedZone("PHT", 8*60*60)

var certificateTmpl = template.Must(template.New("certificate").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
@page { margin: 40px; size: letter; }
body { font-family: 'Times New Roman', serif; padding: 20px; }
.header { text-align: center; margin-bottom: 30px; }
.header h3 { margin: 5px 0; font-size: 14px; }
.header h1 { margin: 20px 0; font-size: 24px; text-decoration: underline; }
.content p { text-align: justify; line-height: 1.8; }
.signature { margin-top: 60px; border-top: 2px solid #000; width: 250px; margin-left: auto; margin-right: auto; text-align: center; }
.note { margin-top: 40px; font-size: 12px; font-style: italic; }
</style>
</head>
<body>
<div class="header">
<h3>REPUBLIC OF THE PHILIPPINES</h3>
<h3>CITY OF CALOOCAN</h3>
<h3>OFFICE OF THE PUNONG BARANGAY</h3>
<h1>{{.Title}}</h1>
</div>
<div class="content">
<p><strong>{{.Date}}</strong></p>
{{- if eq .Kind "clearance"}}
<p>This certifies that <strong>{{.Name}}</strong> is a bona fide resident of this barangay with a postal address at <strong>{{.Address}}</strong>.</p>
<p>Upon verification of records, the said individual has no derogatory record and is known to have a good moral standing in the community.</p>
<p>This certification is issued upon the request of the above-named person as <strong>Barangay Clearance</strong>.</p>
{{- else if eq .Kind "indigency"}}
<p>This is to certify that <strong>{{.Name}}</strong> is a bona fide resident of <strong>{{.Address}}</strong>.</p>
<p>This is to certify further that the above-named person belongs to an <strong>INDIGENT FAMILY</strong> in this barangay.</p>
<p>This certification is issued upon the request of the above-named person for whatever legal purpose it may serve.</p>
{{- else if eq .Kind "residency"}}
<p>This is to certify that <strong>{{.Name}}</strong> is a bona fide resident of <strong>{{.Address}}</strong> and has been residing in this barangay.</p>
<p>This certification is issued upon the request of the above-named person for whatever legal purpose it may serve.</p>
{{- else}}
<p>This is to certify that <strong>{{.Name}}</strong> is a bona fide resident of <strong>{{.Address}}</strong>.</p>
<p>This certification is issued upon the request of the above-named person for {{.Service}}.</p>
{{- end}}
{{- if .Purpose}}
<p>Purpose: {{.Purpose}}</p>
{{- end}}
<p>Issued this {{.IssuedOn}} at {{.BarangayName}}, {{.BarangayAddress}}.</p>
</div>
<div class="signature"><strong>Signature of the Bearer</strong></div>
<div class="note">
<p>Reference No.: {{.Reference}}</p>
<p><strong>NOTE:</strong> Any mark, erasure or alteration of any entries herein will invalidate this certification.</p>
<p><strong>NOT VALID WITHOUT DRY SEAL</strong></p>
</div>
</body>
</html>
`))

// Render writes the certificate as printable HTML.
func (c *Certificate) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := certificateTmpl.Execute(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
