package generate

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// LoanInfo is the loan data a generated document is filled with.
type LoanInfo struct {
	LoanID          string
	BorrowerName    string
	LenderName      string
	LoanAmount      float64
	InterestRate    float64
	LoanTermMonths  int
	LoanType        string
	PropertyAddress string
	PropertyType    string
	CreatedAt       time.Time
}

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title string
	Kind  string
	Loan  LoanInfo
}

var funcMap = template.FuncMap{
	"upper": strings.ToUpper,
	"money": func(v float64) string {
		return formatMoney(v)
	},
	"years": func(months int) string {
		if months%12 == 0 {
			return fmt.Sprintf("%d years", months/12)
		}
		return fmt.Sprintf("%d months", months)
	},
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"ordinalDay": func(t time.Time) string {
		return ordinal(t.Day())
	},
}

var documentTemplate = template.Must(template.New("layout").Funcs(funcMap).Parse(layoutTemplate))

func init() {
	for kind, body := range bodyTemplates {
		template.Must(documentTemplate.New(kind).Parse(`{{template "header" .}}` + body + `{{template "footer" .}}`))
	}
}

// RenderHTML renders the template registered for kind.
func RenderHTML(kind string, data TemplateData) (string, error) {
	if documentTemplate.Lookup(kind) == nil {
		return "", fmt.Errorf("no template for %s", kind)
	}
	data.Kind = kind
	var buf bytes.Buffer
	if err := documentTemplate.ExecuteTemplate(&buf, kind, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatMoney(v float64) string {
	whole := int64(v)
	cents := int64((v-float64(whole))*100 + 0.5)
	if cents == 100 {
		whole++
		cents = 0
	}
	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("$%s.%02d", b.String(), cents)
}

func ordinal(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

const layoutTemplate = `{{define "header"}}<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: "Times New Roman", serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { text-align: center; border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; text-align: right; }
    table { width: 100%; border-collapse: collapse; }
    td, th { border: 1px solid #999; padding: 0.4rem; text-align: left; }
    .signature-line { margin-top: 3rem; }
  </style>
</head>
<body class="{{.Kind}}">
  <h1>{{upper .Title}}</h1>
  <div class="meta">Loan {{.Loan.LoanID}} | {{formatDate .Loan.CreatedAt "January 2, 2006"}}</div>
{{end}}
{{define "footer"}}
</body>
</html>{{end}}`

// bodyTemplates are keyed by document type.
var bodyTemplates = map[string]string{
	"promissory_note": `
  <p>FOR VALUE RECEIVED, the undersigned, <strong>{{.Loan.BorrowerName}}</strong> ("Borrower"),
  hereby promises to pay to the order of {{.Loan.LenderName}}, the principal sum of
  <strong>{{money .Loan.LoanAmount}}</strong> with interest on the unpaid principal balance from the date
  of this Note, until paid, at an interest rate of <strong>{{.Loan.InterestRate}}%</strong> per annum.</p>
  <p>Property Address: {{.Loan.PropertyAddress}}<br>
  Loan Type: {{upper .Loan.LoanType}}<br>
  Loan Term: {{years .Loan.LoanTermMonths}}</p>
  <div class="signature-line">____________________________</div>
  <div>{{.Loan.BorrowerName}}, Borrower</div>`,

	"deed_of_trust": `
  <p>THIS DEED OF TRUST is made this {{ordinalDay .Loan.CreatedAt}} day of {{formatDate .Loan.CreatedAt "January, 2006"}},
  between <strong>{{.Loan.BorrowerName}}</strong> ("Borrower") and {{.Loan.LenderName}} ("Lender").</p>
  <p>THE PROPERTY. Borrower irrevocably grants and conveys to Trustee, in trust, with power of sale,
  the following described property:</p>
  <p>{{.Loan.PropertyAddress}}<br>Property Type: {{.Loan.PropertyType}}</p>
  <p>This Security Instrument secures to Lender the repayment of the Loan of {{money .Loan.LoanAmount}}.</p>`,

	"closing_disclosure": `
  <table>
    <tr><th colspan="2">Loan Information</th></tr>
    <tr><td>Loan Term</td><td>{{years .Loan.LoanTermMonths}}</td></tr>
    <tr><td>Loan Purpose</td><td>Purchase</td></tr>
    <tr><td>Loan Product</td><td>{{upper .Loan.LoanType}}</td></tr>
    <tr><th colspan="2">Loan Terms</th></tr>
    <tr><td>Loan Amount</td><td>{{money .Loan.LoanAmount}}</td></tr>
    <tr><td>Interest Rate</td><td>{{.Loan.InterestRate}}%</td></tr>
  </table>
  <p>This form is a statement of final loan terms and closing costs for {{.Loan.BorrowerName}}.</p>`,

	"property_appraisal": `
  <p>Uniform Residential Appraisal Report prepared for {{.Loan.LenderName}}.</p>
  <table>
    <tr><td>Subject Property</td><td>{{.Loan.PropertyAddress}}</td></tr>
    <tr><td>Property Type</td><td>{{.Loan.PropertyType}}</td></tr>
    <tr><td>Borrower</td><td>{{.Loan.BorrowerName}}</td></tr>
    <tr><td>Loan Amount</td><td>{{money .Loan.LoanAmount}}</td></tr>
  </table>
  <p>The appraiser certifies that the opinion of market value is based on an inspection of the subject property.</p>`,

	"executed_package": `
  <p>Executed closing package for {{.Loan.BorrowerName}}, loan amount {{money .Loan.LoanAmount}},
  secured by {{.Loan.PropertyAddress}}.</p>
  <ol>
    <li>Promissory Note</li>
    <li>Deed of Trust</li>
    <li>Closing Disclosure</li>
    <li>Property Appraisal</li>
  </ol>
  <div class="signature-line">____________________________</div>
  <div>{{.Loan.BorrowerName}}, Borrower</div>`,
}
