package html

import (
	"embed"
	"html/template"
	"io"

	"github.com/bjarke-xyz/hire-me-maybe/internal/dashboard"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
)

//go:embed pages/*.html
var files embed.FS

var funcs = template.FuncMap{
	"statuses": func() []domain.ApplicationStatus { return domain.Statuses },
	"themes":   func() []string { return dashboard.Themes },
}

var (
	landingTemplate   = parse("pages/landing.html")
	loginTemplate     = parse("pages/login.html")
	signupTemplate    = parse("pages/signup.html")
	dashboardTemplate = parse("pages/dashboard.html")
	confirmTemplate   = parse("pages/confirm.html")
	waitingTemplate   = parse("pages/waiting.html")
)

// Base is shared by every page.
type Base struct {
	Title  string
	Theme  string
	Error  string
	Notice string
	Email  string
}

type LandingParams struct {
	Base
	SignedIn bool
}

func LandingPage(w io.Writer, p LandingParams) error {
	return landingTemplate.Execute(w, p)
}

type LoginParams struct {
	Base
	Prefill string
	From    string
}

func LoginPage(w io.Writer, p LoginParams) error {
	return loginTemplate.Execute(w, p)
}

type SignupParams struct {
	Base
}

func SignupPage(w io.Writer, p SignupParams) error {
	return signupTemplate.Execute(w, p)
}

type DashboardParams struct {
	Base
	View dashboard.View
}

func DashboardPage(w io.Writer, p DashboardParams) error {
	return dashboardTemplate.Execute(w, p)
}

type ConfirmParams struct {
	Base
	Record domain.ApplicationRecord
}

func ConfirmPage(w io.Writer, p ConfirmParams) error {
	return confirmTemplate.Execute(w, p)
}

type WaitingParams struct {
	Base
}

func WaitingPage(w io.Writer, p WaitingParams) error {
	return waitingTemplate.Execute(w, p)
}

func parse(file string) *template.Template {
	return template.Must(
		template.New("layout.html").Funcs(funcs).ParseFS(files, "pages/layout.html", file))
}
