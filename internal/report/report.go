package report

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb/geo"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
	"github.com/mr1hm/go-perimeter-risk/internal/risk"
)

type Report struct {
	Office      models.Office      `json:"oficina"`
	Verdict     models.RiskVerdict `json:"analisis"`
	Source      Source             `json:"source"`
	Stats       risk.Counts        `json:"stats"`
	POIs        []ReportPOI        `json:"pois"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

type ReportPOI struct {
	models.POI
	DistanceMeters float64 `json:"distanciaMetros"`
	Color          string  `json:"color"`
	Icon           string  `json:"icon"`
}

// Build makes sure the office has a verdict and assembles the report model.
// POIs are listed nearest first.
func (a *Assembler) Build(ctx context.Context, id string) (Report, error) {
	verdict, source, err := a.EnsureVerdict(ctx, id)
	if err != nil {
		return Report{}, err
	}
	office, err := a.repo.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	return assemble(*office, verdict, source, a.now()), nil
}

func assemble(office models.Office, verdict models.RiskVerdict, source Source, now time.Time) Report {
	center := office.Center()
	pois := make([]ReportPOI, 0, len(office.POIs))
	for _, p := range office.POIs {
		d := geo.Distance(center, p.Point())
		pois = append(pois, ReportPOI{
			POI:            p,
			DistanceMeters: math.Round(d*10) / 10,
			Color:          Color(p),
			Icon:           IconURL(p),
		})
	}
	sort.SliceStable(pois, func(i, j int) bool {
		return pois[i].DistanceMeters < pois[j].DistanceMeters
	})

	return Report{
		Office:      office,
		Verdict:     verdict,
		Source:      source,
		Stats:       risk.Count(office.POIs),
		POIs:        pois,
		GeneratedAt: now,
	}
}

//go:embed templates/report.html.tmpl
var reportTemplate string

var tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"typeLabel": TypeLabel,
	"cssColor": func(c string) string {
		if c == "ltblue" {
			return "lightblue"
		}
		return c
	},
	"meters": func(m float64) string {
		return fmt.Sprintf("%.0f m", m)
	},
	"date": func(t time.Time) string {
		return t.Format("02/01/2006 15:04")
	},
}).Parse(reportTemplate))

// Render writes the printable HTML report.
func Render(w io.Writer, r Report) error {
	return tmpl.Execute(w, r)
}
