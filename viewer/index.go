package main

import (
	"html/template"
	"io"
	"net/url"
	"strconv"
	"time"
)

var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"pct": formatPct,
	"ts": func(ns int64) string {
		if ns == 0 {
			return ""
		}
		return time.Unix(0, ns).UTC().Format(time.RFC3339)
	},
	"ticksURL": func(id string) string { return "/api/generations/" + url.PathEscape(id) + "/ticks" },
}).Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>runger generations</title></head>
<body>
<h1>Generations <span id="total">{{.Total}}</span></h1>
<table id="generations">
<thead><tr><th>Generation</th><th>Started</th><th>Turns</th><th>Alive</th><th>Survival</th><th>Kills</th><th>Eaten</th><th>Starved</th><th>Source</th></tr></thead>
<tbody>
{{range .Generations}}<tr data-id="{{.GenerationID}}">
<td class="id"><a href="{{ticksURL .GenerationID}}">{{.GenerationID}}</a></td>
<td class="started">{{ts .StartedNs}}</td>
<td class="turns">{{.Turns}}</td>
<td class="alive">{{.Alive}}/{{.Agents}}</td>
<td class="survival">{{pct .Fraction}}</td>
<td class="kills">{{.Kills}}</td>
<td class="eaten">{{.FoodEaten}}</td>
<td class="starved">{{.Starved}}</td>
<td class="source">{{.Source}}</td>
</tr>
{{end}}</tbody>
</table>
</body>
</html>
`))

func formatPct(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

func renderIndex(w io.Writer, gens []GenerationSummary, total int64) error {
	return indexTemplate.Execute(w, struct {
		Total       int64
		Generations []GenerationSummary
	}{total, gens})
}
