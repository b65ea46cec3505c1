package main

import (
	"bytes"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestRenderIndex(t *testing.T) {
	gens := []GenerationSummary{
		{GenerationID: "gen_2_7", StartedNs: 2, Turns: 200, Agents: 20, Alive: 5, Fraction: 0.25, Kills: 3, FoodEaten: 40, Starved: 12, Source: "uniform"},
		{GenerationID: "gen 1 <x>", StartedNs: 1, Turns: 150, Agents: 10, Alive: 0, Fraction: 0, Source: "policy"},
	}

	var buf bytes.Buffer
	if err := renderIndex(&buf, gens, 42); err != nil {
		t.Fatalf("render: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}

	if got := doc.Find("#total").Text(); got != "42" {
		t.Fatalf("total: got %q", got)
	}
	rows := doc.Find("#generations tbody tr")
	if rows.Length() != 2 {
		t.Fatalf("rows: got %d want 2", rows.Length())
	}

	first := rows.First()
	if id, _ := first.Attr("data-id"); id != "gen_2_7" {
		t.Fatalf("data-id: got %q", id)
	}
	if got := first.Find("td.alive").Text(); got != "5/20" {
		t.Fatalf("alive: got %q", got)
	}
	if got := first.Find("td.survival").Text(); got != "25.0%" {
		t.Fatalf("survival: got %q", got)
	}
	if href, _ := first.Find("td.id a").Attr("href"); href != "/api/generations/gen_2_7/ticks" {
		t.Fatalf("href: got %q", href)
	}

	// Names are escaped in text and in links.
	second := rows.Eq(1)
	if got := second.Find("td.id a").Text(); got != "gen 1 <x>" {
		t.Fatalf("escaped id text: got %q", got)
	}
	if href, _ := second.Find("td.id a").Attr("href"); href != "/api/generations/gen%201%20%3Cx%3E/ticks" {
		t.Fatalf("escaped href: got %q", href)
	}
	if got := second.Find("td.started").Text(); got == "" {
		t.Fatalf("started timestamp missing")
	}
}

func TestRenderIndexEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := renderIndex(&buf, nil, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	if n := doc.Find("#generations tbody tr").Length(); n != 0 {
		t.Fatalf("rows: got %d", n)
	}
}
