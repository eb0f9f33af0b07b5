// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// lexicon_dump inspects the counsel service's classification lexicons.
//
// The classifier, escalation guard, and signal detector all read compiled
// YAML lexicons. This tool loads each one (embedded defaults, or files given
// via flags) through the same validation path the service uses and prints a
// human-readable summary: per-domain keyword and pattern counts, crisis
// categories with tier phrase counts and referral contacts, and signal
// phrase counts per class. Running it against an edited YAML file answers
// "will the service accept this?" without starting the service.
//
// Usage:
//
//	lexicon_dump [--domains path.yaml] [--crisis path.yaml] [--signals path.yaml] [--phrases]
//
// With no flags all three embedded defaults are dumped. --phrases prints
// every phrase rather than just counts.
//
// Exit codes:
//
//	0 — all requested lexicons loaded and validated
//	1 — a lexicon failed to read, parse, or validate
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/config"
)

func main() {
	domainsFlag := flag.String("domains", "", "Path to a domain lexicon YAML file (default: embedded)")
	crisisFlag := flag.String("crisis", "", "Path to a crisis lexicon YAML file (default: embedded)")
	signalsFlag := flag.String("signals", "", "Path to a signal phrases YAML file (default: embedded)")
	phrasesFlag := flag.Bool("phrases", false, "Print every phrase, not just counts")
	flag.Parse()

	ctx := context.Background()

	dumpDomains(ctx, *domainsFlag, *phrasesFlag)
	dumpCrisis(ctx, *crisisFlag, *phrasesFlag)
	dumpSignals(ctx, *signalsFlag, *phrasesFlag)
}

func dumpDomains(ctx context.Context, path string, phrases bool) {
	var (
		lex *config.DomainLexicon
		err error
	)
	if path != "" {
		data := mustRead(path)
		lex, err = config.LoadDomainLexicon(ctx, data)
	} else {
		lex, err = config.GetDomainLexicon(ctx)
	}
	if err != nil {
		fatalf("domain lexicon: %v", err)
	}

	fmt.Printf("Domain lexicon (%s): %d domains\n", sourceLabel(path), len(lex.Domains))
	for _, d := range lex.Domains {
		fmt.Printf("  %-14s %3d keywords, %2d patterns\n", d.Domain, len(d.Keywords), len(d.Patterns))
		if phrases {
			printList("    keyword", d.Keywords)
			printList("    pattern", d.Patterns)
		}
	}
	fmt.Println()
}

func dumpCrisis(ctx context.Context, path string, phrases bool) {
	var (
		lex *config.CrisisLexicon
		err error
	)
	if path != "" {
		data := mustRead(path)
		lex, err = config.LoadCrisisLexicon(ctx, data)
	} else {
		lex, err = config.GetCrisisLexicon(ctx)
	}
	if err != nil {
		fatalf("crisis lexicon: %v", err)
	}

	fmt.Printf("Crisis lexicon (%s): %d categories\n", sourceLabel(path), len(lex.Categories))
	for _, cat := range lex.Categories {
		fmt.Printf("  %s\n", cat.Category)

		// Tier names come from a map; sort for stable output.
		tiers := make([]string, 0, len(cat.Tiers))
		for name := range cat.Tiers {
			tiers = append(tiers, name)
		}
		sort.Strings(tiers)
		for _, name := range tiers {
			fmt.Printf("    tier %-10s %3d phrases\n", name, len(cat.Tiers[name]))
			if phrases {
				printList("      phrase", cat.Tiers[name])
			}
		}
		for _, c := range cat.Contacts {
			fmt.Printf("    contact: %s — %s (%s)\n", c.Name, c.Contact, c.Availability)
		}
	}
	fmt.Println()
}

func dumpSignals(ctx context.Context, path string, phrases bool) {
	var (
		sp  *config.SignalPhrases
		err error
	)
	if path != "" {
		data := mustRead(path)
		sp, err = config.LoadSignalPhrases(ctx, data)
	} else {
		sp, err = config.GetSignalPhrases(ctx)
	}
	if err != nil {
		fatalf("signal phrases: %v", err)
	}

	fmt.Printf("Signal phrases (%s):\n", sourceLabel(path))
	classes := []struct {
		name string
		list []string
	}{
		{"deep_analysis", sp.DeepAnalysis},
		{"cross_domain_links", sp.CrossDomainLinks},
		{"conflict_markers", sp.ConflictMarkers},
		{"uncertainty_markers", sp.UncertaintyMarkers},
	}
	for _, c := range classes {
		fmt.Printf("  %-20s %3d phrases\n", c.name, len(c.list))
		if phrases {
			printList("    phrase", c.list)
		}
	}
}

func mustRead(path string) []byte {
	info, err := os.Stat(path)
	if err != nil {
		fatalf("stat %s: %v", path, err)
	}
	if info.Size() > config.MaxYAMLFileSize {
		fatalf("%s: file is %d bytes, limit is %d", path, info.Size(), config.MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fatalf("read %s: %v", path, err)
	}
	return data
}

func sourceLabel(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

func printList(label string, items []string) {
	for _, item := range items {
		fmt.Printf("%s: %q\n", label, item)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "lexicon_dump: "+format+"\n", args...)
	os.Exit(1)
}
