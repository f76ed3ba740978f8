// Package classifier decides whether a title is in scope for anime sync.
package classifier

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Subject is what the classifier looks at.
type Subject struct {
	Title     string
	AltTitles []string
	Genres    []string
	Studios   []string
	MediaType string
	// HasAnimeID is set when an anime-specific provider id is already known.
	HasAnimeID bool
}

// Verdict is the classification result.
type Verdict struct {
	InScope bool
	Reason  string
}

// Classifier marks entries as in or out of scope.
type Classifier interface {
	Classify(s Subject) Verdict
}

// AllowAll keeps everything in scope.
type AllowAll struct{}

// Classify implements Classifier.
func (AllowAll) Classify(Subject) Verdict { return Verdict{InScope: true, Reason: "allow all"} }

// Rules is the YAML rule set.
type Rules struct {
	Studios         []string `yaml:"studios"`
	IncludeGenres   []string `yaml:"include_genres"`
	ExcludeGenres   []string `yaml:"exclude_genres"`
	ScriptHeuristic bool     `yaml:"script_heuristic"`
	DefaultInScope  bool     `yaml:"default_in_scope"`
}

// DefaultRules is used when no rules file is configured.
func DefaultRules() Rules {
	return Rules{
		Studios: []string{
			"Sunrise", "Madhouse", "Bones", "Kyoto Animation", "Production I.G", "MAPPA",
			"Toei Animation", "Studio Ghibli", "Wit Studio", "ufotable", "A-1 Pictures",
			"Shaft", "Trigger", "CloverWorks", "David Production", "J.C.Staff",
		},
		IncludeGenres:   []string{"anime"},
		ExcludeGenres:   []string{"reality", "talk show", "news", "documentary"},
		ScriptHeuristic: true,
	}
}

// LoadRules reads a YAML rules file. Unknown keys are rejected.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read classifier rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules.
func ParseRules(data []byte) (Rules, error) {
	var r Rules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return Rules{}, fmt.Errorf("parse classifier rules: %w", err)
	}
	return r, nil
}

// RuleClassifier applies Rules in a fixed order: known anime id, excluded genre,
// studio allow-list, included genre, script heuristic, default.
type RuleClassifier struct {
	studios  map[string]bool
	include  []string
	exclude  []string
	script   bool
	fallback bool
}

// New builds a classifier from rules.
func New(r Rules) *RuleClassifier {
	c := &RuleClassifier{
		studios:  make(map[string]bool, len(r.Studios)),
		script:   r.ScriptHeuristic,
		fallback: r.DefaultInScope,
	}
	for _, s := range r.Studios {
		c.studios[strings.ToLower(strings.TrimSpace(s))] = true
	}
	for _, g := range r.IncludeGenres {
		c.include = append(c.include, strings.ToLower(g))
	}
	for _, g := range r.ExcludeGenres {
		c.exclude = append(c.exclude, strings.ToLower(g))
	}
	return c
}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(s Subject) Verdict {
	if s.HasAnimeID {
		return Verdict{InScope: true, Reason: "anime provider id"}
	}
	if g, ok := matchGenre(s.Genres, c.exclude); ok {
		return Verdict{Reason: "excluded genre " + g}
	}
	for _, studio := range s.Studios {
		if c.studios[strings.ToLower(strings.TrimSpace(studio))] {
			return Verdict{InScope: true, Reason: "studio " + studio}
		}
	}
	if g, ok := matchGenre(s.Genres, c.include); ok {
		return Verdict{InScope: true, Reason: "genre " + g}
	}
	if c.script {
		for _, t := range append([]string{s.Title}, s.AltTitles...) {
			if hasJapaneseScript(t) {
				return Verdict{InScope: true, Reason: "japanese title"}
			}
		}
	}
	if c.fallback {
		return Verdict{InScope: true, Reason: "default"}
	}
	return Verdict{Reason: "no anime signal"}
}

func matchGenre(genres, keywords []string) (string, bool) {
	for _, g := range genres {
		lg := strings.ToLower(g)
		for _, kw := range keywords {
			if strings.Contains(lg, kw) {
				return g, true
			}
		}
	}
	return "", false
}

func hasJapaneseScript(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) {
			return true
		}
	}
	return false
}
