// Package mapping imports bulk cross-reference datasets into the mapping store.
package mapping

import (
	"encoding/json/jsontext"
	"encoding/json/v2"
	"fmt"
	"io"
	"regexp"
	"strconv"

	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
)

// Dataset is a parsed bulk document. Entries stay raw so one malformed entry
// cannot fail the whole document.
type Dataset struct {
	LastUpdate string
	Entries    []jsontext.Value
}

type rawDocument struct {
	LastUpdate string         `json:"lastUpdate"`
	Entries    jsontext.Value `json:"entries"`
	Data       jsontext.Value `json:"data"`
}

// Entry is one dataset row.
type Entry struct {
	Sources     []string `json:"sources"`
	Identifiers []string `json:"identifiers"`
	Title       string   `json:"title"`
	Synonyms    []string `json:"synonyms"`
	Type        string   `json:"type"`
	Episodes    int      `json:"episodes"`
	Status      string   `json:"status"`
	AnimeSeason struct {
		Year int `json:"year"`
	} `json:"animeSeason"`
}

// IDs returns the identifier list, whichever field name the dataset uses.
func (e *Entry) IDs() []string {
	if len(e.Sources) > 0 {
		return e.Sources
	}
	return e.Identifiers
}

// Parse reads a dataset document. The entry array lives under "data" or "entries";
// a missing or non-array field is an InvalidFormat error.
func Parse(r io.Reader) (*Dataset, error) {
	var doc rawDocument
	if err := json.UnmarshalRead(r, &doc); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInvalidFormat, "dataset is not valid JSON")
	}

	raw := doc.Data
	if len(raw) == 0 {
		raw = doc.Entries
	}
	if len(raw) == 0 {
		return nil, domainerrors.InvalidFormat("dataset has no entries array")
	}
	if raw.Kind() != '[' {
		return nil, domainerrors.InvalidFormatf("dataset entries must be an array, got %s", raw.Kind())
	}

	var entries []jsontext.Value
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInvalidFormat, "decode dataset entries")
	}

	return &Dataset{LastUpdate: doc.LastUpdate, Entries: entries}, nil
}

// DecodeEntry decodes one raw entry.
func DecodeEntry(raw jsontext.Value) (*Entry, error) {
	if raw.Kind() != '{' {
		return nil, fmt.Errorf("entry must be an object, got %s", raw.Kind())
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}

// Patterns recognizes the primary and secondary identifier URLs.
type Patterns struct {
	Primary   *regexp.Regexp
	Secondary *regexp.Regexp
}

// HostPattern matches "<scheme>://[www.]<host>/anime/<int>" and captures the integer.
func HostPattern(host string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?` + regexp.QuoteMeta(host) + `/anime/(\d+)(?:[/?#].*)?$`)
}

// DefaultPatterns maps MyAnimeList ids to AniList ids.
func DefaultPatterns() Patterns {
	return Patterns{
		Primary:   HostPattern("myanimelist.net"),
		Secondary: HostPattern("anilist.co"),
	}
}

// ExtractIDs scans identifiers for the first primary and secondary id.
func ExtractIDs(identifiers []string, p Patterns) (primary, secondary int, okPrimary, okSecondary bool) {
	for _, ident := range identifiers {
		if !okPrimary {
			primary, okPrimary = matchID(p.Primary, ident)
		}
		if !okSecondary {
			secondary, okSecondary = matchID(p.Secondary, ident)
		}
		if okPrimary && okSecondary {
			break
		}
	}
	return primary, secondary, okPrimary, okSecondary
}

func matchID(re *regexp.Regexp, s string) (int, bool) {
	if re == nil {
		return 0, false
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
