package encode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/ourresearch/openalex-formatter/internal/export/flatten"
)

// Clock supplies the export date.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

const (
	wosHeader       = "FN OpenAlex\nVR 1.0\n"
	wosContinuation = "   "
	pubmedPrefix    = "https://pubmed.ncbi.nlm.nih.gov/"
	orcidPrefix     = "https://orcid.org/"
)

var wosPubTypes = map[string]string{
	"article":          "J",
	"book-chapter":     "B",
	"book":             "B",
	"conference-paper": "P",
	"preprint":         "P",
	"working-paper":    "P",
	"dataset":          "D",
	"dissertation":     "D",
	"report":           "R",
	"software":         "S",
}

var wosDocTypes = map[string]string{
	"article":                 "Article",
	"book":                    "Book",
	"book-chapter":            "Book Chapter",
	"conference-paper":        "Proceedings Paper",
	"dataset":                 "Data Paper",
	"dissertation":            "Dissertation",
	"editorial":               "Editorial Material",
	"erratum":                 "Correction",
	"grant":                   "Grant",
	"letter":                  "Letter",
	"libguides":               "Libguides",
	"other":                   "Other",
	"paratext":                "Paratext",
	"peer-review":             "Peer Review",
	"preprint":                "Preprint",
	"reference-entry":         "Reference Entry",
	"report":                  "Report",
	"retraction":              "Retraction",
	"review":                  "Review",
	"software":                "Software",
	"standard":                "Standard",
	"supplementary-materials": "Supplementary Materials",
}

// wosField renders the values of one tag. No values, or a single empty value,
// produce the bare tag unless the tag is in wosOmitEmpty.
type wosField struct {
	tag    string
	values func(w map[string]any, today time.Time) []string
}

// wosOmitEmpty lists tags left out entirely when they have no value.
var wosOmitEmpty = map[string]bool{"RP": true}

var wosFields = []wosField{
	{"PT", func(w map[string]any, _ time.Time) []string { return one(wosPubType(flatten.LookupString(w, "type"))) }},
	{"AU", authorNames},
	{"AF", authorNames},
	{"TI", func(w map[string]any, _ time.Time) []string { return one(flatten.LookupString(w, "display_name")) }},
	{"SO", func(w map[string]any, _ time.Time) []string {
		return one(flatten.LookupString(w, "primary_location", "source", "display_name"))
	}},
	{"LA", func(w map[string]any, _ time.Time) []string { return one(LanguageName(flatten.LookupString(w, "language"))) }},
	{"DT", func(w map[string]any, _ time.Time) []string { return one(wosDocType(flatten.LookupString(w, "type"))) }},
	{"C1", authorAddresses},
	{"C3", affiliations},
	{"RP", correspondingAuthor},
	{"RI", func(w map[string]any, _ time.Time) []string { return one(authorIDPairs(w, "id", "")) }},
	{"OI", func(w map[string]any, _ time.Time) []string { return one(authorIDPairs(w, "orcid", orcidPrefix)) }},
	{"FU", funders},
	{"CT", func(w map[string]any, _ time.Time) []string { return one(flatten.LookupString(w, "cited_by_count")) }},
	{"NR", func(w map[string]any, _ time.Time) []string { return one(flatten.LookupString(w, "referenced_works_count")) }},
	{"PU", func(w map[string]any, _ time.Time) []string {
		return one(flatten.LookupString(w, "primary_location", "source", "host_organization_name"))
	}},
	{"SN", issnL},
	{"EI", issnL},
	{"PD", func(w map[string]any, _ time.Time) []string { return one(publicationMonth(flatten.LookupString(w, "publication_date"))) }},
	{"PY", func(w map[string]any, _ time.Time) []string { return one(flatten.LookupString(w, "publication_year")) }},
	{"VL", func(w map[string]any, _ time.Time) []string { return one(flatten.LookupString(w, "biblio", "volume")) }},
	{"IS", func(w map[string]any, _ time.Time) []string { return one(flatten.LookupString(w, "biblio", "issue")) }},
	{"BP", func(w map[string]any, _ time.Time) []string { return one(flatten.LookupString(w, "biblio", "first_page")) }},
	{"EP", func(w map[string]any, _ time.Time) []string { return one(flatten.LookupString(w, "biblio", "last_page")) }},
	{"DI", func(w map[string]any, _ time.Time) []string {
		doi := firstNonEmpty(flatten.LookupString(w, "doi"), flatten.LookupString(w, "ids", "doi"))
		return one(strings.TrimPrefix(doi, doiPrefix))
	}},
	{"PG", func(w map[string]any, _ time.Time) []string { return one(pageCount(w)) }},
	{"PM", func(w map[string]any, _ time.Time) []string {
		return one(strings.TrimPrefix(flatten.LookupString(w, "ids", "pmid"), pubmedPrefix))
	}},
	{"OA", func(w map[string]any, _ time.Time) []string { return one(flatten.LookupString(w, "open_access", "oa_status")) }},
	{"DA", func(_ map[string]any, today time.Time) []string { return one(today.Format("2006-01-02")) }},
}

// WoSEncoder writes works in the Web of Science tagged plaintext format.
type WoSEncoder struct {
	clock Clock
}

// NewWoSEncoder returns a WoSEncoder. A nil clock uses the system clock.
func NewWoSEncoder(clock Clock) *WoSEncoder {
	if clock == nil {
		clock = systemClock{}
	}
	return &WoSEncoder{clock: clock}
}

// ContentType implements Encoder.
func (e *WoSEncoder) ContentType() string { return ContentTypeText }

// Encode implements Encoder.
func (e *WoSEncoder) Encode(ctx context.Context, job Job, w io.Writer) error {
	today := e.clock.Now()
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(wosHeader); err != nil {
		return err
	}
	err := ForEachPage(ctx, job.Pages, func(page []map[string]any) error {
		for _, work := range page {
			if _, err := bw.WriteString(WoSRecord(work, today)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// WoSRecord renders one work as a tagged record ending in ER and a blank line.
func WoSRecord(work map[string]any, today time.Time) string {
	var b strings.Builder
	for _, f := range wosFields {
		vals := f.values(work, today)
		if len(vals) == 0 || (len(vals) == 1 && vals[0] == "") {
			if wosOmitEmpty[f.tag] {
				continue
			}
			b.WriteString(f.tag)
			b.WriteByte('\n')
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", f.tag, vals[0])
		for _, v := range vals[1:] {
			b.WriteString(wosContinuation)
			b.WriteString(v)
			b.WriteByte('\n')
		}
	}
	b.WriteString("ER\n\n")
	return b.String()
}

// LanguageName returns the English name of an ISO 639-1 code, or "".
func LanguageName(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(strings.ToLower(code))
	if err != nil {
		return ""
	}
	return display.English.Languages().Name(tag)
}

func one(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

func wosPubType(t string) string {
	if pt, ok := wosPubTypes[t]; ok {
		return pt
	}
	return "U"
}

func wosDocType(t string) string {
	if dt, ok := wosDocTypes[t]; ok {
		return dt
	}
	return "Unknown"
}

func authorNames(w map[string]any, _ time.Time) []string {
	var names []string
	for _, a := range flatten.LookupList(w, "authorships") {
		if name := flatten.LookupString(a, "author", "display_name"); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// addresses renders an authorship's institutions as "name, country".
func addresses(authorship any) []string {
	var out []string
	for _, inst := range flatten.LookupList(authorship, "institutions") {
		name := flatten.LookupString(inst, "display_name")
		if name == "" {
			continue
		}
		if cc := flatten.LookupString(inst, "country_code"); cc != "" {
			name += ", " + cc
		}
		out = append(out, name)
	}
	return out
}

func authorAddresses(w map[string]any, _ time.Time) []string {
	var lines []string
	for _, a := range flatten.LookupList(w, "authorships") {
		label := "[" + flatten.LookupString(a, "author", "display_name") + "]"
		addrs := addresses(a)
		if len(addrs) == 0 {
			lines = append(lines, label)
			continue
		}
		for _, addr := range addrs {
			lines = append(lines, label+" "+addr)
		}
	}
	return lines
}

func affiliations(w map[string]any, _ time.Time) []string {
	seen := map[string]struct{}{}
	var all []string
	for _, a := range flatten.LookupList(w, "authorships") {
		for _, addr := range addresses(a) {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			all = append(all, addr)
		}
	}
	sort.Strings(all)
	return one(strings.Join(all, "; "))
}

func correspondingAuthor(w map[string]any, _ time.Time) []string {
	for _, a := range flatten.LookupList(w, "authorships") {
		if !flatten.IsTrue(a, "is_corresponding") {
			continue
		}
		parts := []string{flatten.LookupString(a, "author", "display_name") + " (corresponding author)"}
		if insts := flatten.LookupList(a, "institutions"); len(insts) > 0 {
			if name := flatten.LookupString(insts[0], "display_name"); name != "" {
				parts = append(parts, name)
			}
			if cc := flatten.LookupString(insts[0], "country_code"); cc != "" {
				parts = append(parts, cc)
			}
		}
		return one(strings.Join(parts, ", "))
	}
	return nil
}

func authorIDPairs(w map[string]any, field, stripPrefix string) string {
	var pairs []string
	for _, a := range flatten.LookupList(w, "authorships") {
		id := flatten.LookupString(a, "author", field)
		if id == "" {
			continue
		}
		name := flatten.LookupString(a, "author", "display_name")
		pairs = append(pairs, name+"/"+strings.TrimPrefix(id, stripPrefix))
	}
	return strings.Join(pairs, ", ")
}

func funders(w map[string]any, _ time.Time) []string {
	var out []string
	for _, g := range flatten.LookupList(w, "grants") {
		funder := flatten.LookupString(g, "funder_display_name")
		if funder == "" {
			continue
		}
		if award := flatten.LookupString(g, "award_id"); award != "" {
			funder += " [" + award + "]"
		}
		out = append(out, funder)
	}
	return one(strings.Join(out, "; "))
}

func issnL(w map[string]any, _ time.Time) []string {
	return one(flatten.LookupString(w, "primary_location", "source", "issn_l"))
}

func publicationMonth(date string) string {
	if len(date) < 7 {
		return ""
	}
	m, err := strconv.Atoi(date[5:7])
	if err != nil || m < 1 || m > 12 {
		return ""
	}
	return strings.ToUpper(time.Month(m).String()[:3])
}

func pageCount(w map[string]any) string {
	first, err1 := strconv.Atoi(flatten.LookupString(w, "biblio", "first_page"))
	last, err2 := strconv.Atoi(flatten.LookupString(w, "biblio", "last_page"))
	if err1 != nil || err2 != nil || last < first {
		return ""
	}
	return strconv.Itoa(last - first + 1)
}
