package encode

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/ourresearch/openalex-formatter/internal/export/flatten"
)

var risTypes = map[string]string{
	"article":         "JOUR",
	"book-chapter":    "CHAP",
	"dissertation":    "THES",
	"book":            "BOOK",
	"dataset":         "DATA",
	"paratext":        "GEN",
	"other":           "GEN",
	"reference-entry": "ENTRY",
	"report":          "RPRT",
	"peer-review":     "JOUR",
	"standard":        "STAND",
	"editorial":       "JOUR",
	"erratum":         "ERRT",
	"grant":           "GEN",
	"letter":          "LETTER",
}

const doiPrefix = "https://doi.org/"

// RISType maps a work type to its RIS TY code. Unknown types are GEN.
func RISType(workType string) string {
	if ty, ok := risTypes[workType]; ok {
		return ty
	}
	return "GEN"
}

// RISEncoder writes works as RIS records.
type RISEncoder struct{}

// NewRISEncoder returns a RISEncoder.
func NewRISEncoder() *RISEncoder { return &RISEncoder{} }

// ContentType implements Encoder.
func (e *RISEncoder) ContentType() string { return ContentTypeRIS }

// Encode implements Encoder.
func (e *RISEncoder) Encode(ctx context.Context, job Job, w io.Writer) error {
	bw := bufio.NewWriter(w)
	err := ForEachPage(ctx, job.Pages, func(page []map[string]any) error {
		for _, work := range page {
			if _, err := bw.WriteString(RISEntry(work)); err != nil {
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

type risEntry struct {
	b strings.Builder
}

func (r *risEntry) line(tag, value string) {
	r.b.WriteString(tag)
	r.b.WriteString("  - ")
	r.b.WriteString(value)
	r.b.WriteByte('\n')
}

func (r *risEntry) optional(tag, value string) {
	if value != "" {
		r.line(tag, value)
	}
}

// RISEntry renders one work, terminated by the end tag and a blank line.
func RISEntry(work map[string]any) string {
	var e risEntry

	e.line("TY", RISType(flatten.LookupString(work, "type")))
	e.optional("TI", firstNonEmpty(flatten.LookupString(work, "title"), flatten.LookupString(work, "display_name")))
	e.optional("PY", flatten.LookupString(work, "publication_year"))
	e.optional("PB", flatten.LookupString(work, "primary_location", "source", "host_organization_name"))

	if doiURL := firstNonEmpty(flatten.LookupString(work, "ids", "doi"), flatten.LookupString(work, "doi")); doiURL != "" {
		doi := bareDOI(doiURL)
		e.line("DO", doi)
		e.line("DOI", doi)
		e.line("DI", doi)
		e.line("URL", doiURL)
	}
	e.optional("DA", flatten.LookupString(work, "publication_date"))

	for _, a := range flatten.LookupList(work, "authorships") {
		e.optional("AU", flatten.LookupString(a, "author", "display_name"))
		for _, aff := range flatten.LookupList(a, "raw_affiliation_strings") {
			e.optional("C1", flatten.Scalar(aff))
		}
	}

	e.optional("LA", flatten.LookupString(work, "language"))
	for _, kw := range flatten.LookupList(work, "keywords") {
		e.optional("KW", firstNonEmpty(flatten.LookupString(kw, "keyword"), flatten.LookupString(kw, "display_name")))
	}
	e.optional("SN", firstNonEmpty(
		flatten.LookupString(work, "ids", "issn"),
		flatten.LookupString(work, "primary_location", "source", "issn_l"),
	))
	e.optional("VL", flatten.LookupString(work, "biblio", "volume"))
	e.optional("IS", flatten.LookupString(work, "biblio", "issue"))
	e.optional("SP", flatten.LookupString(work, "biblio", "first_page"))
	e.optional("EP", flatten.LookupString(work, "biblio", "last_page"))

	e.b.WriteString("ER  - \n\n")
	return e.b.String()
}

func bareDOI(doiURL string) string {
	if i := strings.Index(doiURL, ".org/"); i >= 0 {
		return doiURL[i+len(".org/"):]
	}
	return strings.TrimPrefix(doiURL, doiPrefix)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
