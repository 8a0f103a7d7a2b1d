package encode

import (
	"strings"

	"github.com/ourresearch/openalex-formatter/internal/export/flatten"
)

// ContentTypeBibTeX is served for single-work citations.
const ContentTypeBibTeX = "application/x-bibtex; charset=utf-8"

var bibTeXTypes = map[string]string{
	"article":         "article",
	"book":            "book",
	"book-chapter":    "incollection",
	"dissertation":    "phdthesis",
	"report":          "techreport",
	"dataset":         "misc",
	"reference-entry": "inbook",
	"preprint":        "unpublished",
}

// BibTeXType maps a work type to a BibTeX entry type. Unknown types are misc.
func BibTeXType(workType string) string {
	if ty, ok := bibTeXTypes[workType]; ok {
		return ty
	}
	return "misc"
}

var bibTeXEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	"{", `\{`,
	"}", `\}`,
	"&", `\&`,
	"%", `\%`,
	"$", `\$`,
	"#", `\#`,
	"_", `\_`,
)

type bibTeXEntry struct {
	b strings.Builder
}

func (e *bibTeXEntry) field(name, value string) {
	if value == "" {
		return
	}
	e.b.WriteString("  ")
	e.b.WriteString(name)
	e.b.WriteString(" = {")
	e.b.WriteString(bibTeXEscaper.Replace(value))
	e.b.WriteString("},\n")
}

// BibTeXEntry renders one work as a BibTeX entry keyed by its short id.
func BibTeXEntry(work map[string]any) string {
	var e bibTeXEntry

	e.b.WriteString("@")
	e.b.WriteString(BibTeXType(flatten.LookupString(work, "type")))
	e.b.WriteString("{")
	e.b.WriteString(bibTeXKey(work))
	e.b.WriteString(",\n")

	e.field("title", firstNonEmpty(flatten.LookupString(work, "title"), flatten.LookupString(work, "display_name")))

	var authors []string
	for _, a := range flatten.LookupList(work, "authorships") {
		if name := flatten.LookupString(a, "author", "display_name"); name != "" {
			authors = append(authors, name)
		}
	}
	e.field("author", strings.Join(authors, " and "))

	source := flatten.LookupString(work, "primary_location", "source", "display_name")
	switch BibTeXType(flatten.LookupString(work, "type")) {
	case "article":
		e.field("journal", source)
	case "incollection", "inbook":
		e.field("booktitle", source)
	}
	e.field("year", flatten.LookupString(work, "publication_year"))
	e.field("volume", flatten.LookupString(work, "biblio", "volume"))
	e.field("number", flatten.LookupString(work, "biblio", "issue"))
	e.field("pages", bibTeXPages(
		flatten.LookupString(work, "biblio", "first_page"),
		flatten.LookupString(work, "biblio", "last_page"),
	))
	e.field("publisher", flatten.LookupString(work, "primary_location", "source", "host_organization_name"))
	e.field("issn", flatten.LookupString(work, "primary_location", "source", "issn_l"))
	e.field("language", flatten.LookupString(work, "language"))

	doiURL := firstNonEmpty(flatten.LookupString(work, "ids", "doi"), flatten.LookupString(work, "doi"))
	if doiURL != "" {
		e.field("doi", bareDOI(doiURL))
		e.field("url", doiURL)
	} else {
		e.field("url", flatten.LookupString(work, "id"))
	}

	e.b.WriteString("}\n")
	return e.b.String()
}

func bibTeXKey(work map[string]any) string {
	id := flatten.LookupString(work, "id")
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if id == "" {
		return "work"
	}
	return id
}

func bibTeXPages(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "" || last == first:
		return first
	default:
		return first + "--" + last
	}
}
