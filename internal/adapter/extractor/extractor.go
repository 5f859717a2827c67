package extractor

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/pkg/utils"
)

type rule struct {
	field    string
	selector string
	attr     string
}

// Extractor pulls one string per field out of an HTML document. Each field
// takes the first element matching its selector; "css@attr" reads the
// attribute instead of the text.
type Extractor struct {
	rules []rule
}

// New compiles a field to selector map.
func New(fields map[string]string) (*Extractor, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("extractor needs at least one field")
	}
	rules := make([]rule, 0, len(fields))
	for field, expr := range fields {
		r := rule{field: field, selector: expr}
		if i := strings.LastIndex(expr, "@"); i > 0 {
			r.selector, r.attr = expr[:i], expr[i+1:]
		}
		if _, err := cascadia.Compile(r.selector); err != nil {
			return nil, fmt.Errorf("field %s: bad selector %q: %w", field, r.selector, err)
		}
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].field < rules[j].field })
	return &Extractor{rules: rules}, nil
}

// Fields lists the output field names in sorted order.
func (e *Extractor) Fields() []string {
	out := make([]string, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.field
	}
	return out
}

// Extract parses html and returns every declared field. Fields whose
// selector matches nothing are present with an empty value.
func (e *Extractor) Extract(r io.Reader) (entity.Fields, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return e.ExtractDocument(doc), nil
}

func (e *Extractor) ExtractString(html string) (entity.Fields, error) {
	return e.Extract(strings.NewReader(html))
}

func (e *Extractor) ExtractDocument(doc *goquery.Document) entity.Fields {
	doc.Find("script, style").Remove()
	out := make(entity.Fields, len(e.rules))
	for _, r := range e.rules {
		sel := doc.Find(r.selector).First()
		var v string
		if r.attr != "" {
			v, _ = sel.Attr(r.attr)
		} else {
			v = sel.Text()
		}
		out[r.field] = utils.SqueezeSpace(v)
	}
	return out
}
