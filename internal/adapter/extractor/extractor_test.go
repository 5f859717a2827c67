package extractor

import (
	"reflect"
	"testing"
)

const page = `<html><head><title> Acme   Corp </title><script>var x = "noise";</script></head>
<body>
  <h1 class="name">Acme&#x3000;Corp
     Ltd</h1>
  <a class="site" href="https://acme.example.com/">site</a>
  <table><tr><th>Phone</th><td id="phone"> 03-1234-5678 </td></tr></table>
</body></html>`

func TestExtract(t *testing.T) {
	e, err := New(map[string]string{
		"title": "title",
		"name":  "h1.name",
		"site":  "a.site@href",
		"phone": "#phone",
		"fax":   "#fax",
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.ExtractString(page)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"title": "Acme Corp",
		"name":  "Acme Corp Ltd",
		"site":  "https://acme.example.com/",
		"phone": "03-1234-5678",
		"fax":   "",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Errorf("got %d fields, want %d", len(got), len(want))
	}
	if f := e.Fields(); !reflect.DeepEqual(f, []string{"fax", "name", "phone", "site", "title"}) {
		t.Errorf("Fields() = %v", f)
	}
}

func TestNewRejectsBadSelector(t *testing.T) {
	if _, err := New(map[string]string{"x": "div[["}); err == nil {
		t.Error("expected error for invalid selector")
	}
	if _, err := New(nil); err == nil {
		t.Error("expected error for empty field map")
	}
}
