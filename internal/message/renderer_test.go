package message

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/campaign"
)

func TestRenderMergeTags(t *testing.T) {
	r := NewRenderer()
	lead := &campaign.Lead{
		ID:        uuid.New(),
		FirstName: "Ada",
		LastName:  "Lovelace",
		Company:   "analytical engines",
	}

	out, err := r.Render("c1:1", "Hi {{ first_name }}, saw your work at {{ company | capitalize }}.", Bindings(lead))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "Hi Ada, saw your work at Analytical engines."
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRenderDefaultFilter(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("c1:2", `Hey {{ first_name | default: "there" }}!`, Bindings(&campaign.Lead{}))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hey there!" {
		t.Errorf("got %q", out)
	}
}

func TestRenderEmptyTemplate(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("c1:3", "", nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty output, got %q", out)
	}
}

func TestRenderParseError(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render("c1:4", "{{ broken", nil)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parse template") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRenderCachesParsedTemplates(t *testing.T) {
	r := NewRenderer()
	tpl := "Hello {{ full_name }}"
	lead := &campaign.Lead{FirstName: "Grace", LastName: "Hopper"}

	for i := 0; i < 3; i++ {
		out, err := r.Render("c1:5", tpl, Bindings(lead))
		if err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
		if out != "Hello Grace Hopper" {
			t.Errorf("render %d: got %q", i, out)
		}
	}

	count := 0
	r.cache.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	if count != 1 {
		t.Errorf("expected 1 cached template, got %d", count)
	}
}

func TestRenderPicksUpSameLengthEdit(t *testing.T) {
	r := NewRenderer()
	lead := &campaign.Lead{FirstName: "Ada"}

	out, err := r.Render("c1:6", "Hello {{ first_name }}", Bindings(lead))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hello Ada" {
		t.Errorf("got %q", out)
	}

	// Same key, same byte length, different content: the edit must not
	// be served from the old compiled template.
	out, err = r.Render("c1:6", "Howdy {{ first_name }}", Bindings(lead))
	if err != nil {
		t.Fatalf("render edit: %v", err)
	}
	if out != "Howdy Ada" {
		t.Errorf("got %q after edit", out)
	}
}
