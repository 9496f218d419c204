package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"isotope/internal/form"
)

func TestDrafts(t *testing.T) {
	d := NewDrafts()
	assert.Empty(t, d.Get("s1", "cache"))

	o := form.Overrides{"serveStale": "false"}
	d.Put("s1", "cache", o)
	o["serveStale"] = "mutated"
	assert.Equal(t, form.Overrides{"serveStale": "false"}, d.Get("s1", "cache"), "stored copy")

	got := d.Get("s1", "cache")
	got["x"] = "y"
	assert.Len(t, d.Get("s1", "cache"), 1, "returned copy")

	d.Put("s1", "general", form.Overrides{"dnsServerDomain": "ns1"})
	assert.Equal(t, []string{"cache", "general"}, d.Sections("s1"))
	assert.Empty(t, d.Sections("s2"))

	d.Put("s1", "general", form.Overrides{})
	assert.Equal(t, []string{"cache"}, d.Sections("s1"))

	d.Discard("s1", "cache")
	assert.Empty(t, d.Sections("s1"))

	d.Put("s1", "cache", o)
	d.Put("s2", "cache", o)
	n := d.Sweep(func(id string) bool { return id == "s2" })
	assert.Equal(t, 1, n)
	assert.Empty(t, d.Sections("s1"))
	assert.Equal(t, []string{"cache"}, d.Sections("s2"))
}
