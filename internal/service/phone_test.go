package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIdentifier(t *testing.T) {
	cases := []struct {
		name, in, region, want string
	}{
		{"email lowercased", "  Ada@Example.COM ", "US", "ada@example.com"},
		{"national us", "(415) 555-0100", "US", "+14155550100"},
		{"national gb", "020 7946 0018", "GB", "+442079460018"},
		{"international ignores region", "+46 70 123 45 67", "US", "+46701234567"},
		{"empty region falls back", "415-555-0100", "", "+14155550100"},
		{"lowercase region", "020 7946 0018", "gb", "+442079460018"},
		{"unparseable unchanged", "not-a-number", "US", "not-a-number"},
		{"empty", "", "US", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, NormalizeIdentifier(c.in, c.region))
		})
	}
}
