package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalStreet(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain street", input: "Kuusitie", want: "KUUSITIE"},
		{name: "extra whitespace", input: "  Ala-Malmin   tori ", want: "ALA-MALMIN TORI"},
		{name: "abbreviated katu", input: "Hämeen k.", want: "HÄMEEN KATU"},
		{name: "abbreviated kuja", input: "Koivu kj", want: "KOIVU KUJA"},
		{name: "swedish gatan", input: "Stor gt.", want: "STOR GATAN"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalStreet(tt.input))
		})
	}
}

func TestCanonicalHouseNumber(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"12", "12"},
		{"12 a", "12A"},
		{"12A", "12A"},
		{" 3-5 ", "3-5"},
		{"7 b.", "7B"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalHouseNumber(tt.input))
		})
	}
}

func TestCanonicalPostalCode(t *testing.T) {
	assert.Equal(t, "01900", CanonicalPostalCode("FI-01900 Nurmijärvi"))
	assert.Equal(t, "00100", CanonicalPostalCode("00100"))
	assert.Equal(t, "unknown", CanonicalPostalCode(" unknown "))
}

func TestSplitStreetAddress(t *testing.T) {
	street, number := SplitStreetAddress("Kuusitie 12 A")
	assert.Equal(t, "Kuusitie", street)
	assert.Equal(t, "12 A", number)

	street, number = SplitStreetAddress("Vanha Porvoontie")
	assert.Equal(t, "Vanha Porvoontie", street)
	assert.Empty(t, number)
}
