package textutil

import (
	"errors"
	"reflect"
	"testing"
)

func TestPlainText(t *testing.T) {
	cases := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "strips markup", input: "  <b>Golden</b> hour <script>alert(1)</script>", want: "Golden hour"},
		{name: "keeps ampersand", input: "Bride & groom", want: "Bride & groom"},
		{name: "nfc normalises", input: "Café", want: "Café"},
		{name: "truncates runes", input: "ポートレート撮影", max: 4, want: "ポートレ"},
		{name: "blank", input: "   ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PlainText(tc.input, tc.max); got != tc.want {
				t.Fatalf("expected %q got %q", tc.want, got)
			}
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	got, err := NormalizeCurrency(" jpy ", "USD")
	if err != nil || got != "JPY" {
		t.Fatalf("expected JPY, got %q err %v", got, err)
	}
	got, err = NormalizeCurrency("", "usd")
	if err != nil || got != "USD" {
		t.Fatalf("expected default USD, got %q err %v", got, err)
	}
	if _, err := NormalizeCurrency("zzz", ""); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected invalid currency, got %v", err)
	}
}

func TestNormalizeStringMap(t *testing.T) {
	input := map[string]string{
		" order ": " bkg_1 ",
		"":        "ignored",
		"empty":   " ",
	}
	expected := map[string]string{"order": "bkg_1", "empty": ""}
	if got := NormalizeStringMap(input); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %#v got %#v", expected, got)
	}
	if NormalizeStringMap(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
}
