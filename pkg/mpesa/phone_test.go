package mpesa

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "0712345678", want: "254712345678"},
		{in: "712345678", want: "254712345678"},
		{in: "254712345678", want: "254712345678"},
		{in: "+254 712 345 678", want: "254712345678"},
		{in: "0112345678", want: "254112345678"},
		{in: "112345678", want: "254112345678"},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if err != nil {
			t.Fatalf("NormalizePhone(%q) returned error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhoneRejects(t *testing.T) {
	for _, in := range []string{"123456", "", "07123456789", "2547123456", "phone"} {
		if _, err := NormalizePhone(in); !errors.Is(err, ErrInvalidPhone) {
			t.Fatalf("NormalizePhone(%q) expected ErrInvalidPhone, got %v", in, err)
		}
	}
}
