package engine

import "testing"

func TestParseSizeValid(t *testing.T) {
	cases := []struct {
		in   string
		w, h int
	}{
		{"512x512", 512, 512},
		{"1024x768", 1024, 768},
		{"256X256", 256, 256},
		{"1x1", 1, 1},
	}
	for _, c := range cases {
		w, h, err := ParseSize(c.in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", c.in, err)
		}
		if w != c.w || h != c.h {
			t.Fatalf("ParseSize(%q) = (%d,%d), want (%d,%d)", c.in, w, h, c.w, c.h)
		}
	}
}

func TestParseSizeInvalid(t *testing.T) {
	cases := []string{
		"",
		"512",
		"512x",
		"x512",
		"512y512",
		"512x512x512",
		"ax b",
		"-512x512",
		"512x-512",
		"0x512",
		"512x0",
		"512.5x512",
	}
	for _, c := range cases {
		if _, _, err := ParseSize(c); err == nil {
			t.Fatalf("ParseSize(%q): expected error", c)
		} else if !IsInvalidSize(err) {
			t.Fatalf("ParseSize(%q): expected invalid size error, got %v", c, err)
		}
	}
}
