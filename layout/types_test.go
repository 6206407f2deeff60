package layout

import "testing"

func TestLayoutConfigFingerprint(t *testing.T) {
	base := LayoutConfig{FontScale: 1, PageWidth: 390, PageHeight: 760, HorizontalPadding: 16, VerticalPadding: 16}

	if base.Fingerprint() != base.Fingerprint() {
		t.Fatal("fingerprint is not stable")
	}

	variants := []LayoutConfig{
		{FontScale: 1.1, PageWidth: 390, PageHeight: 760, HorizontalPadding: 16, VerticalPadding: 16},
		{FontScale: 1, PageWidth: 391, PageHeight: 760, HorizontalPadding: 16, VerticalPadding: 16},
		{FontScale: 1, PageWidth: 390, PageHeight: 761, HorizontalPadding: 16, VerticalPadding: 16},
		{FontScale: 1, PageWidth: 390, PageHeight: 760, HorizontalPadding: 17, VerticalPadding: 16},
		{FontScale: 1, PageWidth: 390, PageHeight: 760, HorizontalPadding: 16, VerticalPadding: 17},
	}
	for i, v := range variants {
		if v.Fingerprint() == base.Fingerprint() {
			t.Errorf("variant %d collides with base: %s", i, v.Fingerprint())
		}
	}
}

func TestLayoutKeyFingerprint(t *testing.T) {
	a := LayoutKey{ViewportWidth: 390, ViewportHeight: 760, FontScale: 1, MarginSize: 20}
	b := a
	b.MarginSize = 24

	if a.Fingerprint() == b.Fingerprint() {
		t.Error("distinct keys share a fingerprint")
	}
	if a.Fingerprint() != a.Fingerprint() {
		t.Error("fingerprint is not stable")
	}
}

func TestCharRange(t *testing.T) {
	r := CharRange{Location: 5, Length: 3}

	if r.End() != 8 {
		t.Errorf("End() = %d", r.End())
	}
	for off, want := range map[int]bool{4: false, 5: true, 7: true, 8: false} {
		if r.Contains(off) != want {
			t.Errorf("Contains(%d) = %v", off, !want)
		}
	}
}

func TestBookPageCountsTotal(t *testing.T) {
	c := BookPageCounts{SpinePageCounts: []int{3, 1, 7}}
	if c.TotalPages() != 11 {
		t.Errorf("TotalPages() = %d", c.TotalPages())
	}
}
