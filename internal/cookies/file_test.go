package cookies

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestFileProvisionsMatchingCookies(t *testing.T) {
	src := filepath.Join(t.TempDir(), "export.txt")
	err := SaveNetscape(src, []Cookie{
		{Domain: ".youtube.com", IncludeSubdomains: true, Path: "/", Expires: time.Unix(1800000000, 0).UTC(), Name: "SID", Value: "a"},
		{Domain: "www.youtube.com", Path: "/", Name: "PREF", Value: "b"},
		{Domain: ".facebook.com", Path: "/", Name: "c_user", Value: "c"},
	})
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	jar, err := File{Path: src}.Provision(context.Background(), "youtube.com", dir)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if jar.Len() != 2 || jar.Domain != "youtube.com" {
		t.Fatalf("jar = %+v", jar)
	}
	if jar.File() != filepath.Join(dir, FileName) {
		t.Fatalf("jar file = %q", jar.File())
	}
	written, err := LoadNetscape(jar.File())
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 2 || written[0].Name != "SID" || written[1].Name != "PREF" {
		t.Fatalf("written cookies = %+v", written)
	}
}

func TestFileWithoutMatchingCookiesProvisionsNothing(t *testing.T) {
	src := filepath.Join(t.TempDir(), "export.txt")
	if err := SaveNetscape(src, []Cookie{{Domain: ".facebook.com", Path: "/", Name: "c_user", Value: "c"}}); err != nil {
		t.Fatal(err)
	}
	jar, err := File{Path: src}.Provision(context.Background(), "twitter.com", t.TempDir())
	if err != nil || jar != nil {
		t.Fatalf("Provision = %+v, %v", jar, err)
	}
}

func TestFileMissingExport(t *testing.T) {
	_, err := File{Path: filepath.Join(t.TempDir(), "absent.txt")}.Provision(context.Background(), "x.com", t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing cookie file")
	}
}

func TestAppliesTo(t *testing.T) {
	tests := []struct {
		cookie, domain string
		want           bool
	}{
		{".youtube.com", "youtube.com", true},
		{"youtube.com", "music.youtube.com", true},
		{"www.youtube.com", "youtube.com", true},
		{".notyoutube.com", "youtube.com", false},
		{"", "youtube.com", false},
	}
	for _, tt := range tests {
		if got := appliesTo(tt.cookie, tt.domain); got != tt.want {
			t.Errorf("appliesTo(%q, %q) = %v, want %v", tt.cookie, tt.domain, got, tt.want)
		}
	}
}
