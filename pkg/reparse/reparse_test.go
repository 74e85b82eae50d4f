package reparse

import "testing"

func TestRawNiceConversion(t *testing.T) {
	cases := map[string]string{
		`\??\C:\foo`:           `\\?\C:\foo`,
		`\??\Volume{abc}\x`:    `\\?\Volume{abc}\x`,
		`..\relative\target`:   `..\relative\target`,
		`C:\already\nice\path`: `C:\already\nice\path`,
	}
	for raw, nice := range cases {
		if got := RawToNice(raw); got != nice {
			t.Errorf("RawToNice(%q) = %q, want %q", raw, got, nice)
		}
		if got := NiceToRaw(nice); got != raw && raw != nice {
			t.Errorf("NiceToRaw(%q) = %q, want %q", nice, got, raw)
		}
	}
}

func TestEncodeDecodeJunction(t *testing.T) {
	in := &PointData{
		Tag:            TagMountPoint,
		SubstituteName: `\??\C:\Program Files`,
		PrintName:      `C:\Program Files`,
	}
	buf, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Tag != in.Tag || out.SubstituteName != in.SubstituteName || out.PrintName != in.PrintName {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
	if !out.IsJunction() || out.IsSymlink() {
		t.Error("tag predicates wrong for junction")
	}
}

func TestEncodeDecodeSymlink(t *testing.T) {
	for _, relative := range []bool{false, true} {
		in := &PointData{
			Tag:            TagSymlink,
			SubstituteName: `..\sibling`,
			PrintName:      `..\sibling`,
			IsRelative:     relative,
		}
		buf, err := Encode(in)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		out, err := Decode(buf)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if out.IsRelative != relative {
			t.Errorf("IsRelative = %v, want %v", out.IsRelative, relative)
		}
		if out.SubstituteName != in.SubstituteName || out.PrintName != in.PrintName {
			t.Errorf("round trip mismatch: %+v != %+v", out, in)
		}
	}
}

func TestDecodeUnrecognizedTag(t *testing.T) {
	in := &PointData{Tag: TagSymlink, SubstituteName: `\??\C:\x`, PrintName: `C:\x`}
	buf, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Rewrite the tag to something foreign (a WCI reparse point).
	buf[0], buf[1], buf[2], buf[3] = 0x18, 0x00, 0x00, 0x90
	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.IsJunction() || out.IsSymlink() {
		t.Error("foreign tag must not classify as junction or symlink")
	}
	if out.SubstituteName != "" {
		t.Error("foreign tags must not be parsed for names")
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short buffer")
	}
	in := &PointData{Tag: TagMountPoint, SubstituteName: `\??\C:\x`, PrintName: `C:\x`}
	buf, _ := Encode(in)
	if _, err := Decode(buf[:10]); err == nil {
		t.Error("expected error for truncated buffer")
	}
}

func TestEncodeRejectsForeignTag(t *testing.T) {
	if _, err := Encode(&PointData{Tag: 0x90001800}); err == nil {
		t.Error("expected error encoding foreign tag")
	}
}
