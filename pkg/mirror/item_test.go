package mirror

import (
	"errors"
	"testing"
	"time"

	"github.com/hobomirror/hobomirror/pkg/mirror/mirrortest"
	"github.com/hobomirror/hobomirror/pkg/reparse"
	"github.com/hobomirror/hobomirror/pkg/winfs"
)

func TestClassifyKind(t *testing.T) {
	dirAttrs := winfs.Attributes{FileAttrs: winfs.AttrDirectory}
	fileAttrs := winfs.Attributes{FileAttrs: winfs.AttrArchive}
	junctionData := &reparse.PointData{Tag: reparse.TagMountPoint}
	symlinkData := &reparse.PointData{Tag: reparse.TagSymlink}

	cases := []struct {
		name  string
		attrs winfs.Attributes
		rp    *reparse.PointData
		want  Kind
	}{
		{"plain file", fileAttrs, nil, KindFile},
		{"plain dir", dirAttrs, nil, KindDir},
		{"junction", dirAttrs, junctionData, KindJunction},
		{"file symlink", fileAttrs, symlinkData, KindFileSymlink},
		{"dir symlink", dirAttrs, symlinkData, KindDirSymlink},
	}
	for _, tc := range cases {
		got, err := classifyKind(tc.attrs, tc.rp)
		if err != nil || got != tc.want {
			t.Errorf("%s: classifyKind = %v, %v; want %v", tc.name, got, err, tc.want)
		}
	}

	_, err := classifyKind(dirAttrs, &reparse.PointData{Tag: 0x80000017})
	if !errors.Is(err, winfs.ErrUnrecognizedReparseTag) {
		t.Errorf("foreign tag error = %v, want ErrUnrecognizedReparseTag", err)
	}
}

func TestClassifyPathLengthOnlyForFiles(t *testing.T) {
	fs := mirrortest.New()
	root := fs.AddRoot("S:")
	root.AddFile("f.txt", "12345", time.Unix(0, 0))
	root.AddJunction("j", `C:\x`, time.Unix(0, 0))

	file, err := classifyPath(fs, fs, `S:\f.txt`, "f.txt")
	if err != nil || file.Kind != KindFile || file.Length != 5 {
		t.Errorf("file item = %+v, %v", file, err)
	}
	junc, err := classifyPath(fs, fs, `S:\j`, "j")
	if err != nil || junc.Kind != KindJunction || junc.Length != 0 {
		t.Errorf("junction item = %+v, %v", junc, err)
	}
	if junc.Reparse == nil {
		t.Error("junction item missing reparse data")
	}
	if file.Reparse != nil {
		t.Error("file item must not carry reparse data")
	}
}

func TestSortItemsNonDirsFirst(t *testing.T) {
	items := []Item{
		{Name: "zeta", Kind: KindDir},
		{Name: "Beta.txt", Kind: KindFile},
		{Name: "alpha", Kind: KindDir},
		{Name: "gamma", Kind: KindJunction},
		{Name: "delta", Kind: KindDirSymlink},
		{Name: "acme.txt", Kind: KindFile},
	}
	sortItems(items)

	var names []string
	for _, it := range items {
		names = append(names, it.Name)
	}
	// Links count as non-directories: leaves first, then plain dirs,
	// each group case-insensitively by name.
	want := []string{"acme.txt", "Beta.txt", "delta", "gamma", "alpha", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("sorted = %v, want %v", names, want)
		}
	}
}

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{
		KindFile:        "file",
		KindDir:         "directory",
		KindFileSymlink: "file symlink",
		KindDirSymlink:  "directory symlink",
		KindJunction:    "junction",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), k.String(), want)
		}
	}
}
