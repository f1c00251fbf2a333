package indexer

import "testing"

func TestChecksumStableAcrossOrder(t *testing.T) {
	a := []Document{
		{Name: "a.txt", Size: 5, Content: []byte("alpha")},
		{Name: "b.txt", Size: 4, Content: []byte("beta")},
	}
	b := []Document{
		{Name: "b.txt", Size: 4, Content: []byte("beta")},
		{Name: "a.txt", Size: 5, Content: []byte("alpha")},
	}
	if Checksum(a) != Checksum(b) {
		t.Fatalf("checksum should not depend on document order")
	}
}

func TestChecksumSensitiveToContent(t *testing.T) {
	base := []Document{{Name: "a.txt", Size: 5, Content: []byte("alpha")}}
	edited := []Document{{Name: "a.txt", Size: 5, Content: []byte("alphb")}}
	if Checksum(base) == Checksum(edited) {
		t.Fatalf("checksum should change when content changes")
	}
}

func TestChecksumSensitiveToRename(t *testing.T) {
	base := []Document{{Name: "a.txt", Size: 5, Content: []byte("alpha")}}
	renamed := []Document{{Name: "b.txt", Size: 5, Content: []byte("alpha")}}
	if Checksum(base) == Checksum(renamed) {
		t.Fatalf("checksum should change when a document is renamed")
	}
}

func TestChecksumSensitiveToAddedDocument(t *testing.T) {
	base := []Document{{Name: "a.txt", Size: 5, Content: []byte("alpha")}}
	added := append([]Document{}, base...)
	added = append(added, Document{Name: "b.txt", Size: 4, Content: []byte("beta")})
	if Checksum(base) == Checksum(added) {
		t.Fatalf("checksum should change when a document is added")
	}
}

func TestChecksumEmptySet(t *testing.T) {
	if Checksum(nil) != Checksum([]Document{}) {
		t.Fatalf("empty sets should hash identically")
	}
}
