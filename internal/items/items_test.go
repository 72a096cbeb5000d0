package items

import (
	"testing"

	"unrat/internal/cil"
)

// body is a static constructor storing one value of every kind.
var body = []byte{
	0x17, 0x80, 0x01, 0x00, 0x00, 0x04,                         // ldc.i4.1; stsfld Field#1
	0x20, 0x9A, 0x1B, 0x00, 0x00, 0x80, 0x02, 0x00, 0x00, 0x04, // ldc.i4 7066; stsfld Field#2
	0x14, 0x80, 0x03, 0x00, 0x00, 0x04,                         // ldnull; stsfld Field#3
	0x1F, 0x1A, 0x80, 0x04, 0x00, 0x00, 0x04,                   // ldc.i4.s 26; stsfld Field#4
	0x72, 0x01, 0x00, 0x00, 0x70, 0x80, 0x05, 0x00, 0x00, 0x04, // ldstr; stsfld Field#5
	0x1F, 0x20,                                                 // ldc.i4.s 32
	0x8D, 0x10, 0x00, 0x00, 0x01,                               // newarr System.Byte
	0x25,                                                       // dup
	0xD0, 0x07, 0x00, 0x00, 0x04,                               // ldtoken Field#7
	0x28, 0x01, 0x00, 0x00, 0x0A,                               // call InitializeArray
	0x80, 0x06, 0x00, 0x00, 0x04,                               // stsfld Field#6
	0x15, 0x80, 0x08, 0x00, 0x00, 0x04,                         // ldc.i4.m1; stsfld Field#8
	0x16, 0x80, 0x09, 0x00, 0x00, 0x04,                         // ldc.i4.0; stsfld Field#9
	0x2A,                                                       // ret
}

func parse(t *testing.T, s Schema) []Pair {
	t.Helper()
	return s.Parse(cil.Disassemble(body, cil.Options{}))
}

func TestBool(t *testing.T) {
	got := parse(t, Bool{})
	if len(got) != 2 {
		t.Fatalf("Bool pairs = %+v", got)
	}
	if got[0].Field != 0x04000001 || got[0].Value.Plain != true {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Field != 0x04000009 || got[1].Value.Plain != false {
		t.Errorf("second = %+v", got[1])
	}
}

func TestInt(t *testing.T) {
	got := parse(t, Int{})
	if len(got) != 2 {
		t.Fatalf("Int pairs = %+v", got)
	}
	if got[0].Field != 0x04000002 || got[0].Value.Plain != int64(7066) {
		t.Errorf("ldc.i4 = %+v", got[0])
	}
	if got[1].Field != 0x04000008 || got[1].Value.Plain != int64(-1) {
		t.Errorf("ldc.i4.m1 = %+v", got[1])
	}
}

func TestNullAndFolder(t *testing.T) {
	null := parse(t, Null{})
	if len(null) != 1 || null[0].Field != 0x04000003 || null[0].Value.Plain != "null" {
		t.Errorf("Null = %+v", null)
	}
	folder := parse(t, SpecialFolder{})
	if len(folder) != 1 || folder[0].Field != 0x04000004 || folder[0].Value.Plain != "ApplicationData" {
		t.Errorf("SpecialFolder = %+v", folder)
	}
	if FolderName(999) != "999" {
		t.Errorf("FolderName(999) = %q", FolderName(999))
	}
}

func TestEncryptedString(t *testing.T) {
	got := parse(t, EncryptedString{})
	if len(got) != 1 {
		t.Fatalf("EncryptedString = %+v", got)
	}
	v := got[0].Value
	if got[0].Field != 0x04000005 || v.Kind != KindEncryptedString || v.StringToken != 0x70000001 {
		t.Errorf("EncryptedString = %+v", got[0])
	}
}

func TestByteArray(t *testing.T) {
	got := parse(t, ByteArray{})
	if len(got) != 1 {
		t.Fatalf("ByteArray = %+v", got)
	}
	v := got[0].Value
	if got[0].Field != 0x04000006 || v.Kind != KindByteArray || v.Size != 32 || v.DataToken != 0x04000007 {
		t.Errorf("ByteArray = %+v", got[0])
	}
}

func TestDefaultOrder(t *testing.T) {
	want := []string{"bool", "byte_array", "int", "null", "special_folder", "encrypted_string"}
	got := Default()
	if len(got) != len(want) {
		t.Fatalf("Default = %d schemas", len(got))
	}
	for i, s := range got {
		if s.Name() != want[i] {
			t.Errorf("Default[%d] = %s, want %s", i, s.Name(), want[i])
		}
	}
	if KindByteArray.String() != "byte_array" || Kind(9).String() != "Kind(9)" {
		t.Error("Kind.String mismatch")
	}
}
