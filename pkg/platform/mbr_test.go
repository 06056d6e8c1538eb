package platform

import "testing"

func TestGenericMBR(t *testing.T) {
	blob := GenericMBR()

	if len(blob) != 446 {
		t.Fatalf("len = %d, want 446 (must not overlap the partition table)", len(blob))
	}
	if blob[0] != 0xFA {
		t.Errorf("bootstrap does not start with cli: %#x", blob[0])
	}
	for i := len(genericMBRCode); i < len(blob); i++ {
		if blob[i] != 0 {
			t.Fatalf("padding byte %d = %#x, want 0", i, blob[i])
		}
	}

	// Callers may scribble on the returned slice; a second call must
	// hand back pristine code.
	blob[0] = 0
	if again := GenericMBR(); again[0] != 0xFA {
		t.Error("GenericMBR returns a shared buffer")
	}
}

// Structural checks of the bootstrap: the partition table pointer must
// account for the relocation to 0x0600, and every branch must land on
// an instruction boundary.
func TestGenericMBR_Bootstrap(t *testing.T) {
	code := genericMBRCode

	// Fixed landmarks in the instruction stream.
	const (
		relocJmp  = 25 // EA far jmp to the relocated entry
		tableLoad = 30 // BE: mov si, imm16 (partition table pointer)
		scanFail  = 47 // EB: jmp fail after the scan loop
		readJNC   = 68 // 73: jnc check after int 13h
		readFail  = 77 // EB: jmp fail after retries exhausted
		check     = 79 // 81 3E: cmp word [0x7DFE], 0xAA55
		sigJNE    = 85 // 75: jne fail
		chainJmp  = 87 // EA far jmp 0x0000:0x7C00
		fail      = 92 // CD 18: int 0x18
	)

	if code[relocJmp] != 0xEA {
		t.Fatalf("byte %d = %#x, want far jmp", relocJmp, code[relocJmp])
	}
	entry := int(code[relocJmp+1]) | int(code[relocJmp+2])<<8
	if entry != 0x0600+tableLoad {
		t.Errorf("relocated entry = %#x, want %#x", entry, 0x0600+tableLoad)
	}

	// The code runs at 0x0600 after relocation, so the partition table
	// it scans lives at 0x0600+0x1BE, not at the original 0x7DBE.
	if code[tableLoad] != 0xBE {
		t.Fatalf("byte %d = %#x, want mov si", tableLoad, code[tableLoad])
	}
	table := int(code[tableLoad+1]) | int(code[tableLoad+2])<<8
	if table != 0x07BE {
		t.Errorf("partition table pointer = %#x, want 0x07BE", table)
	}

	if code[fail] != 0xCD || code[fail+1] != 0x18 {
		t.Fatalf("fail handler at %d = %#x %#x, want int 0x18", fail, code[fail], code[fail+1])
	}

	// Short jumps: target = offset of next instruction + displacement.
	jumps := []struct {
		name   string
		offset int
		opcode byte
		target int
	}{
		{"scan exhausted -> fail", scanFail, 0xEB, fail},
		{"read ok -> signature check", readJNC, 0x73, check},
		{"retries exhausted -> fail", readFail, 0xEB, fail},
		{"bad signature -> fail", sigJNE, 0x75, fail},
	}
	for _, j := range jumps {
		if code[j.offset] != j.opcode {
			t.Errorf("%s: opcode = %#x, want %#x", j.name, code[j.offset], j.opcode)
			continue
		}
		got := j.offset + 2 + int(int8(code[j.offset+1]))
		if got != j.target {
			t.Errorf("%s: lands at offset %d, want %d", j.name, got, j.target)
		}
	}

	if code[check] != 0x81 || code[check+1] != 0x3E {
		t.Errorf("signature check at %d = %#x %#x, want cmp word", check, code[check], code[check+1])
	}
	if code[chainJmp] != 0xEA {
		t.Errorf("byte %d = %#x, want far jmp to the volume boot record", chainJmp, code[chainJmp])
	}
}
