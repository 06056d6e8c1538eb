package platform

// mbrBootstrapSize is the size of the MBR boot code area. Bytes 446
// through 509 hold the partition table and must never be touched, so
// every write of this blob goes out with bs=446 and conv=notrunc.
const mbrBootstrapSize = 446

// genericMBRCode is a minimal real-mode bootstrap. It relocates itself
// from 0x7C00 to 0x0600, scans the relocated partition table for the
// active entry, loads that partition's first sector to 0x7C00 with up
// to five INT 13h retries, verifies the 0xAA55 signature and chains to
// it. Any failure drops to INT 18h.
var genericMBRCode = []byte{
	0xFA,             // cli
	0x31, 0xC0,       // xor ax, ax
	0x8E, 0xD0,       // mov ss, ax
	0xBC, 0x00, 0x7C, // mov sp, 0x7C00
	0x8E, 0xD8,       // mov ds, ax
	0x8E, 0xC0,       // mov es, ax
	0xFB,             // sti
	0xFC,             // cld
	0xBE, 0x00, 0x7C, // mov si, 0x7C00
	0xBF, 0x00, 0x06, // mov di, 0x0600
	0xB9, 0x00, 0x01, // mov cx, 0x0100
	0xF3, 0xA5,       // rep movsw
	0xEA, 0x1E, 0x06, 0x00, 0x00, // jmp 0x0000:0x061E

	// relocated entry (0x061E): find the active partition. The copy
	// sits at 0x0600, so its partition table is at 0x0600+0x1BE.
	0xBE, 0xBE, 0x07, // mov si, 0x07BE
	0xB9, 0x04, 0x00, // mov cx, 4
	// scan:
	0x8A, 0x04,       // mov al, [si]
	0xA8, 0x80,       // test al, 0x80
	0x75, 0x07,       // jnz found
	0x83, 0xC6, 0x10, // add si, 0x10
	0xE2, 0xF5,       // loop scan
	0xEB, 0x2B,       // jmp fail

	// found: load the active partition's boot sector
	0xB2, 0x80,       // mov dl, 0x80
	0x8A, 0x74, 0x01, // mov dh, [si+1]
	0x8B, 0x4C, 0x02, // mov cx, [si+2]
	0xBB, 0x00, 0x7C, // mov bx, 0x7C00
	0xBF, 0x05, 0x00, // mov di, 5
	// read:
	0xB8, 0x01, 0x02, // mov ax, 0x0201
	0xCD, 0x13,       // int 0x13
	0x73, 0x09,       // jnc check
	0x31, 0xC0,       // xor ax, ax
	0xCD, 0x13,       // int 0x13 (reset disk)
	0x4F,             // dec di
	0x75, 0xF2,       // jnz read
	0xEB, 0x0D,       // jmp fail

	// check: verify signature, chain to the volume boot record
	0x81, 0x3E, 0xFE, 0x7D, 0x55, 0xAA, // cmp word [0x7DFE], 0xAA55
	0x75, 0x05,                         // jne fail
	0xEA, 0x00, 0x7C, 0x00, 0x00,       // jmp 0x0000:0x7C00

	// fail:
	0xCD, 0x18, // int 0x18
	0xEB, 0xFE, // jmp $
}

// GenericMBR returns the 446-byte boot code area: the bootstrap padded
// with zeros. The caller is responsible for leaving the partition table
// intact when writing it.
func GenericMBR() []byte {
	out := make([]byte, mbrBootstrapSize)
	copy(out, genericMBRCode)
	return out
}
