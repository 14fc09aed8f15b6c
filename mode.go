package dwarfs

import "io/fs"

// Unix mode bits. These are the exact 16-bit values metadata.RawEntry.Mode
// carries and metadata.Tree.Modes interns (one copy per distinct mode
// across the whole image, looked up by Entry.Mode as a pool index) --
// not a Go-side convenience encoding, so they can't be renumbered or
// reordered without breaking every image this package has ever written.
const (
	sIFMT   = 0xf000
	sIFREG  = 0x8000
	sIFDIR  = 0x4000
	sIFBLK  = 0x6000
	sIFCHR  = 0x2000
	sIFIFO  = 0x1000
	sIFLNK  = 0xa000
	sIFSOCK = 0xc000

	sISVTX = 0x200
	sISGID = 0x400
	sISUID = 0x800
)

// UnixToMode converts a raw unix mode_t value into an fs.FileMode.
func UnixToMode(mode uint32) fs.FileMode {
	res := fs.FileMode(mode & 0777)

	switch mode & sIFMT {
	case sIFCHR:
		res |= fs.ModeCharDevice | fs.ModeDevice
	case sIFBLK:
		res |= fs.ModeDevice
	case sIFDIR:
		res |= fs.ModeDir
	case sIFIFO:
		res |= fs.ModeNamedPipe
	case sIFLNK:
		res |= fs.ModeSymlink
	case sIFSOCK:
		res |= fs.ModeSocket
	}

	if mode&sISGID == sISGID {
		res |= fs.ModeSetgid
	}
	if mode&sISUID == sISUID {
		res |= fs.ModeSetuid
	}
	if mode&sISVTX == sISVTX {
		res |= fs.ModeSticky
	}

	return res
}

// ModeToUnix converts an fs.FileMode back into a raw unix mode_t value.
func ModeToUnix(mode fs.FileMode) uint32 {
	res := uint32(mode.Perm())

	switch {
	case mode&fs.ModeCharDevice == fs.ModeCharDevice:
		res |= sIFCHR
	case mode&fs.ModeDevice == fs.ModeDevice:
		res |= sIFBLK
	case mode&fs.ModeDir == fs.ModeDir:
		res |= sIFDIR
	case mode&fs.ModeNamedPipe == fs.ModeNamedPipe:
		res |= sIFIFO
	case mode&fs.ModeSymlink == fs.ModeSymlink:
		res |= sIFLNK
	case mode&fs.ModeSocket == fs.ModeSocket:
		res |= sIFSOCK
	default:
		res |= sIFREG
	}

	if mode&fs.ModeSetgid == fs.ModeSetgid {
		res |= sISGID
	}
	if mode&fs.ModeSetuid == fs.ModeSetuid {
		res |= sISUID
	}
	if mode&fs.ModeSticky == fs.ModeSticky {
		res |= sISVTX
	}

	return res
}
