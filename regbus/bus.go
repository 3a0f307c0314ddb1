// Package regbus defines how the engine reaches device registers.
package regbus

// Bus is a 32-bit register aperture. Implementations must be safe for
// concurrent use; the interrupt handler and client calls share one bus.
type Bus interface {
	Read32(addr uint32) uint32
	Write32(addr uint32, value uint32)
}

// Modify performs a read-modify-write that replaces the bits in mask with
// value. Bits of value outside mask are ignored.
func Modify(b Bus, addr, mask, value uint32) {
	old := b.Read32(addr)
	b.Write32(addr, (old&^mask)|(value&mask))
}
