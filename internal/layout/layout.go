// Package layout names the fixed virtual/physical address boundaries
// spec.md's Memory layout section describes: where the kernel's half of
// the address space begins, where the I/O hole and device MMIO region
// sit, and the user/kernel split every page directory must respect.
// Grounded on the conventional xv6 memlayout.h values original_source/
// references (vm.c, kalloc.c, main.c) but never ships as a header of its
// own in the retrieved source.
package layout

// KERNBASE is the lowest virtual address the kernel maps itself at; user
// addresses below it belong exclusively to one process, addresses at or
// above it map the identical kernel image in every directory.
const KERNBASE = 0x80000000

// EXTMEM is the size of the low I/O hole mapped 1:1 below the kernel's
// loaded image.
const EXTMEM = 0x100000

// KERNLINK is the physical offset the kernel's text+rodata segment is
// linked to start at, immediately above the I/O hole.
const KERNLINK = EXTMEM

// DEVSPACE is the high end of the virtual address space reserved for
// memory-mapped device registers.
const DEVSPACE = 0xFE000000

// PHYSTOP is not fixed here: bootcfg.Config.PhysTopMB is the actual knob,
// since spec.md's boot scenarios vary it (16 MiB by default). KERNBASE,
// EXTMEM, KERNLINK, and DEVSPACE stay fixed because they describe the
// virtual-address map, not how much RAM a given boot simulates.
