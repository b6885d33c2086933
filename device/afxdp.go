// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package device

import (
	"net"
	"unsafe"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"golang.org/x/sys/unix"

	"github.com/intel-go/maptperf/common"
)

// XDPPort is an AF_XDP socket bound to queue 0 of a NIC, used either
// for sending or for receiving. A small XDP program redirects every
// frame arriving on the queue into the socket.
//
// XDPPort is not safe for concurrent use; exactly one measurement loop
// owns it.
type XDPPort struct {
	fd        int
	frameSize uint32
	numFrames uint32

	umem []byte

	rx xdpRing
	tx xdpRing
	fq umemRing
	cq umemRing

	freeFrames []uint64
	rxAddrs    []uint64

	prog    *ebpf.Program
	xsksMap *ebpf.Map
	link    link.Link
}

// kernel structures of linux/if_xdp.h not covered by x/sys/unix
type xdpRingOffset struct {
	Producer uint64
	Consumer uint64
	Desc     uint64
	Flags    uint64
}

type xdpMmapOffsets struct {
	Rx xdpRingOffset
	Tx xdpRingOffset
	Fr xdpRingOffset
	Cr xdpRingOffset
}

type xdpDesc struct {
	Addr uint64
	Len  uint32
	Opts uint32
}

// xdpRing is an RX or TX descriptor ring shared with the kernel.
type xdpRing struct {
	cachedProd uint32
	cachedCons uint32
	mask       uint32
	size       uint32
	prod       *uint32
	cons       *uint32
	descs      []xdpDesc
	region     []byte
}

// umemRing is a fill or completion ring carrying raw UMEM offsets.
type umemRing struct {
	cachedProd uint32
	cachedCons uint32
	mask       uint32
	size       uint32
	prod       *uint32
	cons       *uint32
	addrs      []uint64
	region     []byte
}

const xdpFrameSize = 2048

func portErr(err error, message string) error {
	return common.WrapWithTesterError(err, message, common.FailToInitPort)
}

// OpenXDPPort opens an AF_XDP socket on queue 0 of the interface with a
// UMEM of numFrames frames and attaches the redirecting XDP program.
func OpenXDPPort(ifName string, numFrames int) (*XDPPort, error) {
	netIf, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, portErr(err, "network port '"+ifName+"' is not available")
	}

	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
	if err != nil {
		return nil, portErr(err, "cannot create AF_XDP socket for '"+ifName+"'")
	}
	p := &XDPPort{
		fd:        fd,
		frameSize: xdpFrameSize,
		numFrames: uint32(numFrames),
	}

	// UMEM: one anonymous page-backed region holding every frame
	p.umem, err = unix.Mmap(-1, 0, numFrames*xdpFrameSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return nil, portErr(err, "cannot map UMEM for '"+ifName+"'")
	}
	reg := unix.XDPUmemReg{
		Addr: uint64(uintptr(unsafe.Pointer(&p.umem[0]))),
		Len:  uint64(len(p.umem)),
		Size: xdpFrameSize,
	}
	if err := setsockoptXDPUmemReg(fd, unix.SOL_XDP, unix.XDP_UMEM_REG, &reg); err != nil {
		return nil, portErr(err, "cannot register UMEM for '"+ifName+"'")
	}

	// ring sizes
	for _, opt := range []struct {
		name int
		size int
	}{
		{unix.XDP_RX_RING, PortRxQueueSize},
		{unix.XDP_TX_RING, PortTxQueueSize},
		{unix.XDP_UMEM_FILL_RING, PortRxQueueSize},
		{unix.XDP_UMEM_COMPLETION_RING, PortTxQueueSize},
	} {
		if err := unix.SetsockoptInt(fd, unix.SOL_XDP, opt.name, opt.size); err != nil {
			return nil, portErr(err, "cannot size AF_XDP rings for '"+ifName+"'")
		}
	}

	var off xdpMmapOffsets
	if err := getsockoptXDPMmapOffsets(fd, &off); err != nil {
		return nil, portErr(err, "cannot read AF_XDP ring offsets for '"+ifName+"'")
	}

	if err := p.mapRings(&off); err != nil {
		return nil, portErr(err, "cannot map AF_XDP rings for '"+ifName+"'")
	}

	if err := unix.Bind(fd, &unix.SockaddrXDP{Ifindex: uint32(netIf.Index), QueueID: 0}); err != nil {
		return nil, portErr(err, "cannot bind AF_XDP socket to '"+ifName+"'")
	}

	if err := p.attachRedirect(netIf.Index); err != nil {
		return nil, err
	}

	// every UMEM frame starts out owned by userspace; the receive side
	// hands as many of them as the fill ring has room for to the kernel
	p.freeFrames = make([]uint64, 0, numFrames)
	for i := numFrames - 1; i >= 0; i-- {
		p.freeFrames = append(p.freeFrames, uint64(i)*xdpFrameSize)
	}
	p.rxAddrs = make([]uint64, 0, MaxPktBurst)
	return p, nil
}

func (p *XDPPort) mapRings(off *xdpMmapOffsets) error {
	rxLen := int(off.Rx.Desc) + PortRxQueueSize*int(unsafe.Sizeof(xdpDesc{}))
	region, err := unix.Mmap(p.fd, unix.XDP_PGOFF_RX_RING, rxLen,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return err
	}
	p.rx = makeRing(region, off.Rx, PortRxQueueSize, false)

	txLen := int(off.Tx.Desc) + PortTxQueueSize*int(unsafe.Sizeof(xdpDesc{}))
	region, err = unix.Mmap(p.fd, unix.XDP_PGOFF_TX_RING, txLen,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return err
	}
	p.tx = makeRing(region, off.Tx, PortTxQueueSize, true)

	fqLen := int(off.Fr.Desc) + PortRxQueueSize*8
	region, err = unix.Mmap(p.fd, unix.XDP_UMEM_PGOFF_FILL_RING, fqLen,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return err
	}
	p.fq = makeUmemRing(region, off.Fr, PortRxQueueSize)

	cqLen := int(off.Cr.Desc) + PortTxQueueSize*8
	region, err = unix.Mmap(p.fd, unix.XDP_UMEM_PGOFF_COMPLETION_RING, cqLen,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return err
	}
	p.cq = makeUmemRing(region, off.Cr, PortTxQueueSize)
	return nil
}

func makeRing(region []byte, off xdpRingOffset, size uint32, isTx bool) xdpRing {
	base := unsafe.Pointer(&region[0])
	r := xdpRing{
		mask:   size - 1,
		size:   size,
		prod:   (*uint32)(unsafe.Add(base, off.Producer)),
		cons:   (*uint32)(unsafe.Add(base, off.Consumer)),
		descs:  unsafe.Slice((*xdpDesc)(unsafe.Add(base, off.Desc)), size),
		region: region,
	}
	if isTx {
		r.cachedCons = size
	}
	return r
}

func makeUmemRing(region []byte, off xdpRingOffset, size uint32) umemRing {
	base := unsafe.Pointer(&region[0])
	return umemRing{
		mask:   size - 1,
		size:   size,
		prod:   (*uint32)(unsafe.Add(base, off.Producer)),
		cons:   (*uint32)(unsafe.Add(base, off.Consumer)),
		addrs:  unsafe.Slice((*uint64)(unsafe.Add(base, off.Desc)), size),
		region: region,
	}
}

func setsockoptXDPUmemReg(fd, level, opt int, reg *unix.XDPUmemReg) error {
	_, _, e := unix.Syscall6(unix.SYS_SETSOCKOPT,
		uintptr(fd), uintptr(level), uintptr(opt),
		uintptr(unsafe.Pointer(reg)), unsafe.Sizeof(*reg), 0)
	if e != 0 {
		return e
	}
	return nil
}

func getsockoptXDPMmapOffsets(fd int, off *xdpMmapOffsets) error {
	l := uint32(unsafe.Sizeof(*off))
	_, _, e := unix.Syscall6(unix.SYS_GETSOCKOPT,
		uintptr(fd), unix.SOL_XDP, unix.XDP_MMAP_OFFSETS,
		uintptr(unsafe.Pointer(off)), uintptr(unsafe.Pointer(&l)), 0)
	if e != 0 {
		return e
	}
	return nil
}

// attachRedirect loads a minimal XDP program equivalent to
//
//	return bpf_redirect_map(&xsks_map, ctx->rx_queue_index, XDP_PASS);
//
// and registers the socket for queue 0 in the map.
func (p *XDPPort) attachRedirect(ifIndex int) error {
	xsksMap, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "xsks_map",
		Type:       ebpf.XSKMap,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: 1,
	})
	if err != nil {
		return portErr(err, "cannot create XSK map")
	}
	p.xsksMap = xsksMap

	insns := asm.Instructions{
		// r2 = ctx->rx_queue_index
		asm.LoadMem(asm.R2, asm.R1, 16, asm.Word),
		// r1 = &xsks_map
		asm.LoadMapPtr(asm.R1, xsksMap.FD()),
		// r3 = XDP_PASS for frames with no socket in the map
		asm.Mov.Imm(asm.R3, 2),
		asm.FnRedirectMap.Call(),
		asm.Return(),
	}
	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "xdp_sock_prog",
		Type:         ebpf.XDP,
		Instructions: insns,
		License:      "BSD",
	})
	if err != nil {
		return portErr(err, "cannot load the XDP redirect program")
	}
	p.prog = prog

	l, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifIndex,
	})
	if err != nil {
		return portErr(err, "cannot attach the XDP redirect program")
	}
	p.link = l

	if err := xsksMap.Put(uint32(0), uint32(p.fd)); err != nil {
		return portErr(err, "cannot register the AF_XDP socket for queue 0")
	}
	return nil
}

// fillRx hands free UMEM frames to the kernel for reception.
func (p *XDPPort) fillRx() {
	p.fq.cachedCons = loadAcquire(p.fq.cons)
	free := p.fq.cachedCons + p.fq.size - p.fq.cachedProd
	for free > 0 && len(p.freeFrames) > 0 {
		addr := p.freeFrames[len(p.freeFrames)-1]
		p.freeFrames = p.freeFrames[:len(p.freeFrames)-1]
		p.fq.addrs[p.fq.cachedProd&p.fq.mask] = addr
		p.fq.cachedProd++
		free--
	}
	storeRelease(p.fq.prod, p.fq.cachedProd)
}

// reapTx recycles UMEM frames of completed transmissions.
func (p *XDPPort) reapTx() {
	p.cq.cachedProd = loadAcquire(p.cq.prod)
	for p.cq.cachedCons != p.cq.cachedProd {
		p.freeFrames = append(p.freeFrames, p.cq.addrs[p.cq.cachedCons&p.cq.mask])
		p.cq.cachedCons++
	}
	storeRelease(p.cq.cons, p.cq.cachedCons)
}

// TxBurst implements Port.
func (p *XDPPort) TxBurst(frames [][]byte) int {
	p.reapTx()
	sent := 0
	for _, frame := range frames {
		if len(p.freeFrames) == 0 {
			break
		}
		if p.tx.cachedCons-p.tx.cachedProd == 0 {
			p.tx.cachedCons = loadAcquire(p.tx.cons) + p.tx.size
			if p.tx.cachedCons-p.tx.cachedProd == 0 {
				break
			}
		}
		addr := p.freeFrames[len(p.freeFrames)-1]
		p.freeFrames = p.freeFrames[:len(p.freeFrames)-1]
		copy(p.umem[addr:addr+uint64(len(frame))], frame)
		d := &p.tx.descs[p.tx.cachedProd&p.tx.mask]
		d.Addr = addr
		d.Len = uint32(len(frame))
		p.tx.cachedProd++
		sent++
	}
	if sent > 0 {
		storeRelease(p.tx.prod, p.tx.cachedProd)
		// zero-length sendto is the TX doorbell of AF_XDP
		err := unix.Sendto(p.fd, nil, unix.MSG_DONTWAIT, nil)
		if err != nil && err != unix.EAGAIN && err != unix.EBUSY {
			return sent
		}
	}
	return sent
}

// RxBurst implements Port.
func (p *XDPPort) RxBurst(frames [][]byte) int {
	// the first call hands the free frames to the kernel; later calls
	// recycle what the previous burst handed out
	if len(p.rxAddrs) > 0 {
		p.freeFrames = append(p.freeFrames, p.rxAddrs...)
		p.rxAddrs = p.rxAddrs[:0]
		p.fillRx()
	} else if p.fq.cachedProd == 0 {
		p.fillRx()
	}

	p.rx.cachedProd = loadAcquire(p.rx.prod)
	n := 0
	for n < len(frames) && p.rx.cachedCons != p.rx.cachedProd {
		d := p.rx.descs[p.rx.cachedCons&p.rx.mask]
		frames[n] = p.umem[d.Addr : d.Addr+uint64(d.Len)]
		p.rxAddrs = append(p.rxAddrs, d.Addr)
		p.rx.cachedCons++
		n++
	}
	if n > 0 {
		storeRelease(p.rx.cons, p.rx.cachedCons)
	}
	return n
}

// Close implements Port.
func (p *XDPPort) Close() error {
	if p.link != nil {
		p.link.Close()
	}
	if p.prog != nil {
		p.prog.Close()
	}
	if p.xsksMap != nil {
		p.xsksMap.Close()
	}
	for _, region := range [][]byte{p.rx.region, p.tx.region, p.fq.region, p.cq.region, p.umem} {
		if region != nil {
			unix.Munmap(region)
		}
	}
	return unix.Close(p.fd)
}
