package gdbstub

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// expectFrame computes the wire frame for payload independently of the
// package under test, so hard-coded checksums never have to be
// hand-derived in the test source.
func expectFrame(payload string) string {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	return fmt.Sprintf("$%s#%02x", payload, sum)
}

// fakeIO is an in-memory transport: inbound holds bytes not yet
// consumed by Peek/Read, outbound accumulates everything Write sends.
// peekOverride, when set, replaces the natural len(inbound) result so
// tests can force the run loop down its Read-failure paths.
type fakeIO struct {
	inbound  []byte
	outbound bytes.Buffer

	peekOverrideSet bool
	peekOverride    int
	forceReadStatus StatusCode
}

func (f *fakeIO) Peek() int {
	if f.peekOverrideSet {
		return f.peekOverride
	}
	return len(f.inbound)
}

func (f *fakeIO) Read(dst []byte) (int, StatusCode) {
	if f.forceReadStatus != Success {
		return 0, f.forceReadStatus
	}
	n := copy(dst, f.inbound)
	f.inbound = f.inbound[n:]
	return n, Success
}

func (f *fakeIO) Write(src []byte) StatusCode {
	f.outbound.Write(src)
	return Success
}

// fakeTarget is a minimal in-memory target implementing every required
// method plus the optional ones a given test needs, via embedded
// function fields left nil by default.
type fakeTarget struct {
	state TargetState
	regs  []RegisterDescriptor
	mem   map[uint64]byte
	cmds  []MonitorCommand
	arch  Architecture

	stopCalls int
	contCalls int
	stepCalls int

	tpSetFn   func(addr uint64, kind TracePointKind, action TracePointAction) StatusCode
	tpClearFn func(addr uint64) StatusCode
	restartFn func() StatusCode
	killFn    func() StatusCode
	stepFn    func() StatusCode

	regScratch []byte
}

func (f *fakeTarget) GetState() TargetState { return f.state }
func (f *fakeTarget) Stop() StatusCode      { f.stopCalls++; f.state = StateStopped; return Success }
func (f *fakeTarget) Step() StatusCode {
	f.stepCalls++
	if f.stepFn != nil {
		return f.stepFn()
	}
	return Success
}
func (f *fakeTarget) Cont() StatusCode      { f.contCalls++; return Success }

func (f *fakeTarget) MemRead(addr uint64, dst []byte) StatusCode {
	for i := range dst {
		dst[i] = f.mem[addr+uint64(i)]
	}
	return Success
}

func (f *fakeTarget) MemWrite(addr uint64, src []byte) StatusCode {
	if f.mem == nil {
		f.mem = map[uint64]byte{}
	}
	for i, b := range src {
		f.mem[addr+uint64(i)] = b
	}
	return Success
}

func (f *fakeTarget) RegsRead(indices []int, dst []byte) StatusCode {
	off := 0
	for _, idx := range indices {
		w := f.regs[idx].byteWidth()
		roff := 0
		for j := 0; j < idx; j++ {
			roff += f.regs[j].byteWidth()
		}
		copy(dst[off:off+w], f.regScratch[roff:roff+w])
		off += w
	}
	return Success
}

func (f *fakeTarget) RegsWrite(indices []int, src []byte) StatusCode {
	off := 0
	for _, idx := range indices {
		w := f.regs[idx].byteWidth()
		roff := 0
		for j := 0; j < idx; j++ {
			roff += f.regs[j].byteWidth()
		}
		copy(f.regScratch[roff:roff+w], src[off:off+w])
		off += w
	}
	return Success
}

func (f *fakeTarget) Registers() []RegisterDescriptor { return f.regs }
func (f *fakeTarget) Commands() []MonitorCommand       { return f.cmds }
func (f *fakeTarget) Architecture() Architecture       { return f.arch }

func (f *fakeTarget) TPSet(addr uint64, kind TracePointKind, action TracePointAction) StatusCode {
	if f.tpSetFn == nil {
		return NotSupported
	}
	return f.tpSetFn(addr, kind, action)
}

func (f *fakeTarget) TPClear(addr uint64) StatusCode {
	if f.tpClearFn == nil {
		return NotSupported
	}
	return f.tpClearFn(addr)
}

func (f *fakeTarget) Restart() StatusCode {
	if f.restartFn == nil {
		return NotSupported
	}
	return f.restartFn()
}

func (f *fakeTarget) Kill() StatusCode {
	if f.killFn == nil {
		return NotSupported
	}
	return f.killFn()
}

func newFakeTarget(arch Architecture, regs []RegisterDescriptor) *fakeTarget {
	return &fakeTarget{
		arch:       arch,
		regs:       regs,
		mem:        map[uint64]byte{},
		regScratch: make([]byte, 64),
	}
}

func newTestSession(t *testing.T, target Target, io IO) *Session {
	t.Helper()
	s, err := NewSession(Config{IO: io, Target: target, Allocator: systemAllocatorForTest{}})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

type systemAllocatorForTest struct{}

func (systemAllocatorForTest) Alloc(n int) ([]byte, StatusCode) { return make([]byte, n), Success }
func (systemAllocatorForTest) Free([]byte)                      {}

// feedRaw delivers exactly raw (already-framed, possibly malformed)
// bytes to the session, the way the run loop would after a read(2).
func feedRaw(s *Session, io *fakeIO, raw string) {
	io.inbound = append(io.inbound, []byte(raw)...)
	tail, status := s.pbuf.growForRead(len(raw))
	if status != Success {
		panic(status)
	}
	n, _ := io.Read(tail)
	if n < len(raw) {
		s.pbuf.truncate(s.pbuf.len() - (len(raw) - n))
	}
	s.framer.feed(n)
}

// feedPacket frames payload with a correct checksum before delivering
// it, for tests that exercise dispatch rather than checksum handling.
func feedPacket(s *Session, io *fakeIO, payload string) {
	feedRaw(s, io, expectFrame(payload))
}

func TestQueryReplySignalsTrap(t *testing.T) {
	io := &fakeIO{}
	target := newFakeTarget(ArchArm, nil)
	s := newTestSession(t, target, io)

	feedPacket(s, io, "?")

	want := "+" + expectFrame("S05")
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestQSupportedAndTargetXML(t *testing.T) {
	io := &fakeIO{}
	regs := []RegisterDescriptor{{Name: "r0", BitSize: 32, Kind: RegGP}}
	target := newFakeTarget(ArchArm, regs)
	s := newTestSession(t, target, io)

	feedPacket(s, io, "qSupported:xmlRegisters=arm")
	want := "+" + expectFrame("qXfer:features:read+")
	if got := io.outbound.String(); got != want {
		t.Fatalf("qSupported: got %q want %q", got, want)
	}

	io.outbound.Reset()
	feedPacket(s, io, "qXfer:features:read:target.xml:0,1000")
	out := io.outbound.String()
	if out[0] != '+' {
		t.Fatalf("expected ack before xfer reply, got %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("<architecture>arm</architecture>")) {
		t.Fatalf("xml missing architecture tag: %q", out)
	}
	if !bytes.Contains([]byte(out), []byte(`<reg name="r0" bitsize="32"/>`)) {
		t.Fatalf("xml missing r0 register element: %q", out)
	}
	if out[1] != '$' || out[2] != 'l' {
		t.Fatalf("expected final-window 'l' marker, got %q", out)
	}
}

func TestReadMemoryZeroed(t *testing.T) {
	io := &fakeIO{}
	target := newFakeTarget(ArchArm, nil)
	s := newTestSession(t, target, io)

	feedPacket(s, io, "m0,4")
	want := "+" + expectFrame("00000000")
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestTracePointSetWithAndWithoutSupport(t *testing.T) {
	io := &fakeIO{}
	target := newFakeTarget(ArchArm, nil)
	target.tpSetFn = func(addr uint64, kind TracePointKind, action TracePointAction) StatusCode {
		if addr != 0xdeadbeef || kind != TPExecSw {
			t.Fatalf("unexpected tp_set args: addr=%x kind=%v", addr, kind)
		}
		return Success
	}
	s := newTestSession(t, target, io)
	feedPacket(s, io, "Z0,deadbeef,4")
	want := "+" + expectFrame("OK")
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	io2 := &fakeIO{}
	target2 := newFakeTarget(ArchArm, nil)
	s2 := newTestSession(t, target2, io2)
	feedPacket(s2, io2, "Z0,deadbeef,4")
	want2 := "+" + expectFrame("")
	if got := io2.outbound.String(); got != want2 {
		t.Fatalf("got %q want %q", got, want2)
	}
}

func TestVContNegotiationAndContinue(t *testing.T) {
	io := &fakeIO{}
	target := newFakeTarget(ArchArm, nil)
	s := newTestSession(t, target, io)

	feedPacket(s, io, "vCont?")
	want := "+" + expectFrame("vCont;s;c;t")
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	io.outbound.Reset()
	feedPacket(s, io, "vCont;c")
	if got := io.outbound.String(); got != "+" {
		t.Fatalf("got %q want just ack", got)
	}
	if s.lastState != StateRunning {
		t.Fatalf("expected last state Running, got %v", s.lastState)
	}
	if target.contCalls != 1 {
		t.Fatalf("expected one cont call, got %d", target.contCalls)
	}
}

func TestOutOfBandInterrupt(t *testing.T) {
	io := &fakeIO{inbound: []byte{0x03, 0x03}}
	target := newFakeTarget(ArchArm, nil)
	s := newTestSession(t, target, io)

	tail, status := s.pbuf.growForRead(len(io.inbound))
	if status != Success {
		t.Fatalf("growForRead: %v", status)
	}
	n, _ := io.Read(tail)
	s.framer.feed(n)

	if target.stopCalls != 1 {
		t.Fatalf("expected exactly one stop call, got %d", target.stopCalls)
	}
	want := expectFrame("S05")
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestChecksumMismatchSendsNackAndAwaitsRetransmit(t *testing.T) {
	io := &fakeIO{}
	target := newFakeTarget(ArchArm, nil)
	s := newTestSession(t, target, io)

	feedRaw(s, io, "$?#00") // wrong checksum, correct is 3f
	if got := io.outbound.String(); got != "-" {
		t.Fatalf("got %q want nack", got)
	}

	io.outbound.Reset()
	feedPacket(s, io, "?")
	want := "+" + expectFrame("S05")
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	io := &fakeIO{}
	regs := []RegisterDescriptor{
		{Name: "r0", BitSize: 32, Kind: RegGP},
		{Name: "pc", BitSize: 32, Kind: RegPC},
	}
	target := newFakeTarget(ArchArm, regs)
	s := newTestSession(t, target, io)

	feedPacket(s, io, "G11223344aabbccdd")
	io.outbound.Reset()
	feedPacket(s, io, "g")

	want := "+" + expectFrame("11223344aabbccdd")
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestQRcmdEchoesOutput(t *testing.T) {
	io := &fakeIO{}
	target := newFakeTarget(ArchArm, nil)
	target.cmds = []MonitorCommand{
		{
			Name: "ping",
			Handler: func(out *Output, args string) StatusCode {
				out.Printf("pong %s", args)
				return Success
			},
		},
	}
	s := newTestSession(t, target, io)

	// "ping 1" hex-encoded
	hexCmd := make([]byte, 0, 2*len("ping 1"))
	hexCmd = appendHexBytes(hexCmd, []byte("ping 1"))
	feedPacket(s, io, "qRcmd,"+string(hexCmd))

	outHex := make([]byte, 0, 2*len("pong 1"))
	outHex = appendHexBytes(outHex, []byte("pong 1"))
	want := "+" + expectFrame(string(outHex))
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRunLoopTryAgainWithoutPoller(t *testing.T) {
	io := &fakeIO{}
	target := newFakeTarget(ArchArm, nil)
	s := newTestSession(t, target, io)

	if status := s.Run(); status != TryAgain {
		t.Fatalf("got %v want TryAgain", status)
	}
}

func TestRunLoopSurfacesPeerDisconnect(t *testing.T) {
	io := &fakeIO{peekOverrideSet: true, peekOverride: 1, forceReadStatus: PeerDisconnected}
	target := newFakeTarget(ArchArm, nil)
	s := newTestSession(t, target, io)

	if status := s.Run(); status != PeerDisconnected {
		t.Fatalf("got %v want PeerDisconnected", status)
	}
}

type polledOnceIO struct {
	*fakeIO
	polled bool
}

func (p *polledOnceIO) Poll() StatusCode {
	if p.polled {
		return InternalError
	}
	p.polled = true
	p.inbound = append(p.inbound, []byte(expectFrame("?"))...)
	return Success
}

func TestRunLoopBlocksInPollThenDispatches(t *testing.T) {
	base := &fakeIO{}
	io := &polledOnceIO{fakeIO: base}
	target := newFakeTarget(ArchArm, nil)
	s := newTestSession(t, target, io)

	status := s.Run()
	if status != InternalError {
		t.Fatalf("got %v want InternalError (second empty poll)", status)
	}
	want := "+" + expectFrame("S05")
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRunLoopAnnouncesAlreadyStoppedTarget(t *testing.T) {
	io := &fakeIO{}
	target := newFakeTarget(ArchArm, nil)
	target.state = StateStopped
	s := newTestSession(t, target, io)

	if status := s.Run(); status != TryAgain {
		t.Fatalf("got %v want TryAgain", status)
	}
	want := expectFrame("S05")
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestLastErrorNilBeforeAnyCapabilityFailure(t *testing.T) {
	io := &fakeIO{}
	target := newFakeTarget(ArchArm, nil)
	s := newTestSession(t, target, io)

	if err := s.LastError(); err != nil {
		t.Fatalf("got %v want nil", err)
	}
}

func TestLastErrorSurfacesWrappedCapabilityFailure(t *testing.T) {
	io := &fakeIO{}
	target := newFakeTarget(ArchArm, nil)
	target.stepFn = func() StatusCode { return NoMemory }
	s, err := NewSession(Config{IO: io, Target: target, Allocator: systemAllocatorForTest{}, SessionID: "conn-7"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	feedPacket(s, io, "s")
	want := "+" + expectFrame("E02")
	if got := io.outbound.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	lastErr := s.LastError()
	if lastErr == nil {
		t.Fatal("expected LastError to be non-nil after a failing Step")
	}
	callErr, ok := lastErr.(*CallError)
	if !ok {
		t.Fatalf("got %T want *CallError", lastErr)
	}
	if callErr.Status != NoMemory {
		t.Fatalf("got status %v want NoMemory", callErr.Status)
	}
	if callErr.Command != 's' {
		t.Fatalf("got command %q want 's'", callErr.Command)
	}
	if !strings.Contains(callErr.Error(), "conn-7") {
		t.Fatalf("expected error to mention session id, got %q", callErr.Error())
	}
}
