package trap

import (
	"bytes"
	"strings"
	"testing"

	"nodeos/kernel/cpu"
	"nodeos/kernel/kfmt"
)

type mockVM struct {
	calls   int
	resolve bool
}

func (m *mockVM) ResolveFault(_ *cpu.CPU, _ *Frame) bool {
	m.calls++
	return m.resolve
}

type mockSys struct {
	calls int
}

func (m *mockSys) Syscall(_ *cpu.CPU, _ *Frame) {
	m.calls++
}

type mockProc uint8

func (p mockProc) HomeNode() uint8 {
	return uint8(p)
}

type mockSched struct {
	proc    mockProc
	yields  int
	returns int
	status  int
}

func (m *mockSched) Current(_ *cpu.CPU) Process {
	return m.proc
}

func (m *mockSched) Yield(_ *cpu.CPU, _ *Frame) {
	m.yields++
}

func (m *mockSched) ReturnToParent(_ *cpu.CPU, _ *Frame, status int) {
	m.returns++
	m.status = status
}

type mockNet struct {
	node       uint8
	ticks      int
	migrations int
	migratedTo uint8
}

func (m *mockNet) NodeID() uint8 {
	return m.node
}

func (m *mockNet) Tick() {
	m.ticks++
}

func (m *mockNet) Migrate(_ *cpu.CPU, _ *Frame, node uint8) {
	m.migrations++
	m.migratedTo = node
}

type mockIntCtl struct {
	eois int
}

func (m *mockIntCtl) EOI() {
	m.eois++
}

type mocks struct {
	vm     *mockVM
	sys    *mockSys
	sched  *mockSched
	net    *mockNet
	intCtl *mockIntCtl
}

func newTestDispatcher() (*Dispatcher, *mocks) {
	m := &mocks{
		vm:     &mockVM{},
		sys:    &mockSys{},
		sched:  &mockSched{proc: mockProc(1)},
		net:    &mockNet{node: 1},
		intCtl: &mockIntCtl{},
	}
	return NewDispatcher(m.vm, m.sys, m.sched, m.net, m.intCtl), m
}

func kernelFrame(v Vector) *Frame {
	return &Frame{Num: v, CS: KernelCS}
}

func userFrame(v Vector) *Frame {
	return &Frame{Num: v, CS: UserCS}
}

func TestDispatchPageFaultResolved(t *testing.T) {
	d, m := newTestDispatcher()
	m.vm.resolve = true

	tf := kernelFrame(PageFault)
	d.Dispatch(cpu.Boot(), tf)

	if m.vm.calls != 1 {
		t.Fatalf("expected the fault resolver to be consulted once; got %d calls", m.vm.calls)
	}
	if m.sched.returns != 0 || m.sched.yields != 0 {
		t.Fatal("expected a resolved page fault to bypass the scheduler")
	}
}

func TestDispatchPageFaultBeatsRecovery(t *testing.T) {
	d, m := newTestDispatcher()
	m.vm.resolve = true

	recovered := false
	guard := d.InstallRecovery(cpu.Boot(), func(_ *Frame, _ interface{}) { recovered = true }, nil)
	defer guard.Done()

	d.Dispatch(cpu.Boot(), userFrame(PageFault))

	if m.vm.calls != 1 || recovered {
		t.Fatal("expected a resolvable page fault to resume without invoking recovery")
	}
}

func TestDispatchRecoveryBeatsEvents(t *testing.T) {
	d, m := newTestDispatcher()

	var got Vector
	guard := d.InstallRecovery(cpu.Boot(), func(tf *Frame, _ interface{}) { got = tf.Num }, nil)
	defer guard.Done()

	d.Dispatch(cpu.Boot(), kernelFrame(Syscall))

	if got != Syscall {
		t.Fatalf("expected the recovery function to observe vector %d; got %d", Syscall, got)
	}
	if m.sys.calls != 0 {
		t.Fatal("expected an armed recovery slot to shadow the system call handler")
	}
}

func TestDispatchRecoveryUnresolvedPageFault(t *testing.T) {
	d, m := newTestDispatcher()

	var got Vector
	guard := d.InstallRecovery(cpu.Boot(), func(tf *Frame, _ interface{}) { got = tf.Num }, nil)
	defer guard.Done()

	d.Dispatch(cpu.Boot(), kernelFrame(PageFault))

	if m.vm.calls != 1 || got != PageFault {
		t.Fatal("expected an unresolved page fault to fall through to the recovery slot")
	}
}

func TestDispatchSyscall(t *testing.T) {
	d, m := newTestDispatcher()

	d.Dispatch(cpu.Boot(), userFrame(Syscall))

	if m.sys.calls != 1 {
		t.Fatalf("expected one system call; got %d", m.sys.calls)
	}
	if m.intCtl.eois != 0 {
		t.Fatal("expected no interrupt acknowledge for a software trap")
	}
}

func TestDispatchTimer(t *testing.T) {
	d, m := newTestDispatcher()

	// A timer tick in kernel mode drives the transport but must not
	// preempt the kernel.
	d.Dispatch(cpu.Boot(), kernelFrame(LocalTimer))
	if m.net.ticks != 1 || m.intCtl.eois != 1 || m.sched.yields != 0 {
		t.Fatalf("expected tick+EOI without yield; got ticks=%d eois=%d yields=%d", m.net.ticks, m.intCtl.eois, m.sched.yields)
	}

	// The same tick at user privilege additionally preempts.
	d.Dispatch(cpu.Boot(), userFrame(LocalTimer))
	if m.net.ticks != 2 || m.intCtl.eois != 2 || m.sched.yields != 1 {
		t.Fatalf("expected tick+EOI+yield; got ticks=%d eois=%d yields=%d", m.net.ticks, m.intCtl.eois, m.sched.yields)
	}
}

func TestDispatchDeviceISRs(t *testing.T) {
	d, m := newTestDispatcher()

	var kbd, nic int
	d.RegisterISR(IRQKeyboard, func() { kbd++ })

	// Device vectors are matched dynamically against whatever the driver
	// registered, not against a fixed list.
	nicVector := IRQBase + 11
	d.RegisterISR(nicVector, func() { nic++ })

	d.Dispatch(cpu.Boot(), kernelFrame(IRQKeyboard))
	d.Dispatch(cpu.Boot(), userFrame(nicVector))

	if kbd != 1 || nic != 1 {
		t.Fatalf("expected each registered handler to run once; got kbd=%d nic=%d", kbd, nic)
	}
	if m.intCtl.eois != 2 {
		t.Fatalf("expected every serviced interrupt to be acknowledged; got %d", m.intCtl.eois)
	}
}

func TestDispatchSpurious(t *testing.T) {
	d, m := newTestDispatcher()

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	d.Dispatch(cpu.Boot(), kernelFrame(IRQSpurious))

	if !strings.Contains(buf.String(), "spurious interrupt") {
		t.Fatalf("expected a spurious interrupt to be logged; got %q", buf.String())
	}
	if m.intCtl.eois != 0 {
		t.Fatal("expected no acknowledge cycle for a spurious interrupt")
	}
}

func TestDispatchUserTrapLocalProcess(t *testing.T) {
	d, m := newTestDispatcher()
	m.sched.proc = mockProc(1)
	m.net.node = 1

	d.Dispatch(cpu.Boot(), userFrame(GeneralProtection))

	if m.sched.returns != 1 || m.sched.status != -1 {
		t.Fatalf("expected the trap to be reflected to the parent with status -1; got returns=%d status=%d", m.sched.returns, m.sched.status)
	}
	if m.net.migrations != 0 {
		t.Fatal("expected no migration for a locally homed process")
	}
}

func TestDispatchUserTrapRemoteProcess(t *testing.T) {
	d, m := newTestDispatcher()
	m.sched.proc = mockProc(3)
	m.net.node = 1

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	d.Dispatch(cpu.Boot(), userFrame(DivideError))

	if m.net.migrations != 1 || m.net.migratedTo != 3 {
		t.Fatalf("expected the process to migrate to its home node 3; got migrations=%d to=%d", m.net.migrations, m.net.migratedTo)
	}
	if m.sched.returns != 0 {
		t.Fatal("expected no parent reflection before the process is back home")
	}
}

func TestDispatchFatal(t *testing.T) {
	d, _ := newTestDispatcher()

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	var panicked interface{}
	defer func(old func(interface{})) { panicFn = old }(panicFn)
	panicFn = func(e interface{}) { panicked = e }

	tf := kernelFrame(GeneralProtection)
	tf.Code = 0x10
	tf.Regs.RAX = 0xbadc0de
	d.Dispatch(cpu.Boot(), tf)

	if panicked != errUnhandledTrap {
		t.Fatalf("expected the unhandled trap panic; got %v", panicked)
	}

	got := buf.String()
	for _, exp := range []string{
		"unhandled kernel-mode trap 13 (general protection fault)",
		"RAX = 000000000badc0de",
		"err = 0000000000000010",
	} {
		if !strings.Contains(got, exp) {
			t.Errorf("expected the fatal dump to contain %q; dump:\n%s", exp, got)
		}
	}
}

func TestDispatchFatalUnregisteredDeviceVector(t *testing.T) {
	d, _ := newTestDispatcher()

	kfmt.SetOutputSink(&bytes.Buffer{})
	defer kfmt.SetOutputSink(nil)

	var panicked interface{}
	defer func(old func(interface{})) { panicFn = old }(panicFn)
	panicFn = func(e interface{}) { panicked = e }

	// An interrupt on a vector no driver claimed is not a kernel event;
	// taken in kernel mode it is fatal.
	d.Dispatch(cpu.Boot(), kernelFrame(IRQBase+5))

	if panicked != errUnhandledTrap {
		t.Fatalf("expected the unhandled trap panic; got %v", panicked)
	}
}

func TestRecoveryGuardNesting(t *testing.T) {
	d, _ := newTestDispatcher()

	guard := d.InstallRecovery(cpu.Boot(), func(_ *Frame, _ interface{}) {}, nil)

	defer func() {
		if got := recover(); got != errRecoveryNested {
			t.Fatalf("expected the nested recovery panic; got %v", got)
		}
		guard.Done()

		// After Done the slot is free again.
		d.InstallRecovery(cpu.Boot(), func(_ *Frame, _ interface{}) {}, nil).Done()
	}()

	d.InstallRecovery(cpu.Boot(), func(_ *Frame, _ interface{}) {}, nil)
}

func TestRecoveryPerCPU(t *testing.T) {
	d, m := newTestDispatcher()

	// Arming recovery on one processor must not shadow events on another.
	guard := d.InstallRecovery(cpu.Get(1), func(_ *Frame, _ interface{}) {}, nil)
	defer guard.Done()

	d.Dispatch(cpu.Boot(), userFrame(Syscall))

	if m.sys.calls != 1 {
		t.Fatal("expected recovery armed on cpu 1 to leave cpu 0 dispatch unaffected")
	}
}
