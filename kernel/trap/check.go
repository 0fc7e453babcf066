package trap

import (
	"nodeos/kernel"
	"nodeos/kernel/cpu"
	"nodeos/kernel/kfmt"
)

var errTrapCheckFailed = &kernel.Error{Module: "trap", Message: "trap dispatch self-test failed"}

// Addresses used by the synthetic self-test frames. The fault address plays
// the role of the faulting instruction, the resume area the role of the
// per-case recovery labels the recovery function redirects to.
const (
	checkFaultRIP  = uint64(0x100400)
	checkResumeRIP = uint64(0x100480)

	// checkCookie guards a stack slot across the whole provocation
	// sequence; a dispatch path that corrupts its caller's frame turns
	// into a visible failure instead of silent stack damage.
	checkCookie = uint32(0xfeedface)
)

// checkArgs is the shared state between the self-test driver and its
// recovery function.
type checkArgs struct {
	resumeRIP uint64
	trapNum   Vector
}

// checkRecover records which trap fired and redirects the interrupted
// context to the resume address the driver armed.
func checkRecover(tf *Frame, data interface{}) {
	args := data.(*checkArgs)
	args.trapNum = tf.Num
	tf.RIP = args.resumeRIP
}

// CheckKernel provokes the anticipated kernel-mode fault set through the full
// dispatch path and verifies each one was caught and recovered. It is a boot
// gate on the bootstrap processor and is re-run by every secondary processor
// after it loads its vector descriptor.
func (d *Dispatcher) CheckKernel(c *cpu.CPU) *kernel.Error {
	if err := d.check(c, false); err != nil {
		return err
	}
	kfmt.Printf("[trap] cpu %d: kernel trap check passed\n", c.ID)
	return nil
}

// CheckUser re-runs the fault set as if taken from user privilege, adding the
// privileged-instruction case that only exists there. The process layer runs
// it inside the first user context it builds.
func (d *Dispatcher) CheckUser(c *cpu.CPU) *kernel.Error {
	if err := d.check(c, true); err != nil {
		return err
	}
	kfmt.Printf("[trap] cpu %d: user trap check passed\n", c.ID)
	return nil
}

func (d *Dispatcher) check(c *cpu.CPU, user bool) *kernel.Error {
	cookie := checkCookie

	var args checkArgs
	guard := d.InstallRecovery(c, checkRecover, &args)
	defer guard.Done()

	faults := []struct {
		num  Vector
		code uint64
	}{
		{DivideError, 0},
		{Breakpoint, 0},
		{Overflow, 0},
		{BoundRangeExceeded, 0},
		{InvalidOpcode, 0},

		// A load through a bad segment selector; the selector travels
		// in the error code.
		{GeneralProtection, 0x10},
	}
	if user {
		// Privileged instructions only fault at user privilege.
		faults = append(faults, struct {
			num  Vector
			code uint64
		}{GeneralProtection, 0})
	}

	for i, f := range faults {
		if !d.provoke(c, &args, i, f.num, f.code, user) {
			return errTrapCheckFailed
		}
	}

	if cookie != checkCookie {
		return errTrapCheckFailed
	}
	return nil
}

// provoke pushes one synthetic trap frame through Dispatch and verifies the
// recovery function saw the expected vector and redirected the frame to the
// armed resume address.
func (d *Dispatcher) provoke(c *cpu.CPU, args *checkArgs, seq int, num Vector, code uint64, user bool) bool {
	args.resumeRIP = checkResumeRIP + uint64(seq)*16
	args.trapNum = NumVectors - 1

	cs := uint64(KernelCS)
	if user {
		cs = UserCS
	}
	tf := Frame{
		Num:  num,
		Code: code,
		RIP:  checkFaultRIP,
		CS:   cs,
	}

	d.Dispatch(c, &tf)

	return args.trapNum == num && tf.RIP == args.resumeRIP
}
