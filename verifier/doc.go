// Package verifier implements a structural bytecode verifier: a data-flow pass
// that proves a method cannot break the operand stack and local variable type
// discipline before any of its instructions run.
//
// A verification run decodes the method, builds an instruction graph,
// partitions it into top-level code and subroutines, and then drives a
// worklist to a fixed point. Each step merges the incoming frame into the
// frame stored for the instruction under the current call-chain key, checks
// the instruction's preconditions against it and applies its symbolic effect.
//
// Verify returns Accepted, Rejected (with a diagnostic naming the instruction,
// the frame and the execution chain that led there) or NotYet when the
// prerequisite static checks fail. A non-nil error means the verifier itself
// hit an inconsistency and should be treated as fatal.
package verifier
