package emu

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Saxpy is the implementation of the "saxpy" kernel: out[i] = a*x[i] + y[i], for i < size, with signature
// (float a, const float* x, const float* y, float* out, unsigned int size).
func Saxpy(args *KernelArgs) error {
	n, err := sizeArg(args, 4, 1, 2, 3)
	if err != nil {
		return err
	}
	a, err := ScalarArg[float32](args, 0)
	if err != nil {
		return err
	}
	x, err := BufferArg[float32](args, 1)
	if err != nil {
		return err
	}
	y, err := BufferArg[float32](args, 2)
	if err != nil {
		return err
	}
	out, err := BufferArg[float32](args, 3)
	if err != nil {
		return err
	}
	for ii := range n {
		out[ii] = a*x[ii] + y[ii]
	}
	return nil
}

// Vsqrt is the implementation of the "vsqrt" kernel: out[i] = sqrt(in[i]), for i < size, with signature
// (const float* in, float* out, unsigned int size).
//
// Negative inputs fail the run, like a kernel raising its error interrupt.
func Vsqrt(args *KernelArgs) error {
	n, err := sizeArg(args, 2, 0, 1)
	if err != nil {
		return err
	}
	in, err := BufferArg[float32](args, 0)
	if err != nil {
		return err
	}
	out, err := BufferArg[float32](args, 1)
	if err != nil {
		return err
	}
	for ii := range n {
		if in[ii] < 0 {
			return errors.Errorf("vsqrt: negative input %g at position %d", in[ii], ii)
		}
		out[ii] = math32.Sqrt(in[ii])
	}
	return nil
}
