// Package moremath adds float semantics the Go standard library doesn't match, needed to implement WebAssembly's
// numeric instructions bit-for-bit (NaN-propagating min/max, saturating float-to-integer truncation).
package moremath

import "math"

// math.Min doen't comply with the Wasm spec, so we borrow from the original
// with a change that either one of NaN results in NaN even if another is -Inf.
// https://github.com/golang/go/blob/1d20a362d0ca4898d77865e314ef6f73582daef0/src/math/dim.go#L74-L91
func WasmCompatMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// math.Max doen't comply with the Wasm spec, so we borrow from the original
// with a change that either one of NaN results in NaN even if another is Inf.
// https://github.com/golang/go/blob/1d20a362d0ca4898d77865e314ef6f73582daef0/src/math/dim.go#L42-L59
func WasmCompatMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)

	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// WasmCompatNearestF32 rounds to the nearest integral value, ties to even, per the Wasm f32.nearest instruction.
// math.RoundToEven operates on float64, which is precise enough for float32 inputs.
func WasmCompatNearestF32(f float32) float32 {
	return float32(math.RoundToEven(float64(f)))
}

// WasmCompatNearestF64 rounds to the nearest integral value, ties to even, per the Wasm f64.nearest instruction.
func WasmCompatNearestF64(f float64) float64 {
	return math.RoundToEven(f)
}

// I32TruncSatF32 implements the i32.trunc_sat_f32_s/u instructions: truncate toward zero, clamping to the target
// range instead of trapping on overflow, and mapping NaN to zero.
func I32TruncSatF32(f float32, signed bool) int64 {
	return truncSat(float64(f), signed, 32)
}

// I32TruncSatF64 implements the i32.trunc_sat_f64_s/u instructions.
func I32TruncSatF64(f float64, signed bool) int64 {
	return truncSat(f, signed, 32)
}

// I64TruncSatF32 implements the i64.trunc_sat_f32_s/u instructions.
func I64TruncSatF32(f float32, signed bool) int64 {
	return truncSat(float64(f), signed, 64)
}

// I64TruncSatF64 implements the i64.trunc_sat_f64_s/u instructions.
func I64TruncSatF64(f float64, signed bool) int64 {
	return truncSat(f, signed, 64)
}

// truncSat truncates f toward zero and clamps it into the range representable by the given bit width, returning
// the result as the bit pattern of a signed or unsigned integer of that width packed into an int64.
func truncSat(f float64, signed bool, bits int) int64 {
	if math.IsNaN(f) {
		return 0
	}
	trunc := math.Trunc(f)

	if signed {
		min, max := minMaxSigned(bits)
		if trunc <= min {
			return int64(min)
		}
		if trunc >= max { // max is the exclusive bound 2^(bits-1)
			if bits == 32 {
				return math.MaxInt32
			}
			return math.MaxInt64
		}
		return int64(trunc)
	}

	max := maxUnsigned(bits)
	if trunc <= 0 {
		return 0
	}
	if trunc >= max { // max is the exclusive bound 2^bits
		if bits == 32 {
			return math.MaxUint32
		}
		return -1 // all 64 bits set: the bit pattern of math.MaxUint64
	}
	return int64(uint64(trunc))
}

func minMaxSigned(bits int) (min, max float64) {
	switch bits {
	case 32:
		return -2147483648, 2147483648
	default:
		return -9223372036854775808, 9223372036854775808
	}
}

func maxUnsigned(bits int) float64 {
	switch bits {
	case 32:
		return 4294967296
	default:
		return 18446744073709551616
	}
}
